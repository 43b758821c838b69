// Package parser converts the cross-board wire records to structured types and vice-versa.
//
// Vision record (vision -> navigation), little-endian, 8 bytes:
//
//	HEADING int32 (0.1°) | FLAGS uint8 | PAD [3]uint8
//	FLAGS bit0 available, bit1 color (0 green, 1 red), bit2 direction (0 left, 1 right), bits3-7 angle
//
// Actuator command (navigation -> servo board), one byte:
//
//	servo 0ccsmmmm  (cc channel, s sign set = negative, mmmm magnitude)
//	light 1iiiiiis  (iiiiii channel, s state)
//
// Power record (servo board -> navigation), little-endian, 16 bytes:
//
//	ANALOG [4]uint16 | MOTOR_TURNS [2]uint32
package parser

import "errors"

var (
	// ErrShortRecord is returned when a record is smaller than its fixed layout.
	ErrShortRecord = errors.New("record too short")
	// ErrUnknownFormat is returned for an unregistered telemetry format.
	ErrUnknownFormat = errors.New("unknown telemetry format")
)

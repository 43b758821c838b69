package parser

import (
	"encoding/binary"
	"fmt"

	"TerraNav/internal/model"
)

// Vision record sizes accepted on the link.
const (
	VisionRecordSize       = 8 // padded struct, as laid out by the vision firmware
	VisionPackedRecordSize = 5 // packed variant
	VisionHeadingOnlySize  = 4 // heading without object part
)

const (
	flagAvailable = 1 << 0
	flagRed       = 1 << 1
	flagRight     = 1 << 2
	angleShift    = 3
	angleMask     = 0x1f
)

// DecodeVision parses one vision push record.
func DecodeVision(b []byte) (model.VisionRecord, error) {
	switch len(b) {
	case VisionRecordSize, VisionPackedRecordSize:
	case VisionHeadingOnlySize:
		return model.VisionRecord{
			Heading:     model.Heading(int32(binary.LittleEndian.Uint32(b))),
			HeadingOnly: true,
		}, nil
	default:
		if len(b) < VisionHeadingOnlySize {
			return model.VisionRecord{}, fmt.Errorf("vision record of %d bytes: %w", len(b), ErrShortRecord)
		}
		return model.VisionRecord{}, fmt.Errorf("unexpected vision record size %d", len(b))
	}

	rec := model.VisionRecord{Heading: model.Heading(int32(binary.LittleEndian.Uint32(b)))}
	flags := b[4]
	if flags&flagAvailable != 0 {
		obj := &model.ObjectDetection{
			Color: model.Green,
			Side:  model.SideLeft,
			Angle: (flags >> angleShift) & angleMask,
		}
		if flags&flagRed != 0 {
			obj.Color = model.Red
		}
		if flags&flagRight != 0 {
			obj.Side = model.SideRight
		}
		rec.Object = obj
	}
	return rec, nil
}

// EncodeVision builds the padded 8-byte record. It is used by the vision simulator.
func EncodeVision(rec model.VisionRecord) []byte {
	b := make([]byte, VisionRecordSize)
	binary.LittleEndian.PutUint32(b, uint32(int32(rec.Heading)))
	if obj := rec.Object; obj != nil {
		flags := byte(flagAvailable)
		if obj.Color == model.Red {
			flags |= flagRed
		}
		if obj.Side == model.SideRight {
			flags |= flagRight
		}
		flags |= (obj.Angle & angleMask) << angleShift
		b[4] = flags
	}
	return b
}

// CourseModeByte is the reply to a course-mode request from the vision board.
func CourseModeByte(m model.CourseMode) byte {
	if m == model.ObstacleCourse {
		return 2
	}
	return 1
}

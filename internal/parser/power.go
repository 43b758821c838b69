package parser

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"TerraNav/internal/model"
)

// PowerRecordSize is the size of the servo board's telemetry record.
const PowerRecordSize = 16

// DecodePower parses the power record polled from the servo board.
func DecodePower(b []byte) (model.PowerRecord, error) {
	var rec model.PowerRecord
	if len(b) < PowerRecordSize {
		return rec, fmt.Errorf("power record of %d bytes: %w", len(b), ErrShortRecord)
	}
	if err := binary.Read(bytes.NewReader(b[:PowerRecordSize]), binary.LittleEndian, &rec); err != nil {
		return rec, fmt.Errorf("decode power record: %w", err)
	}
	return rec, nil
}

// EncodePower serializes a power record; used by the board simulator.
func EncodePower(rec model.PowerRecord) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, rec)
	return buf.Bytes()
}

package parser

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"TerraNav/internal/model"
)

// TelemetryEncoder serializes telemetry frames for streaming and recording.
type TelemetryEncoder interface {
	Name() string
	Encode(f model.Frame) ([]byte, error)
	Decode(b []byte) (model.Frame, error)
}

// JSONEncoder implements TelemetryEncoder using JSON serialization.
type JSONEncoder struct{}

// NewJSONEncoder creates a new JSON encoder.
func NewJSONEncoder() *JSONEncoder { return &JSONEncoder{} }

func (JSONEncoder) Name() string { return "json" }

// Encode encodes a Frame into JSON.
func (JSONEncoder) Encode(f model.Frame) ([]byte, error) {
	return json.Marshal(f)
}

// Decode decodes JSON into a Frame.
func (JSONEncoder) Decode(b []byte) (model.Frame, error) {
	var f model.Frame
	err := json.Unmarshal(b, &f)
	return f, err
}

// MsgpackEncoder implements TelemetryEncoder using MessagePack, for low-bandwidth links.
type MsgpackEncoder struct{}

// NewMsgpackEncoder creates a new MessagePack encoder.
func NewMsgpackEncoder() *MsgpackEncoder { return &MsgpackEncoder{} }

func (MsgpackEncoder) Name() string { return "msgpack" }

// Encode encodes a Frame into MessagePack.
func (MsgpackEncoder) Encode(f model.Frame) ([]byte, error) {
	return msgpack.Marshal(&f)
}

// Decode decodes MessagePack into a Frame.
func (MsgpackEncoder) Decode(b []byte) (model.Frame, error) {
	var f model.Frame
	err := msgpack.Unmarshal(b, &f)
	return f, err
}

// Encoders returns the registered telemetry encoders by name.
func Encoders() map[string]TelemetryEncoder {
	return map[string]TelemetryEncoder{
		"json":    NewJSONEncoder(),
		"msgpack": NewMsgpackEncoder(),
	}
}

// EncoderFor looks up a telemetry encoder by format name.
func EncoderFor(format string) (TelemetryEncoder, error) {
	enc, ok := Encoders()[format]
	if !ok {
		return nil, fmt.Errorf("%q: %w", format, ErrUnknownFormat)
	}
	return enc, nil
}

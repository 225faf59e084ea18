// Package replay encodes recorded lobby traffic. A recording is a protobuf
// wire message whose frames carry msgpack payloads, so the format can be read
// without the schema that produced the payloads.
package replay

import (
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/encoding/protowire"
)

var ErrCorrupted = errors.New("corrupted-replay")

// recording fields
const (
	fieldId        protowire.Number = 1
	fieldLobby     protowire.Number = 2
	fieldOutcome   protowire.Number = 3
	fieldStartedAt protowire.Number = 4
	fieldFrame     protowire.Number = 5
	fieldDropped   protowire.Number = 6
)

// frame fields
const (
	fieldOffset  protowire.Number = 1
	fieldType    protowire.Number = 2
	fieldPayload protowire.Number = 3
)

type Frame struct {
	Offset  time.Duration
	Type    string
	Payload []byte
}

// NewFrame encodes data right away so later mutation of the value does not
// leak into the recording.
func NewFrame(offset time.Duration, msgType string, data any) (Frame, error) {
	payload, err := msgpack.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return Frame{Offset: offset, Type: msgType, Payload: payload}, nil
}

func (f Frame) Decode(v any) error {
	return msgpack.Unmarshal(f.Payload, v)
}

type Recording struct {
	Id        ulid.ULID
	LobbyId   int
	Outcome   string
	StartedAt time.Time
	Dropped   int
	Frames    []Frame
}

func NewId(at time.Time) ulid.ULID {
	return ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy())
}

func Encode(rec Recording) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldId, protowire.BytesType)
	b = protowire.AppendBytes(b, rec.Id[:])
	b = protowire.AppendTag(b, fieldLobby, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(rec.LobbyId))
	b = protowire.AppendTag(b, fieldOutcome, protowire.BytesType)
	b = protowire.AppendString(b, rec.Outcome)
	b = protowire.AppendTag(b, fieldStartedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(rec.StartedAt.UnixMilli()))
	if rec.Dropped > 0 {
		b = protowire.AppendTag(b, fieldDropped, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(rec.Dropped))
	}

	for _, f := range rec.Frames {
		var fb []byte
		fb = protowire.AppendTag(fb, fieldOffset, protowire.VarintType)
		fb = protowire.AppendVarint(fb, uint64(f.Offset.Milliseconds()))
		fb = protowire.AppendTag(fb, fieldType, protowire.BytesType)
		fb = protowire.AppendString(fb, f.Type)
		fb = protowire.AppendTag(fb, fieldPayload, protowire.BytesType)
		fb = protowire.AppendBytes(fb, f.Payload)

		b = protowire.AppendTag(b, fieldFrame, protowire.BytesType)
		b = protowire.AppendBytes(b, fb)
	}
	return b
}

func Decode(data []byte) (Recording, error) {
	var rec Recording
	err := walk(data, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case fieldId:
			if len(raw) != len(rec.Id) {
				return fmt.Errorf("%w: bad id length %d", ErrCorrupted, len(raw))
			}
			copy(rec.Id[:], raw)
		case fieldLobby:
			rec.LobbyId = int(v)
		case fieldOutcome:
			rec.Outcome = string(raw)
		case fieldStartedAt:
			rec.StartedAt = time.UnixMilli(int64(v)).UTC()
		case fieldDropped:
			rec.Dropped = int(v)
		case fieldFrame:
			f, err := decodeFrame(raw)
			if err != nil {
				return err
			}
			rec.Frames = append(rec.Frames, f)
		}
		return nil
	})
	return rec, err
}

func decodeFrame(data []byte) (Frame, error) {
	var f Frame
	err := walk(data, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case fieldOffset:
			f.Offset = time.Duration(v) * time.Millisecond
		case fieldType:
			f.Type = string(raw)
		case fieldPayload:
			f.Payload = append([]byte(nil), raw...)
		}
		return nil
	})
	return f, err
}

// walk calls fn for every varint and length-delimited field in data. Other
// wire types are skipped.
func walk(data []byte, fn func(num protowire.Number, v uint64, raw []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrCorrupted, protowire.ParseError(n))
		}
		data = data[n:]

		var (
			v   uint64
			raw []byte
		)
		switch typ {
		case protowire.VarintType:
			v, n = protowire.ConsumeVarint(data)
		case protowire.BytesType:
			raw, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrCorrupted, protowire.ParseError(n))
		}
		data = data[n:]

		if typ != protowire.VarintType && typ != protowire.BytesType {
			continue
		}
		if err := fn(num, v, raw); err != nil {
			return err
		}
	}
	return nil
}

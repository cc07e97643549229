// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteFrame encodes msg and writes it as a single [Type][Length][Payload]
// frame. msg must be a pointer to one of the six message structs.
func WriteFrame(w io.Writer, msg any) error {
	t, payload, err := encodePayload(msg)
	if err != nil {
		return err
	}

	header := make([]byte, 5)
	header[0] = byte(t)
	binary.BigEndian.PutUint32(header[1:5], uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}
	return nil
}

func encodePayload(msg any) (MessageType, []byte, error) {
	bw := newByteWriter()
	switch m := msg.(type) {
	case *AddRecord:
		bw.writeString(m.LogName)
		bw.writeBlob([]byte(m.Data))
		bw.writeInt64(m.Timestamp)
		return TypeAddRecord, bw.bytes(), nil

	case *GetLogPosition:
		bw.writeString(m.LogName)
		return TypeGetLogPosition, bw.bytes(), nil

	case *LogPositionResponse:
		bw.writeString(m.LogName)
		bw.writeInt64(m.Position)
		return TypeLogPositionResponse, bw.bytes(), nil

	case *GetLogContent:
		bw.writeUint32(m.RequestID)
		bw.writeString(m.LogName)
		bw.writeInt64(m.BeginRecord)
		bw.writeInt64(m.EndRecord)
		return TypeGetLogContent, bw.bytes(), nil

	case *LogContentStatus:
		bw.writeUint32(m.RequestID)
		bw.writeInt8(int8(m.Status))
		bw.writeString(m.LogName)
		return TypeLogContentStatus, bw.bytes(), nil

	case *LogContentData:
		if err := m.Validate(); err != nil {
			return 0, nil, err
		}
		bw.writeUint32(m.RequestID)
		bw.writeInt64(m.BeginRecord)
		bw.writeInt64(m.EndRecord)
		bw.writeUint32(uint32(len(m.Records)))
		for _, rec := range m.Records {
			bw.writeString(rec)
		}
		return TypeLogContentData, bw.bytes(), nil

	default:
		return 0, nil, fmt.Errorf("%w: unknown message type %T", ErrInvalidType, msg)
	}
}

// byteWriter accumulates the length-prefixed fields of a payload before it
// is framed and written to the wire.
type byteWriter struct {
	buf []byte
}

func newByteWriter() *byteWriter {
	return &byteWriter{buf: make([]byte, 0, 64)}
}

func (w *byteWriter) bytes() []byte {
	return w.buf
}

func (w *byteWriter) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *byteWriter) writeInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.buf = append(w.buf, b[:]...)
}

func (w *byteWriter) writeInt8(v int8) {
	w.buf = append(w.buf, byte(v))
}

// writeBlob appends a [uint32 length][bytes] field.
func (w *byteWriter) writeBlob(b []byte) {
	w.writeUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// writeString appends a [uint16 length][utf-8 bytes] field, used for the
// shorter name-like fields (log names). Strings longer than 65535 bytes are
// truncated at encode time — log names are not expected to approach that.
func (w *byteWriter) writeString(s string) {
	b := []byte(s)
	if len(b) > 0xFFFF {
		b = b[:0xFFFF]
	}
	var lb [2]byte
	binary.BigEndian.PutUint16(lb[:], uint16(len(b)))
	w.buf = append(w.buf, lb[:]...)
	w.buf = append(w.buf, b...)
}

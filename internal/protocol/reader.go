// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ReadFrame reads one [Type][Length][Payload] frame and decodes it into the
// corresponding message struct. It returns ErrInvalidType if the wire type is
// outside [1,6], and ErrFrameTooLarge if the declared length exceeds
// MaxFrameLength.
func ReadFrame(r io.Reader) (MessageType, any, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, fmt.Errorf("reading frame header: %w", err)
	}

	t := MessageType(header[0])
	if !ValidType(t) {
		return 0, nil, ErrInvalidType
	}

	length := binary.BigEndian.Uint32(header[1:5])
	if length > MaxFrameLength {
		return 0, nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("reading frame payload: %w", err)
	}

	msg, err := decodePayload(t, payload)
	if err != nil {
		return 0, nil, err
	}
	return t, msg, nil
}

func decodePayload(t MessageType, p []byte) (any, error) {
	br := newByteReader(p)
	switch t {
	case TypeAddRecord:
		logName, err := br.readString()
		if err != nil {
			return nil, fmt.Errorf("decoding add_record log name: %w", err)
		}
		data, err := br.readBlob()
		if err != nil {
			return nil, fmt.Errorf("decoding add_record data: %w", err)
		}
		timestamp, err := br.readInt64()
		if err != nil {
			return nil, fmt.Errorf("decoding add_record timestamp: %w", err)
		}
		return &AddRecord{LogName: logName, Data: string(data), Timestamp: timestamp}, nil

	case TypeGetLogPosition:
		logName, err := br.readString()
		if err != nil {
			return nil, fmt.Errorf("decoding get_log_position log name: %w", err)
		}
		return &GetLogPosition{LogName: logName}, nil

	case TypeLogPositionResponse:
		logName, err := br.readString()
		if err != nil {
			return nil, fmt.Errorf("decoding log_position_response log name: %w", err)
		}
		position, err := br.readInt64()
		if err != nil {
			return nil, fmt.Errorf("decoding log_position_response position: %w", err)
		}
		return &LogPositionResponse{LogName: logName, Position: position}, nil

	case TypeGetLogContent:
		requestID, err := br.readUint32()
		if err != nil {
			return nil, fmt.Errorf("decoding get_log_content request id: %w", err)
		}
		logName, err := br.readString()
		if err != nil {
			return nil, fmt.Errorf("decoding get_log_content log name: %w", err)
		}
		begin, err := br.readInt64()
		if err != nil {
			return nil, fmt.Errorf("decoding get_log_content begin record: %w", err)
		}
		end, err := br.readInt64()
		if err != nil {
			return nil, fmt.Errorf("decoding get_log_content end record: %w", err)
		}
		return &GetLogContent{RequestID: requestID, LogName: logName, BeginRecord: begin, EndRecord: end}, nil

	case TypeLogContentStatus:
		requestID, err := br.readUint32()
		if err != nil {
			return nil, fmt.Errorf("decoding log_content_status request id: %w", err)
		}
		status, err := br.readInt8()
		if err != nil {
			return nil, fmt.Errorf("decoding log_content_status status: %w", err)
		}
		logName, err := br.readString()
		if err != nil {
			return nil, fmt.Errorf("decoding log_content_status log name: %w", err)
		}
		return &LogContentStatus{RequestID: requestID, Status: ContentStatus(status), LogName: logName}, nil

	case TypeLogContentData:
		requestID, err := br.readUint32()
		if err != nil {
			return nil, fmt.Errorf("decoding log_content_data request id: %w", err)
		}
		begin, err := br.readInt64()
		if err != nil {
			return nil, fmt.Errorf("decoding log_content_data begin record: %w", err)
		}
		end, err := br.readInt64()
		if err != nil {
			return nil, fmt.Errorf("decoding log_content_data end record: %w", err)
		}
		count, err := br.readUint32()
		if err != nil {
			return nil, fmt.Errorf("decoding log_content_data record count: %w", err)
		}
		records := make([]string, 0, count)
		for i := uint32(0); i < count; i++ {
			rec, err := br.readString()
			if err != nil {
				return nil, fmt.Errorf("decoding log_content_data record %d: %w", i, err)
			}
			records = append(records, rec)
		}
		msg := &LogContentData{RequestID: requestID, BeginRecord: begin, EndRecord: end, Records: records}
		if err := msg.Validate(); err != nil {
			return nil, err
		}
		return msg, nil

	default:
		return nil, ErrInvalidType
	}
}

// byteReader is a small cursor over an in-memory payload used to decode the
// length-prefixed fields of each message kind.
type byteReader struct {
	buf []byte
	pos int
}

func newByteReader(buf []byte) *byteReader {
	return &byteReader{buf: buf}
}

func (r *byteReader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *byteReader) readUint32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, ErrTruncatedFrame
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *byteReader) readInt64() (int64, error) {
	if r.remaining() < 8 {
		return 0, ErrTruncatedFrame
	}
	v := int64(binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8]))
	r.pos += 8
	return v, nil
}

func (r *byteReader) readInt8() (int8, error) {
	if r.remaining() < 1 {
		return 0, ErrTruncatedFrame
	}
	v := int8(r.buf[r.pos])
	r.pos++
	return v, nil
}

// readBlob reads a [uint32 length][bytes] field.
func (r *byteReader) readBlob() ([]byte, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	if r.remaining() < int(n) {
		return nil, ErrTruncatedFrame
	}
	v := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return v, nil
}

// readString reads a [uint16 length][utf-8 bytes] field, used for the
// shorter name-like fields (log names).
func (r *byteReader) readString() (string, error) {
	if r.remaining() < 2 {
		return "", ErrTruncatedFrame
	}
	n := binary.BigEndian.Uint16(r.buf[r.pos : r.pos+2])
	r.pos += 2
	if r.remaining() < int(n) {
		return "", ErrTruncatedFrame
	}
	v := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return v, nil
}

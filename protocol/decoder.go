package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/jackc/pgx/v5/pgproto3"
)

// frame header: 1 type byte + 4 length bytes (length includes itself).
const headerLen = 5

// maxFrameLen guards against a desynchronized stream being read as one
// gigantic frame.
const maxFrameLen = 64 * 1024 * 1024

// Decoder turns a byte stream into discrete server replies. Bytes arrive
// via Feed in arbitrary chunks; Next returns one complete reply at a time,
// or nil while the buffered bytes do not yet hold a full frame.
//
// Asynchronous noise (parameter status, notices, notifications, backend key
// data) is consumed internally and never surfaced.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder creates an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends received bytes to the decode buffer.
func (d *Decoder) Feed(data []byte) {
	if d.off > 0 && d.off == len(d.buf) {
		d.buf = d.buf[:0]
		d.off = 0
	}
	d.buf = append(d.buf, data...)
}

// Pending reports whether a complete frame is buffered, i.e. whether Next
// can make progress without more bytes.
func (d *Decoder) Pending() bool {
	avail := len(d.buf) - d.off
	if avail < headerLen {
		return false
	}
	size := int(binary.BigEndian.Uint32(d.buf[d.off+1 : d.off+headerLen]))
	return avail >= 1+size
}

// Next decodes and returns the next reply. It returns (nil, nil) when the
// buffer does not hold a complete frame yet.
func (d *Decoder) Next() (*Reply, error) {
	for {
		avail := len(d.buf) - d.off
		if avail < headerLen {
			d.compact()
			return nil, nil
		}

		msgType := d.buf[d.off]
		size := int(binary.BigEndian.Uint32(d.buf[d.off+1 : d.off+headerLen]))
		if size < 4 || size > maxFrameLen {
			return nil, &DecodeError{
				MessageType: msgType,
				Message:     fmt.Sprintf("invalid frame length %d", size),
			}
		}
		if avail < 1+size {
			d.compact()
			return nil, nil
		}

		body := d.buf[d.off+headerLen : d.off+1+size]
		d.off += 1 + size

		reply, err := decodeBody(msgType, body)
		if err != nil {
			return nil, err
		}
		if reply == nil {
			// Async message, consumed silently.
			continue
		}
		return reply, nil
	}
}

// compact drops consumed bytes so the buffer does not grow without bound.
func (d *Decoder) compact() {
	if d.off == 0 {
		return
	}
	n := copy(d.buf, d.buf[d.off:])
	d.buf = d.buf[:n]
	d.off = 0
}

// decodeBody maps one wire frame to a Reply. It returns (nil, nil) for
// asynchronous messages that callers never need to see.
func decodeBody(msgType byte, body []byte) (*Reply, error) {
	switch msgType {
	case 'R':
		if len(body) < 4 {
			return nil, &DecodeError{MessageType: msgType, Message: "authentication reply too short"}
		}
		code := binary.BigEndian.Uint32(body[:4])
		switch code {
		case 0:
			return &Reply{Type: ReplyAuthOK}, nil
		case 3:
			return &Reply{Type: ReplyAuthCleartextPassword}, nil
		default:
			return nil, &DecodeError{
				MessageType: msgType,
				Message:     fmt.Sprintf("unsupported authentication method %d", code),
			}
		}

	case 'T':
		var msg pgproto3.RowDescription
		if err := msg.Decode(body); err != nil {
			return nil, decodeFailed(msgType, err)
		}
		cols := make([]string, len(msg.Fields))
		for i := range msg.Fields {
			cols[i] = string(msg.Fields[i].Name)
		}
		return &Reply{Type: ReplyRowDescription, Columns: cols}, nil

	case 'D':
		var msg pgproto3.DataRow
		if err := msg.Decode(body); err != nil {
			return nil, decodeFailed(msgType, err)
		}
		// DataRow values alias the decode buffer; copy them out.
		row := make([][]byte, len(msg.Values))
		for i, v := range msg.Values {
			if v == nil {
				continue
			}
			row[i] = make([]byte, len(v))
			copy(row[i], v)
		}
		return &Reply{Type: ReplyDataRow, Row: row}, nil

	case 'C':
		var msg pgproto3.CommandComplete
		if err := msg.Decode(body); err != nil {
			return nil, decodeFailed(msgType, err)
		}
		return &Reply{Type: ReplyCommandComplete, Tag: string(msg.CommandTag)}, nil

	case 'I':
		return &Reply{Type: ReplyEmptyQuery}, nil

	case 'E':
		var msg pgproto3.ErrorResponse
		if err := msg.Decode(body); err != nil {
			return nil, decodeFailed(msgType, err)
		}
		return &Reply{Type: ReplyError, Err: &ServerError{
			Severity: msg.Severity,
			Code:     msg.Code,
			Message:  msg.Message,
			Detail:   msg.Detail,
		}}, nil

	case 'Z':
		var msg pgproto3.ReadyForQuery
		if err := msg.Decode(body); err != nil {
			return nil, decodeFailed(msgType, err)
		}
		return &Reply{Type: ReplyReady, TxStatus: msg.TxStatus}, nil

	case '1':
		return &Reply{Type: ReplyParseComplete}, nil

	case '2':
		return &Reply{Type: ReplyBindComplete}, nil

	case '3':
		return &Reply{Type: ReplyCloseComplete}, nil

	case 'n':
		return &Reply{Type: ReplyNoData}, nil

	case 't':
		var msg pgproto3.ParameterDescription
		if err := msg.Decode(body); err != nil {
			return nil, decodeFailed(msgType, err)
		}
		oids := make([]uint32, len(msg.ParameterOIDs))
		copy(oids, msg.ParameterOIDs)
		return &Reply{Type: ReplyParameterDescription, ParamOIDs: oids}, nil

	case 'S', 'N', 'A', 'K':
		// ParameterStatus, NoticeResponse, NotificationResponse,
		// BackendKeyData: async, not part of any queue entry's results.
		return nil, nil

	default:
		return nil, &DecodeError{
			MessageType: msgType,
			Message:     "unknown message type",
		}
	}
}

func decodeFailed(msgType byte, err error) error {
	return &DecodeError{MessageType: msgType, Message: "message decode failed", Cause: err}
}

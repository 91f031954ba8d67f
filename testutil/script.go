package testutil

import (
	"github.com/jackc/pgx/v5/pgproto3"
)

// Script builds a scripted stream of backend replies for tests.
// It provides a fluent API mirroring the order a server would send them.
//
// Example usage:
//
//	script := testutil.NewScript().
//	    ParseComplete().BindComplete().
//	    RowDescription("id").DataRow("1").
//	    CommandComplete("SELECT 1").
//	    ReadyForQuery('I')
//	conn, _ := testutil.NewScriptedConnection(t, script)
type Script struct {
	buf []byte
}

// NewScript creates an empty reply script.
func NewScript() *Script {
	return &Script{}
}

// Bytes returns the encoded stream.
func (s *Script) Bytes() []byte {
	return s.buf
}

// AuthOK appends a successful authentication reply.
func (s *Script) AuthOK() *Script {
	s.buf = (&pgproto3.AuthenticationOk{}).Encode(s.buf)
	return s
}

// CleartextPassword appends a cleartext password challenge.
func (s *Script) CleartextPassword() *Script {
	s.buf = (&pgproto3.AuthenticationCleartextPassword{}).Encode(s.buf)
	return s
}

// ParameterStatus appends a server parameter report. The client skips
// these, so scripts use them to exercise the skip path.
func (s *Script) ParameterStatus(name, value string) *Script {
	s.buf = (&pgproto3.ParameterStatus{Name: name, Value: value}).Encode(s.buf)
	return s
}

// BackendKeyData appends cancellation key data.
func (s *Script) BackendKeyData(pid, secret uint32) *Script {
	s.buf = (&pgproto3.BackendKeyData{ProcessID: pid, SecretKey: secret}).Encode(s.buf)
	return s
}

// Notice appends an asynchronous notice.
func (s *Script) Notice(message string) *Script {
	s.buf = (&pgproto3.NoticeResponse{Severity: "NOTICE", Code: "00000", Message: message}).Encode(s.buf)
	return s
}

// ParseComplete appends a statement parse acknowledgement.
func (s *Script) ParseComplete() *Script {
	s.buf = (&pgproto3.ParseComplete{}).Encode(s.buf)
	return s
}

// BindComplete appends a portal bind acknowledgement.
func (s *Script) BindComplete() *Script {
	s.buf = (&pgproto3.BindComplete{}).Encode(s.buf)
	return s
}

// NoData appends the no-result-columns describe reply.
func (s *Script) NoData() *Script {
	s.buf = (&pgproto3.NoData{}).Encode(s.buf)
	return s
}

// ParameterDescription appends a statement parameter describe reply.
func (s *Script) ParameterDescription(oids ...uint32) *Script {
	s.buf = (&pgproto3.ParameterDescription{ParameterOIDs: oids}).Encode(s.buf)
	return s
}

// RowDescription appends a column header for text-format columns.
func (s *Script) RowDescription(columns ...string) *Script {
	fields := make([]pgproto3.FieldDescription, len(columns))
	for i, name := range columns {
		fields[i] = pgproto3.FieldDescription{
			Name:         []byte(name),
			DataTypeOID:  25,
			DataTypeSize: -1,
			TypeModifier: -1,
		}
	}
	s.buf = (&pgproto3.RowDescription{Fields: fields}).Encode(s.buf)
	return s
}

// DataRow appends one result row of text values.
func (s *Script) DataRow(values ...string) *Script {
	row := make([][]byte, len(values))
	for i, v := range values {
		row[i] = []byte(v)
	}
	s.buf = (&pgproto3.DataRow{Values: row}).Encode(s.buf)
	return s
}

// CommandComplete appends a statement completion tag.
func (s *Script) CommandComplete(tag string) *Script {
	s.buf = (&pgproto3.CommandComplete{CommandTag: []byte(tag)}).Encode(s.buf)
	return s
}

// EmptyQuery appends the empty query string reply.
func (s *Script) EmptyQuery() *Script {
	s.buf = (&pgproto3.EmptyQueryResponse{}).Encode(s.buf)
	return s
}

// Error appends a server error reply with the given SQLSTATE.
func (s *Script) Error(sqlstate, message string) *Script {
	s.buf = (&pgproto3.ErrorResponse{
		Severity: "ERROR",
		Code:     sqlstate,
		Message:  message,
	}).Encode(s.buf)
	return s
}

// ReadyForQuery appends the sync boundary marker. txStatus is 'I', 'T'
// or 'E'.
func (s *Script) ReadyForQuery(txStatus byte) *Script {
	s.buf = (&pgproto3.ReadyForQuery{TxStatus: txStatus}).Encode(s.buf)
	return s
}

package protocol

import (
	"fmt"
)

// ReplyType identifies a decoded server reply.
type ReplyType int

const (
	// ReplyAuthOK reports successful authentication.
	ReplyAuthOK ReplyType = iota
	// ReplyAuthCleartextPassword requests a cleartext password.
	ReplyAuthCleartextPassword
	// ReplyRowDescription opens a tuple stream and carries column names.
	ReplyRowDescription
	// ReplyDataRow carries one result row.
	ReplyDataRow
	// ReplyCommandComplete closes one statement's results.
	ReplyCommandComplete
	// ReplyEmptyQuery reports an empty query string.
	ReplyEmptyQuery
	// ReplyError carries a server error report.
	ReplyError
	// ReplyParseComplete acknowledges a statement parse.
	ReplyParseComplete
	// ReplyBindComplete acknowledges a portal bind.
	ReplyBindComplete
	// ReplyCloseComplete acknowledges a statement or portal close.
	ReplyCloseComplete
	// ReplyNoData reports that a described statement returns no rows.
	ReplyNoData
	// ReplyParameterDescription carries a described statement's parameter types.
	ReplyParameterDescription
	// ReplyReady is the synchronization-point reply.
	ReplyReady
)

// String returns the reply type name.
func (rt ReplyType) String() string {
	switch rt {
	case ReplyAuthOK:
		return "AuthOK"
	case ReplyAuthCleartextPassword:
		return "AuthCleartextPassword"
	case ReplyRowDescription:
		return "RowDescription"
	case ReplyDataRow:
		return "DataRow"
	case ReplyCommandComplete:
		return "CommandComplete"
	case ReplyEmptyQuery:
		return "EmptyQuery"
	case ReplyError:
		return "Error"
	case ReplyParseComplete:
		return "ParseComplete"
	case ReplyBindComplete:
		return "BindComplete"
	case ReplyCloseComplete:
		return "CloseComplete"
	case ReplyNoData:
		return "NoData"
	case ReplyParameterDescription:
		return "ParameterDescription"
	case ReplyReady:
		return "Ready"
	default:
		return "Unknown"
	}
}

// Reply is one decoded server reply. Fields beyond Type are populated
// depending on the reply kind.
type Reply struct {
	Type ReplyType

	// Columns holds column names for ReplyRowDescription.
	Columns []string

	// Row holds one row's column values for ReplyDataRow. A nil value is a
	// NULL column. The slice does not alias the decoder's buffer.
	Row [][]byte

	// Tag is the command tag for ReplyCommandComplete.
	Tag string

	// TxStatus is the transaction indicator for ReplyReady.
	TxStatus byte

	// ParamOIDs holds parameter type OIDs for ReplyParameterDescription.
	ParamOIDs []uint32

	// Err is the server error report for ReplyError.
	Err *ServerError
}

// ServerError is an error report received from the server.
type ServerError struct {
	Severity string
	Code     string
	Message  string
	Detail   string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (SQLSTATE %s): %s", e.Severity, e.Message, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s: %s (SQLSTATE %s)", e.Severity, e.Message, e.Code)
}

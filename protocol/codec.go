// Package protocol provides message encoding and decoding for the
// PostgreSQL extended query protocol, built on pgproto3.
package protocol

import (
	"github.com/jackc/pgx/v5/pgproto3"
)

// Codec builds the wire form of client requests. Each Encode method returns
// one transport frame: the complete byte sequence for a logical request,
// possibly spanning several protocol messages.
type Codec interface {
	// EncodeStartup creates the opening handshake message.
	EncodeStartup(params map[string]string) []byte

	// EncodePassword creates a cleartext password response.
	EncodePassword(password string) []byte

	// EncodeSimpleQuery creates a simple-protocol query message.
	EncodeSimpleQuery(sql string) []byte

	// EncodeQuery creates an unnamed parse/bind/describe/execute sequence.
	EncodeQuery(sql string, params [][]byte) []byte

	// EncodePrepare creates a named parse/describe sequence.
	EncodePrepare(name, sql string, paramOIDs []uint32) []byte

	// EncodePrepared creates a bind/describe/execute sequence against a
	// previously prepared statement.
	EncodePrepared(name string, params [][]byte) []byte

	// EncodeSync creates the synchronization-point message.
	EncodeSync() []byte

	// EncodeTerminate creates the session termination message.
	EncodeTerminate() []byte
}

// PgCodec implements Codec for the PostgreSQL wire protocol.
type PgCodec struct{}

// NewCodec creates a PostgreSQL protocol codec.
func NewCodec() Codec {
	return &PgCodec{}
}

// EncodeStartup implements Codec.
func (c *PgCodec) EncodeStartup(params map[string]string) []byte {
	msg := &pgproto3.StartupMessage{
		ProtocolVersion: pgproto3.ProtocolVersionNumber,
		Parameters:      params,
	}
	return msg.Encode(nil)
}

// EncodePassword implements Codec.
func (c *PgCodec) EncodePassword(password string) []byte {
	return (&pgproto3.PasswordMessage{Password: password}).Encode(nil)
}

// EncodeSimpleQuery implements Codec.
func (c *PgCodec) EncodeSimpleQuery(sql string) []byte {
	return (&pgproto3.Query{String: sql}).Encode(nil)
}

// EncodeQuery implements Codec.
func (c *PgCodec) EncodeQuery(sql string, params [][]byte) []byte {
	buf := (&pgproto3.Parse{Query: sql}).Encode(nil)
	buf = (&pgproto3.Bind{Parameters: params}).Encode(buf)
	buf = (&pgproto3.Describe{ObjectType: 'P'}).Encode(buf)
	buf = (&pgproto3.Execute{}).Encode(buf)
	return buf
}

// EncodePrepare implements Codec.
func (c *PgCodec) EncodePrepare(name, sql string, paramOIDs []uint32) []byte {
	buf := (&pgproto3.Parse{Name: name, Query: sql, ParameterOIDs: paramOIDs}).Encode(nil)
	buf = (&pgproto3.Describe{ObjectType: 'S', Name: name}).Encode(buf)
	return buf
}

// EncodePrepared implements Codec.
func (c *PgCodec) EncodePrepared(name string, params [][]byte) []byte {
	buf := (&pgproto3.Bind{PreparedStatement: name, Parameters: params}).Encode(nil)
	buf = (&pgproto3.Describe{ObjectType: 'P'}).Encode(buf)
	buf = (&pgproto3.Execute{}).Encode(buf)
	return buf
}

// EncodeSync implements Codec.
func (c *PgCodec) EncodeSync() []byte {
	return (&pgproto3.Sync{}).Encode(nil)
}

// EncodeTerminate implements Codec.
func (c *PgCodec) EncodeTerminate() []byte {
	return (&pgproto3.Terminate{}).Encode(nil)
}

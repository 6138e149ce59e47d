// Package protocol defines the newline-delimited JSON envelope spoken between
// the alfred CLI and the alferd daemon.
//
// Every message is a single JSON object followed by '\n'. The exchange is
// strictly half-duplex: the client writes one Request and reads exactly one
// Response before it may send anything else.
package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Method names understood by the daemon.
const (
	MethodPing               = "ping"
	MethodShutdown           = "shutdown"
	MethodHealth             = "health"
	MethodGenerate           = "generate"
	MethodCommitMessage      = "generate_commit_message"
	MethodBranchName         = "suggest_branch_name"
	MethodConflictResolution = "suggest_conflict_resolution"
	MethodRebaseStrategy     = "suggest_rebase_strategy"
)

// Well-known results.
const (
	PongResult     = "pong"
	ShutdownResult = "shutting_down"
)

// MaxLineBytes caps a single encoded message, newline included.
const MaxLineBytes = 8 << 20

var (
	// ErrMissingField is returned when a required envelope field is absent.
	ErrMissingField = errors.New("missing required field")
	// ErrEmbeddedNewline is returned when an encoded message would span lines.
	ErrEmbeddedNewline = errors.New("encoded message contains a raw newline")
	// ErrLineTooLong is returned by ReadLine when a message exceeds MaxLineBytes.
	ErrLineTooLong = errors.New("message exceeds maximum line length")
)

// Request is one call from client to daemon.
type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     uint64          `json:"id"`
}

// Response answers exactly one Request. Exactly one of Result and Error is set.
type Response struct {
	Result *string `json:"result"`
	Error  *string `json:"error"`
	ID     uint64  `json:"id"`
}

// NewRequest builds a Request, marshaling params. Nil params become {}.
func NewRequest(method string, params any, id uint64) (*Request, error) {
	raw := json.RawMessage(`{}`)
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal %s params: %w", method, err)
		}
		raw = data
	}
	return &Request{Method: method, Params: raw, ID: id}, nil
}

// Success returns a Response carrying result.
func Success(id uint64, result string) *Response {
	return &Response{Result: &result, ID: id}
}

// Failure returns a Response carrying an error message.
func Failure(id uint64, message string) *Response {
	return &Response{Error: &message, ID: id}
}

// IsError reports whether the response carries an error.
func (r *Response) IsError() bool {
	return r.Error != nil
}

// DecodeParams unmarshals the request params into v. Absent or null params
// leave v untouched.
func (r *Request) DecodeParams(v any) error {
	trimmed := bytes.TrimSpace(r.Params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("invalid params for %s: %w", r.Method, err)
	}
	return nil
}

// EncodeRequest writes req as one line.
func EncodeRequest(w io.Writer, req *Request) error {
	return writeLine(w, req)
}

// EncodeResponse writes resp as one line.
func EncodeResponse(w io.Writer, resp *Response) error {
	return writeLine(w, resp)
}

func writeLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	// encoding/json escapes control characters in strings and compacts
	// RawMessage, so this only trips on a broken Marshaler.
	if bytes.IndexByte(data, '\n') >= 0 {
		return ErrEmbeddedNewline
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush message: %w", err)
		}
	}
	return nil
}

// DecodeRequest parses one line into a Request. Unknown fields are ignored;
// a missing method or id is an error.
func DecodeRequest(line []byte) (*Request, error) {
	var wire struct {
		Method *string         `json:"method"`
		Params json.RawMessage `json:"params"`
		ID     *uint64         `json:"id"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(line), &wire); err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	if wire.Method == nil {
		return nil, fmt.Errorf("parse request: %w: method", ErrMissingField)
	}
	if wire.ID == nil {
		return nil, fmt.Errorf("parse request: %w: id", ErrMissingField)
	}
	return &Request{Method: *wire.Method, Params: wire.Params, ID: *wire.ID}, nil
}

// DecodeResponse parses one line into a Response. A missing id is an error.
func DecodeResponse(line []byte) (*Response, error) {
	var wire struct {
		Result *string `json:"result"`
		Error  *string `json:"error"`
		ID     *uint64 `json:"id"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(line), &wire); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if wire.ID == nil {
		return nil, fmt.Errorf("parse response: %w: id", ErrMissingField)
	}
	return &Response{Result: wire.Result, Error: wire.Error, ID: *wire.ID}, nil
}

// PeekID extracts the id from a line that failed to decode as a Request, so
// the error Response can still be correlated. Returns 0 when none is found.
func PeekID(line []byte) uint64 {
	var wire struct {
		ID uint64 `json:"id"`
	}
	_ = json.Unmarshal(bytes.TrimSpace(line), &wire)
	return wire.ID
}

// ReadLine reads one '\n'-terminated message from r. The returned slice does
// not include the line terminator. An unterminated final line is returned as
// is; io.EOF is only reported when nothing was read.
func ReadLine(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > MaxLineBytes {
			return nil, ErrLineTooLong
		}
		switch {
		case err == nil:
			return bytes.TrimRight(buf, "\r\n"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(buf) > 0:
			return buf, nil
		default:
			return nil, err
		}
	}
}

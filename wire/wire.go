// Package wire implements the branch wire protocol: one JSON document
// per frame, prefixed by a 4-byte big-endian length. The same framing
// serves clients, the bridge and branch-to-branch 2PC traffic.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/AARTI756/bank/domain"
)

// Operation names. The listener dispatches over this closed set; an
// operation outside it is a protocol violation.
const (
	OpBalance             = "balance"
	OpDeposit             = "deposit"
	OpWithdraw            = "withdraw"
	OpTransferLocal       = "transfer_local"
	OpPrepare             = "prepare"
	OpCommit              = "commit"
	OpAbort               = "abort"
	OpInterBranchTransfer = "inter_branch_transfer"
	OpListAccounts        = "list_accounts"
	OpCreateAccount       = "create_account"
	OpGetLogs             = "get_logs"
	OpUnresolved          = "unresolved"
)

// MaxFrameSize bounds one frame. Anything larger is rejected before
// allocation.
const MaxFrameSize = 1 << 20

const (
	StatusOK    = "ok"
	StatusError = "error"
)

type Request struct {
	Operation string         `json:"operation"`
	Fields    map[string]any `json:"fields,omitempty"`
}

type Response struct {
	Status    string         `json:"status"`
	Fields    map[string]any `json:"fields,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// OK builds a success response around the given fields.
func OK(fields map[string]any) *Response {
	return &Response{Status: StatusOK, Fields: fields}
}

// Error builds an error response from a domain error.
func Error(err error) *Response {
	return &Response{
		Status:    StatusError,
		ErrorKind: domain.Kind(err),
		Message:   err.Error(),
	}
}

// IsOK reports whether the response carries a success status.
func (r *Response) IsOK() bool {
	return r != nil && r.Status == StatusOK
}

// Err rebuilds an error from an error response, or nil for success.
func (r *Response) Err() error {
	if r.IsOK() {
		return nil
	}
	return &RemoteError{Kind: r.ErrorKind, Message: r.Message}
}

// RemoteError is an error frame received from a peer.
type RemoteError struct {
	Kind    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// WriteFrame marshals v and writes it as one length-prefixed frame.
func WriteFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if len(body) > MaxFrameSize {
		return &domain.ProtocolError{Reason: "frame too large"}
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return nil, &domain.ProtocolError{Reason: fmt.Sprintf("frame of %d bytes exceeds limit", size)}
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// ReadRequest reads and decodes one request frame.
func ReadRequest(r io.Reader) (*Request, error) {
	body, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	req := &Request{}
	if err := json.Unmarshal(body, req); err != nil {
		return nil, &domain.ProtocolError{Reason: "malformed request frame: " + err.Error()}
	}
	if req.Operation == "" {
		return nil, &domain.ProtocolError{Reason: "request without operation"}
	}
	return req, nil
}

// ReadResponse reads and decodes one response frame.
func ReadResponse(r io.Reader) (*Response, error) {
	body, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	resp := &Response{}
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, &domain.ProtocolError{Reason: "malformed response frame: " + err.Error()}
	}
	return resp, nil
}

// Int64Field extracts an integer field. JSON numbers arrive as
// float64; whole values only.
func (r *Request) Int64Field(name string) (int64, error) {
	raw, ok := r.Fields[name]
	if !ok {
		return 0, &domain.ProtocolError{Reason: "missing field " + name}
	}
	switch v := raw.(type) {
	case float64:
		n := int64(v)
		if float64(n) != v {
			return 0, &domain.ProtocolError{Reason: "field " + name + " is not an integer"}
		}
		return n, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, &domain.ProtocolError{Reason: "field " + name + " is not an integer"}
		}
		return n, nil
	}
	return 0, &domain.ProtocolError{Reason: "field " + name + " is not a number"}
}

// StringField extracts a string field.
func (r *Request) StringField(name string) (string, error) {
	raw, ok := r.Fields[name]
	if !ok {
		return "", &domain.ProtocolError{Reason: "missing field " + name}
	}
	s, ok := raw.(string)
	if !ok {
		return "", &domain.ProtocolError{Reason: "field " + name + " is not a string"}
	}
	return s, nil
}

// OptionalString extracts a string field, empty when absent.
func (r *Request) OptionalString(name string) string {
	s, _ := r.Fields[name].(string)
	return s
}

package common

import (
	"encoding/json"
	"fmt"

	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/document"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message is the envelope of every call and reply exchanged with a worker.
// The correlation id travels in the frame header, not in the message.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Arguments and results
	Docs    []document.Document `json:"docs,omitempty"`    // Used for: WriteDocs (request), FindDocs and queries (response)
	IDs     []string            `json:"ids,omitempty"`     // Used for: FindDocs
	Pattern string              `json:"pattern,omitempty"` // Used for: QueryRegex, QueryRegexIndex
	MinAge  int                 `json:"min_age,omitempty"` // Used for: QueryIndex, QueryRegexIndex

	// Response only fields
	Err  string `json:"err,omitempty"`  // Empty if no error, otherwise contains the error message
	Code uint64 `json:"code,omitempty"` // adapter.RetCode of the error
}

// --------------------------------------------------------------------------
// Requests (closed set of call variants)
// --------------------------------------------------------------------------

// Request is one of the call variants a worker executes. The set is closed,
// only the types of this package implement it.
type Request interface {
	// Message encodes the request into an envelope
	Message() *Message
	request()
}

type (
	InitRequest       struct{}
	WriteDocsRequest  struct{ Docs []document.Document }
	FindDocsRequest   struct{ IDs []string }
	QueryRegexRequest struct{ Pattern string }
	QueryIndexRequest struct{ MinAge int }
	ClearRequest      struct{}

	QueryRegexIndexRequest struct {
		Pattern string
		MinAge  int
	}
)

func (InitRequest) request()            {}
func (WriteDocsRequest) request()       {}
func (FindDocsRequest) request()        {}
func (QueryRegexRequest) request()      {}
func (QueryIndexRequest) request()      {}
func (QueryRegexIndexRequest) request() {}
func (ClearRequest) request()           {}

func (InitRequest) Message() *Message { return &Message{MsgType: MsgTInit} }

func (r WriteDocsRequest) Message() *Message {
	return &Message{MsgType: MsgTWriteDocs, Docs: r.Docs}
}

func (r FindDocsRequest) Message() *Message {
	return &Message{MsgType: MsgTFindDocs, IDs: r.IDs}
}

func (r QueryRegexRequest) Message() *Message {
	return &Message{MsgType: MsgTQueryRegex, Pattern: r.Pattern}
}

func (r QueryIndexRequest) Message() *Message {
	return &Message{MsgType: MsgTQueryIndex, MinAge: r.MinAge}
}

func (r QueryRegexIndexRequest) Message() *Message {
	return &Message{MsgType: MsgTQueryRegexIndex, Pattern: r.Pattern, MinAge: r.MinAge}
}

func (ClearRequest) Message() *Message { return &Message{MsgType: MsgTClear} }

// Request decodes the call variant of the message. Ready, error and unknown
// message types are not requests.
func (m *Message) Request() (Request, error) {
	switch m.MsgType {
	case MsgTInit:
		return InitRequest{}, nil
	case MsgTWriteDocs:
		return WriteDocsRequest{Docs: m.Docs}, nil
	case MsgTFindDocs:
		return FindDocsRequest{IDs: m.IDs}, nil
	case MsgTQueryRegex:
		return QueryRegexRequest{Pattern: m.Pattern}, nil
	case MsgTQueryIndex:
		return QueryIndexRequest{MinAge: m.MinAge}, nil
	case MsgTQueryRegexIndex:
		return QueryRegexIndexRequest{Pattern: m.Pattern, MinAge: m.MinAge}, nil
	case MsgTClear:
		return ClearRequest{}, nil
	default:
		return nil, fmt.Errorf("%s is not a request", m.MsgType)
	}
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewReadyMessage creates the message a worker emits once it accepts calls
func NewReadyMessage() *Message {
	return &Message{MsgType: MsgTReady}
}

// NewResponse creates the reply to a call of type t
func NewResponse(t MessageType, docs []document.Document, err error) *Message {
	msg := &Message{
		MsgType: t,
		Docs:    docs,
	}
	if err != nil {
		msg.Err = err.Error()
		msg.Code = uint64(adapter.CodeOf(err))
	}
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(code adapter.RetCode, err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
		Code:    uint64(code),
	}
}

// Failed reports whether the message carries an error
func (m *Message) Failed() bool {
	return m.MsgType == MsgTError || m.Err != ""
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in worker communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTReady:
		return "ready"
	case MsgTInit:
		return "init"
	case MsgTWriteDocs:
		return "writeDocs"
	case MsgTFindDocs:
		return "findDocs"
	case MsgTQueryRegex:
		return "queryRegex"
	case MsgTQueryIndex:
		return "queryIndex"
	case MsgTQueryRegexIndex:
		return "queryRegexIndex"
	case MsgTClear:
		return "clear"
	case MsgTError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// Names of operations this build does not know decode to MsgTUnknown, like an
// out of range number does in the binary encoding.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	*t = MsgTUnknown
	for candidate := MsgTUnknown + 1; candidate <= msgTLast; candidate++ {
		if candidate.String() == s {
			*t = candidate
			break
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	MsgTUnknown MessageType = iota
	MsgTReady               // The worker accepts calls (always correlation id 0)
	MsgTError               // The call could not be executed at all

	// Adapter operations

	MsgTInit
	MsgTWriteDocs
	MsgTFindDocs
	MsgTQueryRegex
	MsgTQueryIndex
	MsgTQueryRegexIndex
	MsgTClear

	msgTLast = MsgTClear
)

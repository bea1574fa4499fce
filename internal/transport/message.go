package transport

import (
	"encoding/json"
	"time"

	"github.com/PayRpc/a2a-fabric/internal/valuetype"
)

// MessageType tags the A2A purpose of a JSON-RPC message (spec section 3).
type MessageType string

const (
	TypeRequest               MessageType = "request"
	TypeResponse              MessageType = "response"
	TypeNotification          MessageType = "notification"
	TypeDiscovery             MessageType = "discovery"
	TypeRegistration          MessageType = "registration"
	TypeHeartbeat             MessageType = "heartbeat"
	TypeCapabilityQuery       MessageType = "capability_query"
	TypeWorkflowCoordination  MessageType = "workflow_coordination"
	TypeResourceNegotiation   MessageType = "resource_negotiation"
	TypeSecurityHandshake     MessageType = "security_handshake"
)

// Priority tags relative urgency of a message (spec section 3).
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Route records the path a message has hopped through and caps how many
// more hops it may take.
type Route struct {
	Path     []string `json:"path,omitempty"`
	HopCount int      `json:"hopCount"`
	MaxHops  int      `json:"maxHops"`
}

// ExceededMaxHops reports whether the route has run out of budget.
func (r Route) ExceededMaxHops() bool {
	return r.MaxHops > 0 && r.HopCount >= r.MaxHops
}

// RPCError is the JSON-RPC 2.0 error object (spec section 6).
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

// ID is the JSON-RPC id: string, number, or null. It round-trips through
// JSON without losing its original representation.
type ID struct {
	raw json.RawMessage
}

// NewStringID wraps a string id.
func NewStringID(s string) ID {
	b, _ := json.Marshal(s)
	return ID{raw: b}
}

// NewNumberID wraps a numeric id.
func NewNumberID(n float64) ID {
	b, _ := json.Marshal(n)
	return ID{raw: b}
}

// IsNull reports whether the id is JSON null or unset.
func (i ID) IsNull() bool { return len(i.raw) == 0 || string(i.raw) == "null" }

func (i ID) MarshalJSON() ([]byte, error) {
	if len(i.raw) == 0 {
		return []byte("null"), nil
	}
	return i.raw, nil
}

func (i *ID) UnmarshalJSON(data []byte) error {
	i.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (i ID) String() string { return string(i.raw) }

// Message is the JSON-RPC 2.0 superset every protocol adapter serializes
// (spec section 3 / section 6).
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  valuetype.Value `json:"params,omitempty"`
	Result  valuetype.Value `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      ID              `json:"id,omitempty"`

	From        string      `json:"from"`
	To          string      `json:"to"`
	Timestamp   int64       `json:"timestamp"`
	MessageType MessageType `json:"messageType"`
	Priority    Priority    `json:"priority,omitempty"`
	Route       *Route      `json:"route,omitempty"`
	Signature   string      `json:"signature,omitempty"`
	Nonce       string      `json:"nonce,omitempty"`
}

// BroadcastPeer is the reserved "to" value meaning every connected peer.
const BroadcastPeer = "broadcast"

// NewRequest builds a well-formed JSON-RPC request with A2A envelope
// fields populated.
func NewRequest(from, to, method string, params valuetype.Value, id ID) Message {
	return Message{
		JSONRPC:     "2.0",
		Method:      method,
		Params:      params,
		ID:          id,
		From:        from,
		To:          to,
		Timestamp:   time.Now().UnixNano(),
		MessageType: TypeRequest,
	}
}

// NewNotification builds a JSON-RPC notification (no id).
func NewNotification(from, to, method string, params valuetype.Value) Message {
	return Message{
		JSONRPC:     "2.0",
		Method:      method,
		Params:      params,
		From:        from,
		To:          to,
		Timestamp:   time.Now().UnixNano(),
		MessageType: TypeNotification,
	}
}

// NewResult builds a success response matching a request's id.
func NewResult(from, to string, id ID, result valuetype.Value) Message {
	return Message{
		JSONRPC:     "2.0",
		Result:      result,
		ID:          id,
		From:        from,
		To:          to,
		Timestamp:   time.Now().UnixNano(),
		MessageType: TypeResponse,
	}
}

// NewError builds an error response matching a request's id.
func NewError(from, to string, id ID, code int, message string, data any) Message {
	return Message{
		JSONRPC: "2.0",
		Error: &RPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID:          id,
		From:        from,
		To:          to,
		Timestamp:   time.Now().UnixNano(),
		MessageType: TypeResponse,
	}
}

// IsResponse reports whether m carries a result or an error (mutually
// exclusive per spec section 6).
func (m Message) IsResponse() bool {
	return m.MessageType == TypeResponse
}

// Marshal serializes m to JSON bytes (spec section 8 round-trip law:
// Serialize(Deserialize(bytes)) = bytes for any well-formed message).
func (m Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal decodes JSON bytes into a Message.
func Unmarshal(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}

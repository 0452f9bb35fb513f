// Package codec implements the two pluggable wire variants the
// gateway may run with - framed-binary and JSON-text (§6, §9 Open
// Question 1). SPEC_FULL resolves the open question by making the
// choice an explicit per-deployment config knob
// (config.Config.GatewayTransport) rather than letting both variants
// coexist in one process.
package codec

// Code is the envelope's message code (§6).
type Code int32

const (
	CodeError            Code = -1
	CodeSuccess          Code = 0
	CodeRegister         Code = 200
	CodeHeartBeat        Code = 206
	CodeHeartBeatSuccess Code = 207
	CodeRegisterSuccess  Code = 209
	CodeForceLogout      Code = 104
	CodeSingle           Code = 1000
	CodeGroup            Code = 1001
	CodeVideo            Code = 1002
	CodeGroupOp          Code = 1005
	CodeMsgOp            Code = 1006
)

// Frame is the decoded form of IMessageWrap (§6), transport-agnostic.
type Frame struct {
	Code       Code              `json:"code"`
	Token      string            `json:"token,omitempty"`
	Data       interface{}       `json:"data,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Message    string            `json:"message,omitempty"`
	RequestId  string            `json:"request_id,omitempty"`
	Timestamp  int64             `json:"timestamp,omitempty"`
	ClientIP   string            `json:"client_ip,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	DeviceName string            `json:"device_name,omitempty"`
	DeviceType string            `json:"device_type,omitempty"`
}

// Codec encodes/decodes Frames to/from wire bytes and reports which
// gorilla/websocket message type (binary or text) it uses, since the
// two variants differ on that axis (§6).
type Codec interface {
	// Decode parses one inbound wire message into a Frame.
	Decode(raw []byte) (Frame, error)
	// Encode renders a Frame as an outbound wire message.
	Encode(f Frame) ([]byte, error)
	// WebsocketMessageType is gorilla/websocket's BinaryMessage or TextMessage.
	WebsocketMessageType() int
}

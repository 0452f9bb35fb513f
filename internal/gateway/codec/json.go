package codec

import (
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/meshim/imcore/internal/imtypes"
)

// JSONCodec implements the JSON-text gateway variant (§6): each frame
// is literally a ChatMessage, not an IMessageWrap envelope. To let the
// session loop's state machine (§4.3) stay codec-agnostic, this codec
// maps ChatMessage onto the same Frame shape the binary variant uses,
// inferring Code from ChatType. Register/heartbeat frames are a thin
// control envelope recognised by its "type" field and mapped onto
// Frame.Code; Frame.Metadata is not used by this codec.
type JSONCodec struct{}

// controlEnvelope is the JSON-text variant's equivalent of a
// REGISTER/HEART_BEAT control frame: the wire format has no envelope,
// so control intents are distinguished by an explicit "type" field
// absent from ordinary ChatMessage traffic.
type controlEnvelope struct {
	Type       string `json:"type"`
	Token      string `json:"token,omitempty"`
	Message    string `json:"message,omitempty"`
	DeviceName string `json:"device_name,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
}

func (JSONCodec) Decode(raw []byte) (Frame, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.Type != "" {
		var ctrl controlEnvelope
		if err := json.Unmarshal(raw, &ctrl); err != nil {
			return Frame{}, err
		}
		f := Frame{Token: ctrl.Token, Message: ctrl.Message, DeviceName: ctrl.DeviceName, DeviceType: ctrl.DeviceType}
		switch ctrl.Type {
		case "register":
			f.Code = CodeRegister
		case "heartbeat":
			f.Code = CodeHeartBeat
		default:
			f.Code = CodeError
		}
		return f, nil
	}

	var msg imtypes.ChatMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Frame{}, err
	}
	code := CodeSingle
	if msg.ChatType == imtypes.ChatTypeGroup {
		code = CodeGroup
	}
	return Frame{Code: code, Data: msg, Timestamp: msg.TimestampMs}, nil
}

func (JSONCodec) Encode(f Frame) ([]byte, error) {
	switch f.Code {
	case CodeSingle, CodeGroup, CodeVideo, CodeGroupOp, CodeMsgOp:
		if msg, ok := f.Data.(imtypes.ChatMessage); ok {
			return json.Marshal(msg)
		}
		return json.Marshal(f.Data)
	default:
		ctrl := controlEnvelope{Message: f.Message}
		switch f.Code {
		case CodeRegisterSuccess:
			ctrl.Type = "register_success"
		case CodeHeartBeatSuccess:
			ctrl.Type = "heartbeat_success"
		case CodeForceLogout:
			ctrl.Type = "force_logout"
		case CodeError:
			ctrl.Type = "error"
		default:
			ctrl.Type = "unknown"
		}
		return json.Marshal(ctrl)
	}
}

func (JSONCodec) WebsocketMessageType() int {
	return websocket.TextMessage
}

// Package broker implements the broker consumer loop (§4.4) and the
// publish side used by the fan-out API (§4.5 step 6, §4.6 step 5).
// The AMQP client is github.com/rabbitmq/amqp091-go, sourced from the
// wider example pack (no AMQP/MQTT client exists in the teacher's own
// dependency set) - see DESIGN.md.
package broker

import (
	"encoding/json"

	"github.com/meshim/imcore/internal/gateway/codec"
)

// Envelope is the JSON shape published to and consumed from the
// broker (§4.4 "decode JSON envelope").
type Envelope struct {
	Code       int32             `json:"code"`
	Token      string            `json:"token,omitempty"`
	Data       interface{}       `json:"data,omitempty"`
	Ids        []string          `json:"ids"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Message    string            `json:"message,omitempty"`
	RequestId  string            `json:"request_id,omitempty"`
	Timestamp  int64             `json:"timestamp,omitempty"`
	ClientIP   string            `json:"client_ip,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	DeviceName string            `json:"device_name,omitempty"`
	DeviceType string            `json:"device_type,omitempty"`
}

// DecodeEnvelope parses a raw AMQP delivery body.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(body, &e)
	return e, err
}

// Encode serializes an Envelope for publish.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// toFrame translates the JSON envelope to the framed form used on the
// gateway wire (§4.4 "Translate to the framed binary form used on the
// wire" - applies equally to the JSON-text variant's Frame shape).
func (e Envelope) toFrame() codec.Frame {
	return codec.Frame{
		Code:       codec.Code(e.Code),
		Token:      e.Token,
		Data:       e.Data,
		Metadata:   e.Metadata,
		Message:    e.Message,
		RequestId:  e.RequestId,
		Timestamp:  e.Timestamp,
		ClientIP:   e.ClientIP,
		UserAgent:  e.UserAgent,
		DeviceName: e.DeviceName,
		DeviceType: e.DeviceType,
	}
}

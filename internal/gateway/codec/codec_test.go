package codec

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshim/imcore/internal/imtypes"
)

func TestBinaryCodec_RoundTrip(t *testing.T) {
	c := BinaryCodec{}
	in := Frame{
		Code:      CodeRegister,
		Token:     "tok-123",
		RequestId: "req-1",
		Metadata:  map[string]string{"k": "v"},
		Data:      map[string]interface{}{"hello": "world"},
		Timestamp: 1700000000000,
	}

	raw, err := c.Encode(in)
	require.NoError(t, err)

	out, err := c.Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, in.Code, out.Code)
	assert.Equal(t, in.Token, out.Token)
	assert.Equal(t, in.RequestId, out.RequestId)
	assert.Equal(t, in.Metadata, out.Metadata)
	assert.Equal(t, in.Timestamp, out.Timestamp)
	assert.Equal(t, map[string]interface{}{"hello": "world"}, out.Data)
}

func TestBinaryCodec_Decode_TruncatedFrame(t *testing.T) {
	_, err := BinaryCodec{}.Decode([]byte{0x00, 0x01})
	require.Error(t, err)
}

func TestJSONCodec_Decode_RegisterControlEnvelope(t *testing.T) {
	raw := []byte(`{"type":"register","token":"tok-abc","device_type":"mobile"}`)
	f, err := JSONCodec{}.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, CodeRegister, f.Code)
	assert.Equal(t, "tok-abc", f.Token)
	assert.Equal(t, "mobile", f.DeviceType)
}

func TestJSONCodec_Decode_HeartbeatControlEnvelope(t *testing.T) {
	raw := []byte(`{"type":"heartbeat"}`)
	f, err := JSONCodec{}.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, CodeHeartBeat, f.Code)
}

func TestJSONCodec_ChatMessageRoundTrip(t *testing.T) {
	c := JSONCodec{}
	msg := imtypes.ChatMessage{
		MessageId: "m1", FromUserId: "1", ToUserId: "2",
		Message: "hi", TimestampMs: 1700000000000, ChatType: imtypes.ChatTypeSingle,
	}
	frame := Frame{Code: CodeSingle, Data: msg, Timestamp: msg.TimestampMs}

	raw, err := c.Encode(frame)
	require.NoError(t, err)

	out, err := c.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, CodeSingle, out.Code)
	decoded, ok := out.Data.(imtypes.ChatMessage)
	require.True(t, ok)
	assert.Equal(t, msg, decoded)
}

func TestJSONCodec_WebsocketMessageType_IsText(t *testing.T) {
	assert.Equal(t, websocket.TextMessage, JSONCodec{}.WebsocketMessageType())
	assert.NotEqual(t, BinaryCodec{}.WebsocketMessageType(), JSONCodec{}.WebsocketMessageType())
}

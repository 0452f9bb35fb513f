package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"

	"github.com/gorilla/websocket"
)

// BinaryCodec implements the framed-binary gateway variant (§6, §9
// Design Note "Tagged envelope on the wire"): a fixed-order sequence
// of length-prefixed fields followed by the JSON-encoded Data payload,
// whose shape depends on Code. This keeps the wire format an exact
// byte sequence (as the design note requires); Data itself is an
// untyped value whose JSON shape is chosen by Code.
type BinaryCodec struct{}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.BigEndian, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil && n > 0 {
		return "", err
	}
	return string(b), nil
}

// Encode renders a Frame as the binary wire format.
func (BinaryCodec) Encode(f Frame) ([]byte, error) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, int32(f.Code))
	writeString(buf, f.Token)
	writeString(buf, f.Message)
	writeString(buf, f.RequestId)
	writeString(buf, f.ClientIP)
	writeString(buf, f.UserAgent)
	writeString(buf, f.DeviceName)
	writeString(buf, f.DeviceType)
	binary.Write(buf, binary.BigEndian, f.Timestamp)

	meta, err := json.Marshal(f.Metadata)
	if err != nil {
		return nil, err
	}
	binary.Write(buf, binary.BigEndian, uint32(len(meta)))
	buf.Write(meta)

	data, err := json.Marshal(f.Data)
	if err != nil {
		return nil, err
	}
	binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)

	return buf.Bytes(), nil
}

// Decode parses the binary wire format back into a Frame.
func (BinaryCodec) Decode(raw []byte) (Frame, error) {
	r := bytes.NewReader(raw)
	var f Frame

	var code int32
	if err := binary.Read(r, binary.BigEndian, &code); err != nil {
		return f, errors.New("codec: truncated frame: missing code")
	}
	f.Code = Code(code)

	var err error
	if f.Token, err = readString(r); err != nil {
		return f, err
	}
	if f.Message, err = readString(r); err != nil {
		return f, err
	}
	if f.RequestId, err = readString(r); err != nil {
		return f, err
	}
	if f.ClientIP, err = readString(r); err != nil {
		return f, err
	}
	if f.UserAgent, err = readString(r); err != nil {
		return f, err
	}
	if f.DeviceName, err = readString(r); err != nil {
		return f, err
	}
	if f.DeviceType, err = readString(r); err != nil {
		return f, err
	}
	if err := binary.Read(r, binary.BigEndian, &f.Timestamp); err != nil {
		return f, err
	}

	var metaLen uint32
	if err := binary.Read(r, binary.BigEndian, &metaLen); err != nil {
		return f, err
	}
	metaBytes := make([]byte, metaLen)
	if metaLen > 0 {
		if _, err := r.Read(metaBytes); err != nil {
			return f, err
		}
	}
	if len(metaBytes) > 0 {
		if err := json.Unmarshal(metaBytes, &f.Metadata); err != nil {
			return f, err
		}
	}

	var dataLen uint32
	if err := binary.Read(r, binary.BigEndian, &dataLen); err != nil {
		return f, err
	}
	dataBytes := make([]byte, dataLen)
	if dataLen > 0 {
		if _, err := r.Read(dataBytes); err != nil {
			return f, err
		}
	}
	if len(dataBytes) > 0 {
		var data interface{}
		if err := json.Unmarshal(dataBytes, &data); err != nil {
			return f, err
		}
		f.Data = data
	}

	return f, nil
}

func (BinaryCodec) WebsocketMessageType() int {
	return websocket.BinaryMessage
}

// Package imtypes holds the core identity and session types shared
// across the gateway, fan-out API and storage layers.
package imtypes

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strconv"
)

// ExtId is the canonical 64-bit external identifier for a user.
// Canonical values are snowflakes minted by internal/idgen; legacy
// usernames are translated to an ExtId by internal/identity's Resolver.
type ExtId uint64

// ZeroExtId is the invalid/unset ExtId.
const ZeroExtId ExtId = 0

const (
	extIdBase64Unpadded = 11
	extIdBase64Padded   = 12
)

// IsZero reports whether the id is unset.
func (id ExtId) IsZero() bool {
	return id == 0
}

// MarshalBinary encodes the id as 8 little-endian bytes, matching the
// encoding used inside signed auth tokens (internal/authtoken).
func (id ExtId) MarshalBinary() ([]byte, error) {
	dst := make([]byte, 8)
	binary.LittleEndian.PutUint64(dst, uint64(id))
	return dst, nil
}

// UnmarshalBinary decodes 8 little-endian bytes into the id.
func (id *ExtId) UnmarshalBinary(b []byte) error {
	if len(b) < 8 {
		return errors.New("imtypes: ExtId.UnmarshalBinary: invalid length")
	}
	*id = ExtId(binary.LittleEndian.Uint64(b))
	return nil
}

// MarshalText renders the id as an unpadded URL-safe base64 string,
// used on the wire. Broker topic and client-id components use the
// decimal form instead (InboxTopic, BrokerClientId).
func (id ExtId) MarshalText() ([]byte, error) {
	if id == 0 {
		return []byte{}, nil
	}
	src := make([]byte, 8)
	binary.LittleEndian.PutUint64(src, uint64(id))
	dst := make([]byte, base64.URLEncoding.EncodedLen(8))
	base64.URLEncoding.Encode(dst, src)
	return dst[:extIdBase64Unpadded], nil
}

// UnmarshalText is the inverse of MarshalText.
func (id *ExtId) UnmarshalText(src []byte) error {
	if len(src) != extIdBase64Unpadded {
		return errors.New("imtypes: ExtId.UnmarshalText: invalid length")
	}
	padded := make([]byte, extIdBase64Unpadded, extIdBase64Padded)
	copy(padded, src)
	for len(padded) < extIdBase64Padded {
		padded = append(padded, '=')
	}
	dec := make([]byte, base64.URLEncoding.DecodedLen(len(padded)))
	n, err := base64.URLEncoding.Decode(dec, padded)
	if err != nil || n < 8 {
		return errors.New("imtypes: ExtId.UnmarshalText: failed to decode")
	}
	*id = ExtId(binary.LittleEndian.Uint64(dec))
	return nil
}

// MarshalJSON renders the id as a quoted base64 string.
func (id ExtId) MarshalJSON() ([]byte, error) {
	txt, _ := id.MarshalText()
	return append(append([]byte{'"'}, txt...), '"'), nil
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (id *ExtId) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return errors.New("imtypes: ExtId.UnmarshalJSON: unrecognized")
	}
	return id.UnmarshalText(b[1 : len(b)-1])
}

// String returns the base64 text form.
func (id ExtId) String() string {
	txt, _ := id.MarshalText()
	return string(txt)
}

// ParseExtId parses the base64 text form produced by MarshalText.
func ParseExtId(s string) (ExtId, error) {
	var id ExtId
	if err := id.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return id, nil
}

// InboxTopic returns the broker topic name this id publishes/consumes
// on, e.g. "user/<n>/inbox" (§4.9, §6).
func (id ExtId) InboxTopic() string {
	return "user/" + strconv.FormatUint(uint64(id), 10) + "/inbox"
}

// BrokerClientId returns the stable per-user broker client id used for
// retained-session resumption across reconnects and device changes -
// "im-conn-<n>", never per-session (§4.4).
func (id ExtId) BrokerClientId() string {
	return "im-conn-" + strconv.FormatUint(uint64(id), 10)
}

// Package authtoken verifies the bearer tokens presented at REGISTER
// (gateway, §4.3) and on every fan-out REST call (§4.5, §4.6). Token
// *issuance* is out of core scope (§1 Non-goals); this package only
// authenticates tokens minted elsewhere.
//
// Layout, unchanged from the teacher's own auth_token.go:
//
//	[8:ext_id][4:expires][2:auth_level][2:serial][32:HMAC-SHA256 signature] = 48 bytes
package authtoken

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/meshim/imcore/internal/imerr"
	"github.com/meshim/imcore/internal/imtypes"
)

const (
	extIdStart, extIdEnd       = 0, 8
	expiresStart, expiresEnd   = 8, 12
	authLvlStart, authLvlEnd   = 12, 14
	serialStart, serialEnd     = 14, 16
	signStart                  = 16
	tokenLength                = 48
	minHmacKeyLength           = 32
)

// AuthLevel mirrors the teacher's coarse auth-level space; the core
// only distinguishes "authenticated" from "none".
type AuthLevel int

const (
	LevelNone AuthLevel = iota
	LevelAuth
	LevelRoot
)

// Claims is the decoded, verified content of a bearer token.
type Claims struct {
	ExtId     imtypes.ExtId
	AuthLevel AuthLevel
	Expires   time.Time
	// IsOpenId mirrors §4.1: when true the numeric claim is already
	// an ExtId and the resolver must not perform a database round trip.
	IsOpenId bool
}

// Verifier validates signed tokens against a salt and serial number,
// the same two knobs the teacher's TokenAuth.Init parses from config.
type Verifier struct {
	salt   []byte
	serial uint16
}

// NewVerifier constructs a Verifier. serialNumber lets all
// outstanding tokens be invalidated at once by bumping it.
func NewVerifier(salt []byte, serialNumber int) (*Verifier, error) {
	if len(salt) < minHmacKeyLength {
		return nil, imerr.InvalidInput("authtoken: signing key too short")
	}
	return &Verifier{salt: salt, serial: uint16(serialNumber)}, nil
}

// Verify checks a token's length, serial number and HMAC signature,
// and returns its claims iff all checks pass and it is unexpired.
func (v *Verifier) Verify(token []byte) (Claims, error) {
	if len(token) < tokenLength {
		return Claims{}, imerr.Unauthorized("authtoken: invalid length")
	}

	var extId imtypes.ExtId
	if err := extId.UnmarshalBinary(token[extIdStart:extIdEnd]); err != nil {
		return Claims{}, imerr.Wrap(imerr.KindUnauthorized, "authtoken: malformed ext id", err)
	}

	lvl := AuthLevel(binary.LittleEndian.Uint16(token[authLvlStart:authLvlEnd]))
	if lvl < LevelNone || lvl > LevelRoot {
		return Claims{}, imerr.Unauthorized("authtoken: invalid auth level")
	}

	if snum := binary.LittleEndian.Uint16(token[serialStart:serialEnd]); snum != v.serial {
		return Claims{}, imerr.Unauthorized("authtoken: serial number mismatch")
	}

	hasher := hmac.New(sha256.New, v.salt)
	hasher.Write(token[:signStart])
	if !hmac.Equal(token[signStart:tokenLength], hasher.Sum(nil)) {
		return Claims{}, imerr.Unauthorized("authtoken: invalid signature")
	}

	expires := time.Unix(int64(binary.LittleEndian.Uint32(token[expiresStart:expiresEnd])), 0).UTC()
	if expires.Before(time.Now().Add(time.Second)) {
		return Claims{}, imerr.Unauthorized("authtoken: expired")
	}

	return Claims{ExtId: extId, AuthLevel: lvl, Expires: expires, IsOpenId: true}, nil
}

// Issuer mints tokens. Kept for test fixtures; the production issuance
// path lives outside this core per §1 Non-goals.
type Issuer struct {
	salt   []byte
	serial uint16
}

func NewIssuer(salt []byte, serialNumber int) *Issuer {
	return &Issuer{salt: salt, serial: uint16(serialNumber)}
}

func (iss *Issuer) Issue(extId imtypes.ExtId, lvl AuthLevel, lifetime time.Duration) ([]byte, time.Time, error) {
	buf := new(bytes.Buffer)
	idBytes, _ := extId.MarshalBinary()
	if err := binary.Write(buf, binary.LittleEndian, idBytes); err != nil {
		return nil, time.Time{}, err
	}
	expires := time.Now().Add(lifetime).UTC().Round(time.Millisecond)
	binary.Write(buf, binary.LittleEndian, uint32(expires.Unix()))
	binary.Write(buf, binary.LittleEndian, uint16(lvl))
	binary.Write(buf, binary.LittleEndian, iss.serial)

	hasher := hmac.New(sha256.New, iss.salt)
	hasher.Write(buf.Bytes())
	binary.Write(buf, binary.LittleEndian, hasher.Sum(nil))

	return buf.Bytes(), expires, nil
}

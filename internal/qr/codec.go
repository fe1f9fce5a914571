package qr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/common"
)

// MaxPayloadLen is the largest payload accepted by Decode. It matches the
// ledger column that stores raw payloads.
const MaxPayloadLen = 500

// Token is the decoded content of a payload. It is never persisted.
type Token struct {
	PrincipalID   string `json:"id"`
	Authenticator string `json:"h"`
	EmittedAt     int64  `json:"t"`
}

// DeviceTime returns the emission time in unix milliseconds.
func (t Token) DeviceTime() int64 {
	return t.EmittedAt * 1000
}

// Authenticator returns base64(HMAC-SHA256(secret, decimal(windowID))).
func Authenticator(secret []byte, windowID int64) string {
	return base64.StdEncoding.EncodeToString(authenticatorMAC(secret, windowID))
}

func authenticatorMAC(secret []byte, windowID int64) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(windowID, 10)))
	return mac.Sum(nil)
}

// Encode builds the payload a principal's device displays during the window
// containing now.
func Encode(principalID string, secret []byte, now time.Time) (string, error) {
	if principalID == "" {
		return "", fmt.Errorf("encode: empty principal id")
	}
	if len(secret) == 0 {
		return "", fmt.Errorf("encode: %w", common.ErrNoActiveSecret)
	}

	w := WindowAtTime(now)
	tok := Token{
		PrincipalID:   principalID,
		Authenticator: Authenticator(secret, w.ID),
		EmittedAt:     now.Unix(),
	}

	raw, err := json.Marshal(tok)
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decode parses a payload. The returned token is untrusted until its
// authenticator has been checked by Validate. All failures wrap
// common.ErrMalformedPayload.
func Decode(payload string) (Token, error) {
	var tok Token

	if payload == "" || len(payload) > MaxPayloadLen {
		return tok, fmt.Errorf("%w: bad length %d", common.ErrMalformedPayload, len(payload))
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return tok, fmt.Errorf("%w: %v", common.ErrMalformedPayload, err)
	}

	if err := json.Unmarshal(raw, &tok); err != nil {
		return tok, fmt.Errorf("%w: %v", common.ErrMalformedPayload, err)
	}

	if tok.PrincipalID == "" || tok.Authenticator == "" || tok.EmittedAt <= 0 {
		return tok, fmt.Errorf("%w: missing fields", common.ErrMalformedPayload)
	}

	return tok, nil
}

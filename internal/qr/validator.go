package qr

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/common"
)

// Reason explains why a payload failed validation.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonMalformed        Reason = "MALFORMED"
	ReasonOutOfWindow      Reason = "OUT_OF_WINDOW"
	ReasonNoActiveSecret   Reason = "NO_ACTIVE_SECRET"
	ReasonBadAuthenticator Reason = "BAD_AUTHENTICATOR"
)

// Err maps a reason to its sentinel error, nil for ReasonNone.
func (r Reason) Err() error {
	switch r {
	case ReasonMalformed:
		return common.ErrMalformedPayload
	case ReasonOutOfWindow:
		return common.ErrOutOfWindow
	case ReasonNoActiveSecret:
		return common.ErrNoActiveSecret
	case ReasonBadAuthenticator:
		return common.ErrBadAuthenticator
	default:
		return nil
	}
}

// Outcome is the structured result of Validate. Invalid tokens are an
// expected steady state, so they are reported here rather than as errors.
type Outcome struct {
	Valid       bool
	Reason      Reason
	PrincipalID string
	DeviceTime  int64
	Window      Window
}

// SecretResolver supplies the active secret of a principal. Implementations
// return an error matching common.ErrNoActiveSecret or common.ErrorNotFound
// when the principal has none; any other error is treated as a store failure.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, principalID string) ([]byte, error)
}

// ResolverFunc adapts a function to SecretResolver.
type ResolverFunc func(ctx context.Context, principalID string) ([]byte, error)

func (f ResolverFunc) ResolveSecret(ctx context.Context, principalID string) ([]byte, error) {
	return f(ctx, principalID)
}

// StaticResolver resolves secrets from a fixed map.
type StaticResolver map[string][]byte

func (m StaticResolver) ResolveSecret(_ context.Context, principalID string) ([]byte, error) {
	s, ok := m[principalID]
	if !ok || len(s) == 0 {
		return nil, common.ErrNoActiveSecret
	}
	return s, nil
}

// Validate checks payload freshness against the window containing now and
// its authenticator against the secret supplied by resolver. It does not
// detect reuse; that belongs to the scan ledger.
//
// The returned error is non-nil only when the resolver fails for reasons
// other than a missing secret. Such failures are retryable.
func Validate(ctx context.Context, payload string, resolver SecretResolver, now time.Time) (Outcome, error) {
	tok, err := Decode(payload)
	if err != nil {
		return Outcome{Reason: ReasonMalformed}, nil
	}

	deviceTime := tok.DeviceTime()
	w := WindowAtTime(now)
	out := Outcome{PrincipalID: tok.PrincipalID, DeviceTime: deviceTime, Window: w}

	if !w.Contains(deviceTime) {
		out.Reason = ReasonOutOfWindow
		return out, nil
	}

	secret, err := resolver.ResolveSecret(ctx, tok.PrincipalID)
	if err != nil {
		if errors.Is(err, common.ErrNoActiveSecret) || errors.Is(err, common.ErrorNotFound) {
			out.Reason = ReasonNoActiveSecret
			return out, nil
		}
		return Outcome{}, err
	}
	if len(secret) == 0 {
		out.Reason = ReasonNoActiveSecret
		return out, nil
	}

	expected := Authenticator(secret, WindowAt(deviceTime).ID)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(tok.Authenticator)) != 1 {
		out.Reason = ReasonBadAuthenticator
		return out, nil
	}

	out.Valid = true
	return out, nil
}

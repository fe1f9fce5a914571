package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/logging"
	"github.com/dmitrijs2005/qrpass/internal/qr"
	"github.com/dmitrijs2005/qrpass/internal/server/models"
)

// ReasonDuplicate is reported for an authentic token whose key is already
// pending in the ledger.
const ReasonDuplicate = "DUPLICATE"

// ScanRequest is one online verification attempt.
type ScanRequest struct {
	Payload      string
	VerifierID   string
	VerifierName string
	ClientIP     string
	UserAgent    string
	Location     string
}

// ScanResult combines the validator outcome with the ledger decision.
// Status is empty when the attempt was not recorded.
type ScanResult struct {
	Outcome     qr.Outcome
	Status      models.RecordStatus
	EntryID     string
	SubjectName string
}

// Accepted reports whether the scan proves presence.
func (r ScanResult) Accepted() bool {
	return r.Outcome.Valid && r.Status == models.RecordAccepted
}

// Reason is what the verifying device displays; empty when accepted.
func (r ScanResult) Reason() string {
	if r.Outcome.Valid && r.Status == models.RecordDuplicate {
		return ReasonDuplicate
	}
	return string(r.Outcome.Reason)
}

// TokenService issues presence tokens and validates them online.
type TokenService struct {
	secrets  *SecretService
	ledger   *LedgerService
	registry *RegistryService
	log      logging.Logger
	now      func() time.Time
}

func NewTokenService(secrets *SecretService, ledger *LedgerService, registry *RegistryService, log logging.Logger) *TokenService {
	return &TokenService{secrets: secrets, ledger: ledger, registry: registry, log: log, now: time.Now}
}

// CurrentToken returns the payload for the principal's current window. A
// principal without an active secret gets one first.
func (s *TokenService) CurrentToken(ctx context.Context, principalID string) (string, qr.Window, error) {
	sec, err := s.secrets.ActiveSecret(ctx, principalID)
	if errors.Is(err, common.ErrNoActiveSecret) {
		sec, err = s.secrets.Rotate(ctx, principalID, principalID)
	}
	if err != nil {
		return "", qr.Window{}, err
	}
	defer common.WipeByteArray(sec.Key)

	now := s.now()
	payload, err := qr.Encode(principalID, sec.Key, now)
	if err != nil {
		return "", qr.Window{}, fmt.Errorf("error encoding token: %w", err)
	}
	return payload, qr.WindowAtTime(now), nil
}

// ValidateAndRecord validates req.Payload against the secret store and
// records the attempt as a pending ledger entry. Undecodable payloads and
// entries too far from the server clock are not recorded.
func (s *TokenService) ValidateAndRecord(ctx context.Context, req ScanRequest) (ScanResult, error) {
	now := s.now()
	out, err := qr.Validate(ctx, req.Payload, s.secrets, now)
	if err != nil {
		return ScanResult{}, fmt.Errorf("error resolving secret: %w", err)
	}
	res := ScanResult{Outcome: out}

	if out.Reason == qr.ReasonMalformed {
		s.log.Debug(ctx, "malformed payload", "verifier_id", req.VerifierID)
		return res, nil
	}

	if p, err := s.registry.Lookup(ctx, out.PrincipalID); err == nil {
		res.SubjectName = p.DisplayName
	} else if !errors.Is(err, common.ErrorNotFound) {
		return ScanResult{}, fmt.Errorf("error looking up principal: %w", err)
	}

	e := &models.ScanEntry{
		SubjectID:    out.PrincipalID,
		SubjectName:  res.SubjectName,
		VerifierID:   req.VerifierID,
		VerifierName: req.VerifierName,
		TokenPayload: req.Payload,
		DeviceTime:   out.DeviceTime,
		Valid:        out.Valid,
		Reason:       string(out.Reason),
		ClientIP:     req.ClientIP,
		UserAgent:    req.UserAgent,
		Location:     req.Location,
		CreatedAt:    now,
	}
	if err := e.CheckSkew(now); err != nil {
		s.log.Debug(ctx, "scan not recorded", "subject_id", out.PrincipalID, "error", err)
		return res, nil
	}

	status, err := s.ledger.Record(ctx, e)
	if err != nil {
		return ScanResult{}, err
	}
	res.Status = status
	res.EntryID = e.ID

	if out.Reason == qr.ReasonBadAuthenticator {
		s.log.Warn(ctx, "bad authenticator", "subject_id", out.PrincipalID, "verifier_id", req.VerifierID)
	}
	return res, nil
}

// Package services contains server-side business logic: the secret store,
// token issuing and online validation, the scan ledger and the sync
// reconciler.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/cryptox"
	"github.com/dmitrijs2005/qrpass/internal/dbx"
	"github.com/dmitrijs2005/qrpass/internal/logging"
	"github.com/dmitrijs2005/qrpass/internal/server/models"
	"github.com/dmitrijs2005/qrpass/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SecretService owns principal secrets. Keys are stored encrypted under a
// per-principal subkey of the master key, with the principal id as
// additional data.
type SecretService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	masterKey   []byte
	timeout     time.Duration
	log         logging.Logger
	locks       *keyMutex
	now         func() time.Time
}

func NewSecretService(db *sql.DB, m repomanager.RepositoryManager, masterKey []byte, timeout time.Duration, log logging.Logger) *SecretService {
	return &SecretService{
		db:          db,
		repomanager: m,
		masterKey:   masterKey,
		timeout:     timeout,
		log:         log,
		locks:       newKeyMutex(),
		now:         time.Now,
	}
}

func (s *SecretService) seal(principalID string, key []byte) ([]byte, []byte, error) {
	subkey, err := cryptox.DeriveSubkey(s.masterKey, principalID)
	if err != nil {
		return nil, nil, err
	}
	defer common.WipeByteArray(subkey)
	return cryptox.Seal(subkey, key, []byte(principalID))
}

func (s *SecretService) open(sec *models.Secret) ([]byte, error) {
	subkey, err := cryptox.DeriveSubkey(s.masterKey, sec.PrincipalID)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(subkey)
	key, err := cryptox.Open(subkey, sec.Ciphertext, sec.Nonce, []byte(sec.PrincipalID))
	if err != nil {
		return nil, fmt.Errorf("error decrypting secret %s: %w", sec.ID, err)
	}
	return key, nil
}

// ActiveSecret returns the principal's usable secret with Key populated.
// A principal without one yields an error matching both
// common.ErrNoActiveSecret and common.ErrorNotFound.
func (s *SecretService) ActiveSecret(ctx context.Context, principalID string) (*models.Secret, error) {
	ctx, cancel := dbx.WithTimeout(ctx, s.timeout)
	defer cancel()

	sec, err := s.repomanager.Secrets(s.db).GetActive(ctx, principalID, s.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: %w", common.ErrNoActiveSecret, common.ErrorNotFound)
		}
		return nil, err
	}

	key, err := s.open(sec)
	if err != nil {
		return nil, err
	}
	sec.Key = key
	return sec, nil
}

// ResolveSecret makes SecretService the online qr.SecretResolver.
func (s *SecretService) ResolveSecret(ctx context.Context, principalID string) ([]byte, error) {
	sec, err := s.ActiveSecret(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return sec.Key, nil
}

// Rotate revokes the principal's current secret, if any, and creates a new
// one valid for common.SecretLifetime. Rotations of one principal are
// serialized in process and by a row lock on the principal; the storage
// layer also refuses a second non-revoked secret.
func (s *SecretService) Rotate(ctx context.Context, principalID, actor string) (sec *models.Secret, err error) {
	ctx, span := tracer().Start(ctx, "SecretService.Rotate",
		trace.WithAttributes(attribute.String("principal.id", principalID), attribute.String("actor", actor)))
	defer func() { endSpan(span, err) }()

	unlock := s.locks.Lock(principalID)
	defer unlock()

	now := s.now()
	key := common.GenerateRandByteArray(common.SecretSize)
	ciphertext, nonce, err := s.seal(principalID, key)
	if err != nil {
		return nil, fmt.Errorf("error encrypting secret: %w", err)
	}

	sec = &models.Secret{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		Key:         key,
		Ciphertext:  ciphertext,
		Nonce:       nonce,
		CreatedAt:   now,
		ExpiresAt:   now.Add(common.SecretLifetime),
		CreatedBy:   actor,
	}

	ctx, cancel := dbx.WithTimeout(ctx, s.timeout)
	defer cancel()

	var revoked int64
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		principals := s.repomanager.Principals(tx)
		if err := principals.Lock(ctx, principalID); err != nil {
			return fmt.Errorf("error locking principal: %w", err)
		}
		p, err := principals.Get(ctx, principalID)
		if err != nil {
			return fmt.Errorf("error loading principal: %w", err)
		}
		if !p.Active {
			return fmt.Errorf("%w: principal %s is suspended", common.ErrorForbidden, principalID)
		}

		secrets := s.repomanager.Secrets(tx)
		revoked, err = secrets.RevokeActive(ctx, principalID, now)
		if err != nil {
			return fmt.Errorf("error revoking secret: %w", err)
		}
		if err := secrets.Create(ctx, sec); err != nil {
			return fmt.Errorf("error creating secret: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "secret rotated",
		"principal_id", principalID, "actor", actor, "revoked", revoked, "expires_at", sec.ExpiresAt)
	return sec, nil
}

// Revoke revokes the principal's active secret without a replacement. With
// suspend the principal is also deactivated, so scheduled rotation skips it.
func (s *SecretService) Revoke(ctx context.Context, principalID, actor string, suspend bool) (err error) {
	ctx, span := tracer().Start(ctx, "SecretService.Revoke",
		trace.WithAttributes(attribute.String("principal.id", principalID), attribute.Bool("suspend", suspend)))
	defer func() { endSpan(span, err) }()

	unlock := s.locks.Lock(principalID)
	defer unlock()

	ctx, cancel := dbx.WithTimeout(ctx, s.timeout)
	defer cancel()

	var revoked int64
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		principals := s.repomanager.Principals(tx)
		if err := principals.Lock(ctx, principalID); err != nil {
			return fmt.Errorf("error locking principal: %w", err)
		}
		var err error
		revoked, err = s.repomanager.Secrets(tx).RevokeActive(ctx, principalID, s.now())
		if err != nil {
			return fmt.Errorf("error revoking secret: %w", err)
		}
		if suspend {
			if err := principals.SetActive(ctx, principalID, false); err != nil {
				return fmt.Errorf("error suspending principal: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info(ctx, "secret revoked", "principal_id", principalID, "actor", actor, "revoked", revoked, "suspended", suspend)
	return nil
}

// RotateExpiring rotates every active principal whose secret is missing or
// expires within the given lead time. Failures are collected and do not
// stop the run.
func (s *SecretService) RotateExpiring(ctx context.Context, within time.Duration, actor string) ([]string, error) {
	lookupCtx, cancel := dbx.WithTimeout(ctx, s.timeout)
	ids, err := s.repomanager.Secrets(s.db).DueForRotation(lookupCtx, s.now().Add(within))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("error listing due principals: %w", err)
	}

	var rotated []string
	var errs []error
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := s.Rotate(ctx, id, actor); err != nil {
			s.log.Error(ctx, "scheduled rotation failed", "principal_id", id, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		rotated = append(rotated, id)
	}
	return rotated, errors.Join(errs...)
}

// ActiveSecrets snapshots the usable secrets of active principals for the
// offline cache.
func (s *SecretService) ActiveSecrets(ctx context.Context) ([]models.CachedSecret, error) {
	ctx, cancel := dbx.WithTimeout(ctx, s.timeout)
	defer cancel()

	principals, err := s.repomanager.Principals(s.db).ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing principals: %w", err)
	}
	names := make(map[string]string, len(principals))
	for _, p := range principals {
		names[p.ID] = p.DisplayName
	}

	secrets, err := s.repomanager.Secrets(s.db).ListActive(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("error listing secrets: %w", err)
	}

	result := make([]models.CachedSecret, 0, len(secrets))
	for _, sec := range secrets {
		name, ok := names[sec.PrincipalID]
		if !ok {
			continue
		}
		key, err := s.open(sec)
		if err != nil {
			return nil, err
		}
		result = append(result, models.CachedSecret{
			PrincipalID: sec.PrincipalID,
			DisplayName: name,
			Key:         key,
			ExpiresAt:   sec.ExpiresAt,
		})
	}
	return result, nil
}

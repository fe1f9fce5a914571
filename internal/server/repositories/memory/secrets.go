package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/server/models"
)

type SecretRepository struct {
	s *Store
}

func copySecret(s *models.Secret) *models.Secret {
	c := *s
	c.Ciphertext = append([]byte(nil), s.Ciphertext...)
	c.Nonce = append([]byte(nil), s.Nonce...)
	c.Key = nil
	if s.RotatedAt != nil {
		t := *s.RotatedAt
		c.RotatedAt = &t
	}
	return &c
}

func (r *SecretRepository) Create(ctx context.Context, s *models.Secret) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, x := range r.s.secrets {
		if x.PrincipalID == s.PrincipalID && !x.Revoked {
			return fmt.Errorf("%w: active secret for %s", common.ErrorAlreadyExists, s.PrincipalID)
		}
	}
	r.s.secrets = append(r.s.secrets, copySecret(s))
	return nil
}

func (r *SecretRepository) GetActive(ctx context.Context, principalID string, now time.Time) (*models.Secret, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, x := range r.s.secrets {
		if x.PrincipalID == principalID && x.ActiveAt(now) {
			return copySecret(x), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *SecretRepository) RevokeActive(ctx context.Context, principalID string, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, x := range r.s.secrets {
		if x.PrincipalID == principalID && !x.Revoked {
			t := at
			x.Revoked = true
			x.RotatedAt = &t
			n++
		}
	}
	return n, nil
}

func (r *SecretRepository) ListActive(ctx context.Context, now time.Time) ([]*models.Secret, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var result []*models.Secret
	for _, x := range r.s.secrets {
		if x.ActiveAt(now) {
			result = append(result, copySecret(x))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PrincipalID < result[j].PrincipalID })
	return result, nil
}

func (r *SecretRepository) DueForRotation(ctx context.Context, before time.Time) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var ids []string
	for id, p := range r.s.principals {
		if !p.Active {
			continue
		}
		covered := false
		for _, x := range r.s.secrets {
			if x.PrincipalID == id && x.ActiveAt(before) {
				covered = true
				break
			}
		}
		if !covered {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

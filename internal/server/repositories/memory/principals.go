package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/server/models"
)

type PrincipalRepository struct {
	s *Store
}

func (r *PrincipalRepository) Upsert(ctx context.Context, p *models.Principal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := *p
	if old, ok := r.s.principals[p.ID]; ok {
		c.CreatedAt = old.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	r.s.principals[p.ID] = &c
	return nil
}

func (r *PrincipalRepository) Get(ctx context.Context, id string) (*models.Principal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.principals[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *p
	return &c, nil
}

func (r *PrincipalRepository) Lock(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.principals[id]; !ok {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PrincipalRepository) SetActive(ctx context.Context, id string, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.principals[id]
	if !ok {
		return common.ErrorNotFound
	}
	p.Active = active
	return nil
}

func (r *PrincipalRepository) ListActive(ctx context.Context) ([]*models.Principal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var result []*models.Principal
	for _, p := range r.s.principals {
		if p.Active {
			c := *p
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

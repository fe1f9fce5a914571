package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/server/models"
)

type LedgerRepository struct {
	s *Store
}

func copyEntry(e *models.ScanEntry) *models.ScanEntry {
	c := *e
	if e.ServerTime != nil {
		t := *e.ServerTime
		c.ServerTime = &t
	}
	return &c
}

// Insert refuses a pending entry whose key is pending and, since LockKey does
// nothing here, a synced entry whose key is already synced.
func (r *LedgerRepository) Insert(ctx context.Context, e *models.ScanEntry) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := e.Key()
	for _, x := range r.s.entries {
		if x.Key() != key {
			continue
		}
		if x.SyncState == e.SyncState && e.SyncState != models.SyncError {
			return false, nil
		}
	}
	r.s.entries = append(r.s.entries, copyEntry(e))
	return true, nil
}

func (r *LedgerRepository) LockKey(ctx context.Context, key models.ScanKey) error { return nil }

func (r *LedgerRepository) FindByKey(ctx context.Context, key models.ScanKey) ([]*models.ScanEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var result []*models.ScanEntry
	for _, x := range r.s.entries {
		if x.Key() == key {
			result = append(result, copyEntry(x))
		}
	}
	return result, nil
}

func (r *LedgerRepository) find(id string) *models.ScanEntry {
	for _, x := range r.s.entries {
		if x.ID == id {
			return x
		}
	}
	return nil
}

func (r *LedgerRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	x := r.find(id)
	if x == nil || x.SyncState != models.SyncPending {
		return common.ErrorNotFound
	}
	t := at
	x.SyncState = models.SyncSynced
	x.ServerTime = &t
	x.SyncError = ""
	return nil
}

func (r *LedgerRepository) MarkError(ctx context.Context, id string, detail string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	x := r.find(id)
	if x == nil || x.SyncState != models.SyncPending {
		return common.ErrorNotFound
	}
	if rs := []rune(detail); len(rs) > 1000 {
		detail = string(rs[:1000])
	}
	x.SyncState = models.SyncError
	x.SyncError = detail
	return nil
}

func (r *LedgerRepository) pendingBefore(cutoff time.Time) []*models.ScanEntry {
	var result []*models.ScanEntry
	for _, x := range r.s.entries {
		if x.SyncState == models.SyncPending && x.CreatedAt.Before(cutoff) {
			result = append(result, x)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result
}

func (r *LedgerRepository) PendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.ScanEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	pending := r.pendingBefore(cutoff)
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	result := make([]*models.ScanEntry, 0, len(pending))
	for _, x := range pending {
		result = append(result, copyEntry(x))
	}
	return result, nil
}

func (r *LedgerRepository) BacklogStats(ctx context.Context, cutoff time.Time) (int64, *time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	pending := r.pendingBefore(cutoff)
	if len(pending) == 0 {
		return 0, nil, nil
	}
	oldest := pending[0].CreatedAt
	return int64(len(pending)), &oldest, nil
}

func (r *LedgerRepository) SettledAmong(ctx context.Context, keys []models.ScanKey) (map[models.ScanKey]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	type state struct {
		synced, pending bool
		verifier        string
	}
	seen := make(map[models.ScanKey]*state, len(keys))
	for _, k := range keys {
		seen[k] = &state{}
	}
	for _, x := range r.s.entries {
		st, ok := seen[x.Key()]
		if !ok {
			continue
		}
		switch x.SyncState {
		case models.SyncSynced:
			if !st.synced {
				st.verifier = x.VerifierID
			}
			st.synced = true
		case models.SyncPending:
			st.pending = true
		}
	}

	settled := make(map[models.ScanKey]string)
	for k, st := range seen {
		if st.synced && !st.pending {
			settled[k] = st.verifier
		}
	}
	return settled, nil
}

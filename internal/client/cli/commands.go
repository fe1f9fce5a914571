package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/client/client"
	"github.com/dmitrijs2005/qrpass/internal/common"
)

func (a *App) Scan(ctx context.Context, payload string) error {
	res, err := a.scanner.Scan(ctx, payload)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrLedgerFull):
			printlnFn("Offline ledger is full, sync before scanning more")
		case errors.Is(err, client.ErrUnauthorized):
			printlnFn("Device credential rejected")
		default:
			printlnFn("Scan failed:", err)
		}
		return err
	}

	where := "online"
	if res.Offline {
		where = "offline"
	}
	who := res.SubjectID
	if res.SubjectName != "" {
		who = fmt.Sprintf("%s (%s)", res.SubjectName, res.SubjectID)
	}

	switch {
	case res.Accepted:
		printlnFn(fmt.Sprintf("ACCEPTED %s [%s]", who, where))
	case res.Valid:
		printlnFn(fmt.Sprintf("ALREADY SCANNED %s [%s]", who, where))
	default:
		printlnFn(fmt.Sprintf("REJECTED %s: %s [%s]", who, res.Reason, where))
	}
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	summary, err := a.scanner.Sync(ctx)
	if err != nil {
		printlnFn("Sync failed:", err)
		return err
	}
	printlnFn(fmt.Sprintf("Synced: %d, duplicates: %d, errors: %d", summary.Synced, summary.Duplicates, summary.Errors))
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	n, err := a.scanner.RefreshCache(ctx)
	if err != nil {
		printlnFn("Refresh failed:", err)
		return err
	}
	printlnFn(fmt.Sprintf("Cached secrets for %d principals", n))
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}

func (a *App) Status(ctx context.Context) error {
	st, err := a.scanner.Status(ctx)
	if err != nil {
		printlnFn("Status failed:", err)
		return err
	}
	mode := "offline"
	if st.Online {
		mode = "online"
	}
	printlnFn(fmt.Sprintf("Verifier: %s (%s)", st.VerifierID, mode))
	printlnFn(fmt.Sprintf("Pending: %d, synced: %d, errors: %d", st.Ledger.Pending, st.Ledger.Synced, st.Ledger.Errored))
	printlnFn(fmt.Sprintf("Cached secrets: %d, refreshed: %s", st.CachedSecrets, formatTime(st.SecretsRefreshed)))
	printlnFn("Last sync:", formatTime(st.LastSyncAt))
	return nil
}

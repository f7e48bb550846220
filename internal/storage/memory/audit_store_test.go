package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-auditor/internal/audit"
)

func TestAuditStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewAuditStore()
	ctx := context.Background()
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	a := audit.Audit{ID: "audit-1", TargetURL: "https://example.com", Status: audit.StatusQueued, CreatedAt: created}

	require.NoError(t, store.CreateAudit(ctx, a))
	require.ErrorIs(t, store.CreateAudit(ctx, a), audit.ErrAlreadyExists)

	for _, status := range []audit.Status{audit.StatusInProgress, audit.StatusProcessing, audit.StatusCompleted} {
		a.Status = status
		require.NoError(t, store.UpdateAudit(ctx, a))
	}

	score := 91
	a.Score = &score
	a.Report = &audit.Report{URL: a.TargetURL, OverallScore: score, AINotice: "later"}
	a.CreatedAt = time.Time{}
	require.NoError(t, store.UpdateAudit(ctx, a), "completed may be rewritten for enrichment")

	got, err := store.GetAudit(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, audit.StatusCompleted, got.Status)
	require.Equal(t, created, got.CreatedAt)
	require.Equal(t, "later", got.Report.AINotice)

	a.Status = audit.StatusFailed
	require.ErrorIs(t, store.UpdateAudit(ctx, a), audit.ErrInvalidTransition)
	a.Status = audit.StatusProcessing
	require.ErrorIs(t, store.UpdateAudit(ctx, a), audit.ErrInvalidTransition)

	require.NoError(t, store.DeleteAudit(ctx, a.ID))
	_, err = store.GetAudit(ctx, a.ID)
	require.ErrorIs(t, err, audit.ErrNotFound)
	require.ErrorIs(t, store.DeleteAudit(ctx, a.ID), audit.ErrNotFound)
	require.ErrorIs(t, store.UpdateAudit(ctx, a), audit.ErrNotFound)
}

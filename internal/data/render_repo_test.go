package data

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	require.NoError(t, InitDB(filepath.Join(t.TempDir(), "audit.db")))
	t.Cleanup(func() { CloseDB() })
}

func TestInsertAndReadRenderEvents(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	id, err := InsertRenderEvent(ctx, RenderEvent{
		RequestID:      "req-1",
		RenderedAt:     now.Add(-time.Minute),
		ProductID:      "strain-1",
		InventoryOK:    true,
		PrimaryRegion:  "unitedkingdom",
		VisitorRegion:  "germany",
		GeoResolved:    true,
		ShowStorefront: true,
		Reason:         "regions_differ",
		Duration:       120 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = InsertRenderEvent(ctx, RenderEvent{
		RequestID:      "req-2",
		RenderedAt:     now,
		ProductID:      "strain-1",
		InventoryError: `inventory fetch for "strain-1": partner returned status 404`,
	})
	require.NoError(t, err)

	n, err := CountRenderEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	events, err := RecentRenderEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "req-2", events[0].RequestID, "newest first")
	assert.False(t, events[0].InventoryOK)
	assert.Contains(t, events[0].InventoryError, "404")
	assert.Empty(t, events[0].Reason)

	assert.Equal(t, "req-1", events[1].RequestID)
	assert.True(t, events[1].ShowStorefront)
	assert.True(t, events[1].GeoResolved)
	assert.Equal(t, "unitedkingdom", events[1].PrimaryRegion)
	assert.Equal(t, "germany", events[1].VisitorRegion)
	assert.Equal(t, 120*time.Millisecond, events[1].Duration)
	assert.WithinDuration(t, now.Add(-time.Minute), events[1].RenderedAt, time.Millisecond)
}

func TestDeleteRenderEventsBefore(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		_, err := InsertRenderEvent(ctx, RenderEvent{
			ProductID:  "strain-1",
			RenderedAt: now.Add(-time.Duration(100+i) * time.Hour),
			Reason:     "geo_unresolved",
		})
		require.NoError(t, err)
	}
	_, err := InsertRenderEvent(ctx, RenderEvent{ProductID: "strain-1", RenderedAt: now, Reason: "regions_match"})
	require.NoError(t, err)

	deleted, err := DeleteRenderEventsBefore(ctx, now.Add(-72*time.Hour), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted, "limited per run")

	deleted, err = DeleteRenderEventsBefore(ctx, now.Add(-72*time.Hour), 3)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	n, err := CountRenderEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDecisionSummary(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	insert := func(reason string, shown bool, at time.Time) {
		_, err := InsertRenderEvent(ctx, RenderEvent{ProductID: "p", Reason: reason, ShowStorefront: shown, RenderedAt: at})
		require.NoError(t, err)
	}
	insert("regions_differ", true, now)
	insert("regions_differ", true, now)
	insert("geo_unresolved", false, now)
	insert("regions_match", false, now.Add(-48*time.Hour))

	summary, err := DecisionSummary(ctx, now.Add(-time.Hour))
	require.NoError(t, err)

	assert.Equal(t, []ReasonCount{
		{Reason: "geo_unresolved", Shown: false, Count: 1},
		{Reason: "regions_differ", Shown: true, Count: 2},
	}, summary)
}

func TestOperationsWithoutDB(t *testing.T) {
	require.NoError(t, CloseDB())
	assert.False(t, IsInitialized())

	_, err := InsertRenderEvent(context.Background(), RenderEvent{ProductID: "p"})
	assert.ErrorContains(t, err, "database not initialized")

	_, err = CountRenderEvents(context.Background())
	assert.Error(t, err)
}

func TestTimeFormatSortsLexically(t *testing.T) {
	base := time.Date(2026, 10, 19, 12, 0, 5, 0, time.UTC)
	whole := formatTime(base)
	fraction := formatTime(base.Add(500 * time.Millisecond))
	assert.Less(t, whole, fraction)

	parsed, err := parseTime(fraction)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(base.Add(500*time.Millisecond)))
}

package history_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bustracking/bustracking/internal/history"
)

func delivery(tripID string, n int) *history.Delivery {
	return &history.Delivery{
		ID:         history.NewID(),
		TripID:     tripID,
		Kind:       "arrived",
		Title:      fmt.Sprintf("title %d", n),
		Data:       map[string]string{"n": fmt.Sprint(n)},
		Channel:    history.ChannelRelay,
		Recipients: n,
		CreatedAt:  time.Now(),
	}
}

func TestInMemoryRepository_ListNewestFirst(t *testing.T) {
	repo := history.NewInMemoryRepository(10)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.Record(ctx, delivery("trip-1", i)))
	}

	items, err := repo.List(ctx, history.ListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "title 3", items[0].Title)
	assert.Equal(t, "title 1", items[2].Title)
}

func TestInMemoryRepository_EvictsOldest(t *testing.T) {
	repo := history.NewInMemoryRepository(2)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.Record(ctx, delivery("trip-1", i)))
	}

	items, err := repo.List(ctx, history.ListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "title 3", items[0].Title)
	assert.Equal(t, "title 2", items[1].Title)
}

func TestInMemoryRepository_FilterAndLimit(t *testing.T) {
	repo := history.NewInMemoryRepository(0)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, delivery("trip-1", 1)))
	require.NoError(t, repo.Record(ctx, delivery("trip-2", 2)))
	require.NoError(t, repo.Record(ctx, delivery("trip-1", 3)))

	items, err := repo.List(ctx, history.ListOptions{TripID: "trip-1"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, d := range items {
		assert.Equal(t, "trip-1", d.TripID)
	}

	items, err = repo.List(ctx, history.ListOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "title 3", items[0].Title)
}

func TestInMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := history.NewInMemoryRepository(5)
	ctx := context.Background()
	require.NoError(t, repo.Record(ctx, delivery("trip-1", 1)))

	items, err := repo.List(ctx, history.ListOptions{})
	require.NoError(t, err)
	items[0].Data["n"] = "changed"

	items, err = repo.List(ctx, history.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, "1", items[0].Data["n"])
}

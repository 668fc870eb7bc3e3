package scan

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/themescan/internal/types"
	"github.com/standardbeagle/themescan/testhelpers"
)

func makeAssets(n int) []types.Asset {
	assets := make([]types.Asset, n)
	for i := range assets {
		assets[i] = types.Asset{Key: fmt.Sprintf("snippets/file-%02d.liquid", i)}
	}
	return assets
}

func TestScanAssetsInBatchesProgress(t *testing.T) {
	sleeper := &testhelpers.FakeSleeper{}
	var calls []int
	var totals []int

	scanned, err := ScanAssetsInBatches(context.Background(), makeAssets(10),
		func(ctx context.Context, key string) string { return "content of " + key },
		func(scanned, total int) {
			calls = append(calls, scanned)
			totals = append(totals, total)
		},
		BatchOptions{BatchSize: 2, Delay: 200 * time.Millisecond, Sleep: sleeper.Sleep})

	require.NoError(t, err)
	assert.Len(t, scanned, 10)
	assert.Equal(t, []int{2, 4, 6, 8, 10}, calls)
	assert.Equal(t, []int{10, 10, 10, 10, 10}, totals)

	// Delay between batches only, none after the final batch
	assert.Len(t, sleeper.Sleeps(), 4)
	for _, d := range sleeper.Sleeps() {
		assert.Equal(t, 200*time.Millisecond, d)
	}
}

func TestScanAssetsInBatchesUnevenFinalBatch(t *testing.T) {
	var calls []int
	_, err := ScanAssetsInBatches(context.Background(), makeAssets(7),
		func(ctx context.Context, key string) string { return "x" },
		func(scanned, total int) { calls = append(calls, scanned) },
		BatchOptions{BatchSize: 3, Sleep: (&testhelpers.FakeSleeper{}).Sleep})

	require.NoError(t, err)
	assert.Equal(t, []int{3, 6, 7}, calls)
}

func TestScanAssetsInBatchesDropsFailures(t *testing.T) {
	source := testhelpers.NewFakeSource().
		WithAsset("snippets/a.liquid", "a").
		WithFailingAsset("snippets/b.liquid").
		WithAsset("snippets/c.liquid", "c").
		WithAsset("snippets/empty.liquid", "")

	assets, err := source.FetchAssetsList(context.Background(), 1)
	require.NoError(t, err)

	var last int
	scanned, err := ScanAssetsInBatches(context.Background(), assets,
		func(ctx context.Context, key string) string { return source.FetchAssetContent(ctx, 1, key) },
		func(scanned, total int) { last = scanned },
		BatchOptions{BatchSize: 2, Sleep: (&testhelpers.FakeSleeper{}).Sleep})

	require.NoError(t, err)
	assert.Equal(t, 4, last, "failed assets still count as attempted")
	assert.Equal(t, []types.ScannedAsset{
		{Key: "snippets/a.liquid", Content: "a"},
		{Key: "snippets/c.liquid", Content: "c"},
	}, scanned)
}

func TestScanAssetsInBatchesBoundsConcurrency(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0

	_, err := ScanAssetsInBatches(context.Background(), makeAssets(12),
		func(ctx context.Context, key string) string {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return "x"
		},
		nil,
		BatchOptions{BatchSize: 3, Sleep: (&testhelpers.FakeSleeper{}).Sleep})

	require.NoError(t, err)
	assert.LessOrEqual(t, peak, 3)
	assert.GreaterOrEqual(t, peak, 1)
}

func TestScanAssetsInBatchesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls []int
	scanned, err := ScanAssetsInBatches(ctx, makeAssets(10),
		func(ctx context.Context, key string) string { return "x" },
		func(scanned, total int) {
			calls = append(calls, scanned)
			if scanned == 4 {
				cancel()
			}
		},
		BatchOptions{BatchSize: 2, Sleep: (&testhelpers.FakeSleeper{}).Sleep})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, scanned, 4, "assets scanned before cancellation are kept")
	assert.Equal(t, []int{2, 4}, calls)
}

func TestScanAssetsInBatchesCanceledDuringFinalChunk(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls []int
	scanned, err := ScanAssetsInBatches(ctx, makeAssets(3),
		func(ctx context.Context, key string) string {
			if key == makeAssets(3)[2].Key {
				cancel()
				return ""
			}
			return "x"
		},
		func(scanned, total int) { calls = append(calls, scanned) },
		BatchOptions{BatchSize: 2, Sleep: (&testhelpers.FakeSleeper{}).Sleep})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, scanned, 2)
	assert.Equal(t, []int{2}, calls, "the interrupted chunk is not reported as attempted")
}

func TestScanAssetsInBatchesEmpty(t *testing.T) {
	called := false
	scanned, err := ScanAssetsInBatches(context.Background(), nil,
		func(ctx context.Context, key string) string { return "x" },
		func(int, int) { called = true },
		BatchOptions{})

	require.NoError(t, err)
	assert.Empty(t, scanned)
	assert.False(t, called)
}

package scan

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/themescan/internal/shopify"
	"github.com/standardbeagle/themescan/internal/types"
)

// FetchFunc returns the content of one asset, "" when it could not be read
type FetchFunc func(ctx context.Context, key string) string

// ProgressFunc receives the cumulative number of attempted assets after each batch
type ProgressFunc func(scanned, total int)

// BatchOptions are the throughput controls of the batch scanner
type BatchOptions struct {
	BatchSize int
	Delay     time.Duration
	Sleep     shopify.Sleeper
}

// ScanAssetsInBatches fetches assets in contiguous chunks of BatchSize.
// Fetches within a chunk run concurrently; chunks run strictly in order with
// Delay between them. onProgress is called once per chunk. Only assets with
// non-empty content are returned, in input order.
//
// When ctx ends the assets scanned so far are returned along with ctx.Err().
// A chunk interrupted by ctx does not count as attempted.
func ScanAssetsInBatches(ctx context.Context, assets []types.Asset, fetch FetchFunc, onProgress ProgressFunc, opts BatchOptions) ([]types.ScannedAsset, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = types.DefaultBatchSize
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = shopify.ContextSleep
	}

	total := len(assets)
	scanned := make([]types.ScannedAsset, 0, total)

	for start := 0; start < total; start += batchSize {
		if err := ctx.Err(); err != nil {
			return scanned, err
		}

		end := min(start+batchSize, total)
		chunk := assets[start:end]
		contents := make([]string, len(chunk))

		g, gctx := errgroup.WithContext(ctx)
		for i, asset := range chunk {
			g.Go(func() error {
				contents[i] = fetch(gctx, asset.Key)
				return nil
			})
		}
		_ = g.Wait()

		for i, content := range contents {
			if content != "" {
				scanned = append(scanned, types.ScannedAsset{Key: chunk[i].Key, Content: content})
			}
		}

		// Fetches swallow their errors, so an empty chunk may just mean ctx ended
		if err := ctx.Err(); err != nil {
			return scanned, err
		}

		if onProgress != nil {
			onProgress(end, total)
		}

		if end < total && opts.Delay > 0 {
			if err := sleep(ctx, opts.Delay); err != nil {
				return scanned, err
			}
		}
	}

	return scanned, nil
}

package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/themescan/internal/debug"
	scanerrors "github.com/standardbeagle/themescan/internal/errors"
	"github.com/standardbeagle/themescan/internal/regexcache"
	"github.com/standardbeagle/themescan/internal/shopify"
	"github.com/standardbeagle/themescan/internal/types"
)

// streamBuffer is the number of frames a Stream holds for a slow reader
const streamBuffer = 16

// Throughput is the batch size and inter-batch delay of the batch scanner
type Throughput struct {
	BatchSize int
	Delay     time.Duration
}

// Options are the tunables of an Engine. They can be replaced while the
// engine runs; a scan uses the options current when it started.
type Options struct {
	Throughput   Throughput
	Overrides    map[types.ScanType]Throughput
	Timeout      time.Duration
	MaxJSONDepth int
	Limits       Limits

	// Include and Exclude are doublestar globs over asset keys
	Include []string
	Exclude []string
}

// DefaultOptions returns the tunables used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Throughput: Throughput{
			BatchSize: types.DefaultBatchSize,
			Delay:     types.DefaultDelayMs * time.Millisecond,
		},
		Timeout:      15 * time.Minute,
		MaxJSONDepth: types.DefaultMaxJSONDepth,
		Limits: Limits{
			MaxDefinitions: types.DefaultMaxDefinitions,
			MaxMenus:       types.DefaultMaxMenus,
		},
	}
}

// ThroughputFor returns the throughput of t, honoring per-type overrides
func (o Options) ThroughputFor(t types.ScanType) Throughput {
	if tp, ok := o.Overrides[t]; ok && tp.BatchSize > 0 {
		return tp
	}
	return o.Throughput
}

// Request describes one scan
type Request struct {
	// ID is generated when empty
	ID      string
	Type    types.ScanType
	ThemeID int64
	// Throughput overrides the configured throughput when set
	Throughput *Throughput
}

// Result is everything a finished scan knows
type Result struct {
	ID          string
	Type        types.ScanType
	ThemeID     int64
	References  int
	Found       []string
	Sections    []types.SectionDescriptor
	Assets      int
	Scanned     int
	Fingerprint string
	Err         error
	StartedAt   time.Time
	Duration    time.Duration
}

// Payload is the results value of the terminal frame
func (r *Result) Payload() interface{} {
	if r.Type == types.ScanSections {
		return r.Sections
	}
	return r.Found
}

// FoundCount is the number of matched keys, or of sections with at least one assignment
func (r *Result) FoundCount() int {
	if r.Type != types.ScanSections {
		return len(r.Found)
	}
	n := 0
	for _, s := range r.Sections {
		if s.AssignmentCount > 0 {
			n++
		}
	}
	return n
}

// Summary converts the result into the record kept by the server
func (r *Result) Summary() types.ScanSummary {
	s := types.ScanSummary{
		ID:          r.ID,
		Type:        r.Type,
		Status:      types.StatusDone,
		ThemeID:     r.ThemeID,
		Found:       r.FoundCount(),
		Assets:      r.Assets,
		Scanned:     r.Scanned,
		Fingerprint: r.Fingerprint,
		StartedAt:   r.StartedAt.UTC().Format(time.RFC3339),
		DurationMs:  r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		s.Status = types.StatusError
		s.Error = r.Err.Error()
	}
	return s
}

// Engine runs scans against one Source
type Engine struct {
	source Source
	cache  *regexcache.RegexCache
	sleep  shopify.Sleeper
	logger *zap.Logger

	mu   sync.RWMutex
	opts Options
}

// NewEngine creates an engine. A nil logger uses the scan component logger.
func NewEngine(source Source, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = debug.Component("scan")
	}
	return &Engine{
		source: source,
		cache:  regexcache.Shared(),
		sleep:  shopify.ContextSleep,
		logger: logger,
		opts:   opts,
	}
}

// SetSleeper replaces the inter-batch sleeper
func (e *Engine) SetSleeper(s shopify.Sleeper) {
	if s != nil {
		e.sleep = s
	}
}

// Options returns the current tunables
func (e *Engine) Options() Options {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.opts
}

// SetOptions replaces the tunables for scans started afterwards
func (e *Engine) SetOptions(opts Options) {
	e.mu.Lock()
	e.opts = opts
	e.mu.Unlock()
}

// Run executes one scan synchronously, sending every frame to emit. The
// terminal frame is always emitted, including on validation failure.
func (e *Engine) Run(ctx context.Context, req Request, emit Emitter) *Result {
	opts := e.Options()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	res := &Result{ID: req.ID, Type: req.Type, ThemeID: req.ThemeID, StartedAt: time.Now()}
	tracker := NewProgressTracker(emit)
	logger := e.logger.With(zap.String("scan_id", req.ID), zap.String("scan_type", req.Type.String()))

	defer func() {
		res.Duration = tracker.Elapsed()
		if res.Err != nil {
			logger.Error("scan failed", zap.Error(res.Err), zap.Duration("duration", res.Duration))
		} else {
			logger.Info("scan finished",
				zap.Int("found", res.FoundCount()),
				zap.Int("scanned", res.Scanned),
				zap.Duration("duration", res.Duration))
		}
	}()

	if !req.Type.Valid() {
		res.Err = scanerrors.NewScanError(scanerrors.ErrorTypeInternal, req.Type, types.StatusInit,
			fmt.Errorf("unknown scan type %q", req.Type))
		tracker.Finish(nil, res.Err)
		return res
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	tracker.Update(progressInit, types.StatusInit, "Starting "+req.Type.String()+" scan")

	if req.Type == types.ScanSections {
		e.runSections(ctx, req, opts, tracker, res, logger)
	} else {
		e.runReferences(ctx, req, opts, tracker, res, logger)
	}
	return res
}

// runReferences is the shared pipeline of the four reference scans
func (e *Engine) runReferences(ctx context.Context, req Request, opts Options, tracker *ProgressTracker, res *Result, logger *zap.Logger) {
	strategy, _ := StrategyFor(req.Type, e.cache, opts.Limits, logger)

	report := func(step, steps int, message string) {
		if steps < 1 {
			steps = 1
		}
		tracker.Update(progressEnumerating+(progressListing-progressEnumerating)*step/steps, types.StatusEnumerating, message)
	}
	tracker.Update(progressEnumerating, types.StatusEnumerating, "Enumerating "+req.Type.String())

	var assets []types.Asset
	var refs []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		listed, err := e.source.FetchAssetsList(gctx, req.ThemeID)
		if err != nil {
			return scanerrors.NewScanError(scanerrors.ErrorTypeListing, req.Type, types.StatusListing, err)
		}
		assets = listed
		return nil
	})
	if strategy.Remote() {
		g.Go(func() error {
			found, err := strategy.References(gctx, e.source, nil, report)
			if err != nil {
				return scanerrors.NewScanError(scanerrors.ErrorTypeEnumeration, req.Type, types.StatusEnumerating, err)
			}
			refs = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.fail(ctx, tracker, res, nil, err, types.StatusListing)
		return
	}

	res.Assets = len(assets)
	res.Fingerprint = Fingerprint(assets)

	if !strategy.Remote() {
		refs, _ = strategy.References(ctx, e.source, assets, report)
	}
	res.References = len(refs)

	scannable := e.filter(assets, strategy.Scannable, opts)
	tracker.Update(progressListing, types.StatusListing,
		fmt.Sprintf("Found %d references and %d files to scan", len(refs), len(scannable)))

	if len(refs) == 0 {
		res.Found = []string{}
		tracker.Finish(res.Found, nil)
		return
	}

	tracker.Update(progressScanStart, types.StatusScanning, fmt.Sprintf("Scanning %d files", len(scannable)))
	scanned, scanErr := ScanAssetsInBatches(ctx, scannable, e.fetcher(req.ThemeID),
		tracker.Range(progressScanStart, progressScanEnd, types.StatusScanning), e.batchOptions(req, opts))
	res.Scanned = len(scanned)

	tracker.Update(progressScanEnd, types.StatusMatching, "Matching references")
	res.Found = MatchReferences(scanned, refs, strategy.Matcher(), logger)

	if scanErr != nil {
		e.fail(ctx, tracker, res, res.Found, scanErr, types.StatusScanning)
		return
	}
	tracker.Finish(res.Found, nil)
}

// runSections enumerates sections from the listing, reads their schema names,
// then scans JSON and Liquid files for assignments
func (e *Engine) runSections(ctx context.Context, req Request, opts Options, tracker *ProgressTracker, res *Result, logger *zap.Logger) {
	depth := opts.MaxJSONDepth
	if depth <= 0 {
		depth = types.DefaultMaxJSONDepth
	}

	tracker.Update(progressEnumerating, types.StatusListing, "Listing theme assets")
	assets, err := e.source.FetchAssetsList(ctx, req.ThemeID)
	if err != nil {
		e.fail(ctx, tracker, res, nil,
			scanerrors.NewScanError(scanerrors.ErrorTypeListing, req.Type, types.StatusListing, err), types.StatusListing)
		return
	}
	res.Assets = len(assets)
	res.Fingerprint = Fingerprint(assets)

	sectionAssets := e.filter(assets, func(a types.Asset) bool { return IsSectionAsset(a.Key) }, opts)
	others := e.filter(assets, func(a types.Asset) bool {
		return !IsSectionAsset(a.Key) && templateScannable(a)
	}, opts)

	sectionKeys := make([]string, len(sectionAssets))
	for i, a := range sectionAssets {
		sectionKeys[i] = a.Key
	}
	res.References = len(sectionKeys)

	tracker.Update(progressListing, types.StatusEnumerating,
		fmt.Sprintf("Found %d sections and %d files to scan", len(sectionAssets), len(others)))

	if len(sectionAssets) == 0 {
		res.Sections = []types.SectionDescriptor{}
		tracker.Finish(res.Sections, nil)
		return
	}

	batch := e.batchOptions(req, opts)
	fetch := e.fetcher(req.ThemeID)

	tracker.Update(progressScanStart, types.StatusScanning, "Reading section schemas")
	scannedSections, scanErr := ScanAssetsInBatches(ctx, sectionAssets, fetch,
		tracker.Range(progressScanStart, progressSchemaEnd, types.StatusScanning), batch)

	contents := make(map[string]string, len(scannedSections))
	for _, s := range scannedSections {
		contents[s.Key] = s.Content
	}
	descriptors := NewSectionDescriptors(sectionKeys, contents)

	var scannedOthers []types.ScannedAsset
	if scanErr == nil {
		tracker.Update(progressSchemaEnd, types.StatusScanning, fmt.Sprintf("Scanning %d files for section assignments", len(others)))
		scannedOthers, scanErr = ScanAssetsInBatches(ctx, others, fetch,
			tracker.Range(progressSchemaEnd, progressScanEnd, types.StatusScanning), batch)
	}
	res.Scanned = len(scannedSections) + len(scannedOthers)

	tracker.Update(progressScanEnd, types.StatusMatching, "Matching section assignments")
	all := make([]types.ScannedAsset, 0, res.Scanned)
	all = append(all, scannedSections...)
	all = append(all, scannedOthers...)
	AssignSections(descriptors, all, depth)
	res.Sections = flattenDescriptors(descriptors)

	if scanErr != nil {
		e.fail(ctx, tracker, res, res.Sections, scanErr, types.StatusScanning)
		return
	}
	tracker.Finish(res.Sections, nil)
}

// fail records err on res and emits the terminal frame. A context error is
// reported as a timeout or cancellation of the phase it interrupted.
func (e *Engine) fail(ctx context.Context, tracker *ProgressTracker, res *Result, partial interface{}, err error, phase types.ScanStatus) {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = scanerrors.NewScanError(scanerrors.ErrorTypeTimeout, res.Type, phase,
			fmt.Errorf("scan exceeded its time limit: %w", ctx.Err()))
	case errors.Is(ctx.Err(), context.Canceled):
		err = scanerrors.NewScanError(scanerrors.ErrorTypeCanceled, res.Type, phase, ctx.Err())
	}
	res.Err = err
	tracker.Finish(partial, err)
}

func (e *Engine) fetcher(themeID int64) FetchFunc {
	return func(ctx context.Context, key string) string {
		return e.source.FetchAssetContent(ctx, themeID, key)
	}
}

func (e *Engine) batchOptions(req Request, opts Options) BatchOptions {
	tp := opts.ThroughputFor(req.Type)
	if req.Throughput != nil {
		if req.Throughput.BatchSize > 0 {
			tp.BatchSize = req.Throughput.BatchSize
		}
		if req.Throughput.Delay >= 0 {
			tp.Delay = req.Throughput.Delay
		}
	}
	return BatchOptions{BatchSize: tp.BatchSize, Delay: tp.Delay, Sleep: e.sleep}
}

// filter keeps the assets accepted by pred and the configured include/exclude globs
func (e *Engine) filter(assets []types.Asset, pred func(types.Asset) bool, opts Options) []types.Asset {
	out := make([]types.Asset, 0, len(assets))
	for _, a := range assets {
		if !pred(a) {
			continue
		}
		if len(opts.Include) > 0 && !matchesAny(opts.Include, a.Key) {
			continue
		}
		if matchesAny(opts.Exclude, a.Key) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Stream is a scan running in the background
type Stream struct {
	// Events carries every frame and is closed after the terminal frame
	Events <-chan types.ScanProgress

	done   chan struct{}
	result *Result
}

// Result blocks until the scan finished and returns its result
func (s *Stream) Result() *Result {
	<-s.done
	return s.result
}

// Stream starts a scan in the background. Readers should drain Events until
// it is closed or cancel ctx; once ctx is done undelivered frames are dropped.
func (e *Engine) Stream(ctx context.Context, req Request) *Stream {
	events := make(chan types.ScanProgress, streamBuffer)
	s := &Stream{Events: events, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		defer close(events)
		s.result = e.Run(ctx, req, func(p types.ScanProgress) {
			select {
			case events <- p:
			case <-ctx.Done():
				select {
				case events <- p:
				default:
				}
			}
		})
	}()
	return s
}

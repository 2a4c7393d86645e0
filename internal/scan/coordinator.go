package scan

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/config"
	"github.com/caribu66/veruspulse-sub016/internal/logging"
	"github.com/caribu66/veruspulse-sub016/internal/models"
	"github.com/caribu66/veruspulse-sub016/internal/verrors"
	"github.com/google/uuid"
)

// Progress tracks a running scan. Counters are atomic so API handlers can
// read them while the walk mutates them.
type Progress struct {
	Handle          string
	IdentityAddress string
	StartedAt       time.Time

	TargetHeight  atomic.Int64
	CurrentHeight atomic.Int64
	BlocksScanned atomic.Int64
	TxProcessed   atomic.Int64
	RewardsFound  atomic.Int64

	done       atomic.Bool
	failed     atomic.Bool
	finishedAt atomic.Int64 // unix nanos, zero while running
}

// Done reports whether the scan has finished
func (p *Progress) Done() bool { return p.done.Load() }

// Failed reports whether the scan finished with an error
func (p *Progress) Failed() bool { return p.failed.Load() }

// Snapshot is the JSON view of a progress handle
type Snapshot struct {
	Handle          string    `json:"handle"`
	IdentityAddress string    `json:"identityAddress"`
	Status          string    `json:"status"`
	TargetHeight    int64     `json:"targetHeight"`
	CurrentHeight   int64     `json:"currentHeight"`
	BlocksScanned   int64     `json:"blocksScanned"`
	TxProcessed     int64     `json:"txProcessed"`
	RewardsFound    int64     `json:"rewardsFound"`
	StartedAt       time.Time `json:"startedAt"`
}

// Snapshot returns a consistent-enough point-in-time view
func (p *Progress) Snapshot() Snapshot {
	status := "scanning"
	switch {
	case p.failed.Load():
		status = "failed"
	case p.done.Load():
		status = "complete"
	}
	return Snapshot{
		Handle:          p.Handle,
		IdentityAddress: p.IdentityAddress,
		Status:          status,
		TargetHeight:    p.TargetHeight.Load(),
		CurrentHeight:   p.CurrentHeight.Load(),
		BlocksScanned:   p.BlocksScanned.Load(),
		TxProcessed:     p.TxProcessed.Load(),
		RewardsFound:    p.RewardsFound.Load(),
		StartedAt:       p.StartedAt,
	}
}

// Receipt is the immediate answer to a priority scan request
type Receipt struct {
	IdentityAddress string        `json:"identityAddress"`
	Status          string        `json:"status"`
	Blocks          int64         `json:"blocks"`
	Estimate        time.Duration `json:"estimateNanos"`
}

// scanStateStore persists per-identity scan lifecycle state
type scanStateStore interface {
	Get(ctx context.Context, identityAddress string) (*models.ScanState, error)
	TryMarkScanning(ctx context.Context, identityAddress string) (bool, error)
	MarkIdle(ctx context.Context, identityAddress string) error
	MarkComplete(ctx context.Context, identityAddress string, height int64) error
	MarkFailed(ctx context.Context, identityAddress string, scanErr error) error
}

// handleRetention is how long a finished progress handle stays queryable
// before registering a new scan prunes it.
const handleRetention = time.Hour

// Coordinator serializes scans per identity address. A second scan request
// for an address already being scanned gets a typed conflict error instead
// of a duplicate walk.
type Coordinator struct {
	walker  *Walker
	gateway nodeGateway
	states  scanStateStore
	cfg     *config.ScanConfig
	logger  *logging.Logger

	mu      sync.Mutex
	active  map[string]struct{}
	handles map[string]*Progress
}

// NewCoordinator creates a scan coordinator
func NewCoordinator(walker *Walker, gateway nodeGateway, states scanStateStore, cfg *config.ScanConfig) *Coordinator {
	return &Coordinator{
		walker:  walker,
		gateway: gateway,
		states:  states,
		cfg:     cfg,
		logger:  logging.GetGlobalLogger().WithField("component", "scan-coordinator"),
		active:  make(map[string]struct{}),
		handles: make(map[string]*Progress),
	}
}

// RequestPriorityScan starts a detached scan of the most recent blocks for
// an identity and returns immediately with a coarse duration estimate.
// The walk deliberately runs on a background context so it survives the
// requesting connection going away. A priority scan covers a window that is
// not contiguous with the persisted resume height, so it never advances it;
// a later full scan still covers everything below the window.
func (c *Coordinator) RequestPriorityScan(identityAddress string) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.acquire(ctx, identityAddress); err != nil {
		return nil, err
	}

	info, err := c.gateway.GetBlockchainInfo(ctx)
	if err != nil {
		c.unclaim(ctx, identityAddress)
		c.release(identityAddress)
		return nil, err
	}

	tip := info.Blocks
	from := tip - c.cfg.PriorityDepth
	if from < 0 {
		from = 0
	}
	blocks := tip - from + 1

	progress := c.newProgress(identityAddress, tip, from)

	go func() {
		defer c.release(identityAddress)
		c.run(context.Background(), identityAddress, from, tip, progress, false)
	}()

	return &Receipt{
		IdentityAddress: identityAddress,
		Status:          "scanning",
		Blocks:          blocks,
		Estimate:        c.estimate(blocks),
	}, nil
}

// RequestFullScan walks the identity's whole unscanned history, blocking
// until the walk finishes or ctx is cancelled. The returned progress handle
// is registered before the walk starts and stays queryable from other
// requests while this one blocks.
func (c *Coordinator) RequestFullScan(ctx context.Context, identityAddress string) (*Progress, error) {
	if err := c.acquire(ctx, identityAddress); err != nil {
		return nil, err
	}
	defer c.release(identityAddress)

	info, err := c.gateway.GetBlockchainInfo(ctx)
	if err != nil {
		c.unclaim(context.WithoutCancel(ctx), identityAddress)
		return nil, err
	}
	tip := info.Blocks

	state, err := c.states.Get(ctx, identityAddress)
	if err != nil {
		c.unclaim(context.WithoutCancel(ctx), identityAddress)
		return nil, err
	}
	from := state.LastHeight + 1
	if state.LastHeight == 0 {
		from = 0
	}
	if from > tip {
		from = tip
	}

	progress := c.newProgress(identityAddress, tip, from)
	c.run(ctx, identityAddress, from, tip, progress, true)
	return progress, nil
}

// GetProgress returns a registered progress handle, or nil
func (c *Coordinator) GetProgress(handle string) *Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handles[handle]
}

// Active returns the addresses currently being scanned
func (c *Coordinator) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	addrs := make([]string, 0, len(c.active))
	for addr := range c.active {
		addrs = append(addrs, addr)
	}
	return addrs
}

// run walks [from, to] and persists the terminal state. Only a walk that is
// contiguous with the persisted resume height may advance it and flag the
// history complete; a windowed walk just releases its claim so later full
// scans still cover the blocks below the window.
func (c *Coordinator) run(ctx context.Context, identityAddress string, from, to int64, progress *Progress, contiguous bool) {
	log := c.logger.WithField("identity", identityAddress)

	err := c.walker.Walk(ctx, identityAddress, from, to, progress, contiguous)
	if err != nil {
		progress.failed.Store(true)
		progress.done.Store(true)
		progress.finishedAt.Store(time.Now().UnixNano())
		log.WithError(err).Error("scan failed")
		if markErr := c.states.MarkFailed(context.WithoutCancel(ctx), identityAddress, err); markErr != nil {
			log.WithError(markErr).Warn("failed to persist scan failure")
		}
		return
	}

	progress.done.Store(true)
	progress.finishedAt.Store(time.Now().UnixNano())
	if contiguous {
		if err := c.states.MarkComplete(context.WithoutCancel(ctx), identityAddress, to); err != nil {
			log.WithError(err).Warn("failed to persist scan completion")
		}
	} else {
		c.unclaim(context.WithoutCancel(ctx), identityAddress)
	}
	log.WithField("blocks", progress.BlocksScanned.Load()).
		WithField("rewards", progress.RewardsFound.Load()).
		Info("scan complete")
}

// acquire claims the per-address scan slot, in process and in the persisted
// scan state, so two processes sharing the store cannot scan the same
// identity concurrently.
func (c *Coordinator) acquire(ctx context.Context, identityAddress string) error {
	c.mu.Lock()
	if _, busy := c.active[identityAddress]; busy {
		c.mu.Unlock()
		return verrors.NewScanConflictError(identityAddress)
	}
	c.active[identityAddress] = struct{}{}
	c.mu.Unlock()

	claimed, err := c.states.TryMarkScanning(ctx, identityAddress)
	if err != nil {
		c.release(identityAddress)
		return err
	}
	if !claimed {
		c.release(identityAddress)
		return verrors.NewScanConflictError(identityAddress)
	}
	return nil
}

func (c *Coordinator) release(identityAddress string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, identityAddress)
}

// unclaim drops the persisted scan claim without advancing anything
func (c *Coordinator) unclaim(ctx context.Context, identityAddress string) {
	if err := c.states.MarkIdle(ctx, identityAddress); err != nil {
		c.logger.WithError(err).WithField("identity", identityAddress).
			Warn("failed to release scan claim")
	}
}

func (c *Coordinator) newProgress(identityAddress string, tip, from int64) *Progress {
	progress := &Progress{
		Handle:          uuid.NewString(),
		IdentityAddress: identityAddress,
		StartedAt:       time.Now().UTC(),
	}
	progress.TargetHeight.Store(tip)
	progress.CurrentHeight.Store(from)

	c.mu.Lock()
	for handle, p := range c.handles {
		if !p.done.Load() {
			continue
		}
		if fin := p.finishedAt.Load(); fin > 0 && time.Since(time.Unix(0, fin)) > handleRetention {
			delete(c.handles, handle)
		}
	}
	c.handles[progress.Handle] = progress
	c.mu.Unlock()
	return progress
}

// estimate is blocks divided by the nominal chunk scan rate, coarse and
// informational only
func (c *Coordinator) estimate(blocks int64) time.Duration {
	if c.cfg.RatePerSecond <= 0 || c.cfg.ChunkSize <= 0 {
		return 0
	}
	chunks := float64(blocks) / float64(c.cfg.ChunkSize)
	return time.Duration(chunks / c.cfg.RatePerSecond * float64(time.Second))
}

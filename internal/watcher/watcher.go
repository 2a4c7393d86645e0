// Package watcher polls the daemon chain tip and turns changes into events.
package watcher

import (
	"context"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/events"
	"github.com/caribu66/veruspulse-sub016/internal/logging"
	"github.com/caribu66/veruspulse-sub016/internal/rpc"
)

// nodeGateway is the slice of the RPC client the watcher needs. Blocks are
// fetched directly, not through the read-through cache: a just-announced
// block is by definition not cached yet.
type nodeGateway interface {
	GetBestBlockHash(ctx context.Context) (string, error)
	GetBlock(ctx context.Context, hashOrHeight interface{}, verbosity int) (*rpc.Block, error)
}

// BlockEvent is the payload of a new-block event
type BlockEvent struct {
	Hash    string `json:"hash"`
	Height  int64  `json:"height"`
	Time    int64  `json:"time"`
	TxCount int    `json:"txCount"`
}

// TxEvent is the payload of a new-tx event
type TxEvent struct {
	TxID        string `json:"txid"`
	BlockHash   string `json:"blockHash"`
	BlockHeight int64  `json:"blockHeight"`
}

// Watcher emits new-block and new-tx events whenever the chain tip moves
type Watcher struct {
	gateway     nodeGateway
	broadcaster *events.Broadcaster
	interval    time.Duration
	logger      *logging.Logger

	lastHash string
}

// New creates a watcher polling on interval
func New(gateway nodeGateway, broadcaster *events.Broadcaster, interval time.Duration) *Watcher {
	return &Watcher{
		gateway:     gateway,
		broadcaster: broadcaster,
		interval:    interval,
		logger:      logging.GetGlobalLogger().WithField("component", "watcher"),
	}
}

// Run polls until ctx is cancelled. Poll failures are logged and the next
// tick tries again; the watcher never gives up on a flaky node.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				w.logger.WithError(err).Warn("tip poll failed")
			}
		}
	}
}

func (w *Watcher) poll(ctx context.Context) error {
	hash, err := w.gateway.GetBestBlockHash(ctx)
	if err != nil {
		return err
	}
	if hash == w.lastHash {
		return nil
	}

	// First observation just primes the tip, no event storm on startup.
	if w.lastHash == "" {
		w.lastHash = hash
		return nil
	}
	w.lastHash = hash

	block, err := w.gateway.GetBlock(ctx, hash, 2)
	if err != nil {
		return err
	}

	w.broadcaster.Broadcast(events.NewEvent("new-block", BlockEvent{
		Hash:    block.Hash,
		Height:  block.Height,
		Time:    block.Time,
		TxCount: len(block.Tx),
	}))

	for i := range block.Tx {
		w.broadcaster.Broadcast(events.NewEvent("new-tx", TxEvent{
			TxID:        block.Tx[i].TxID,
			BlockHash:   block.Hash,
			BlockHeight: block.Height,
		}))
	}

	w.logger.WithField("height", block.Height).WithField("txs", len(block.Tx)).
		Debug("new block broadcast")
	return nil
}

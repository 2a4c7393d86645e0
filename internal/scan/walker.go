package scan

import (
	"context"
	"encoding/json"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/config"
	"github.com/caribu66/veruspulse-sub016/internal/logging"
	"github.com/caribu66/veruspulse-sub016/internal/models"
	"github.com/caribu66/veruspulse-sub016/internal/rpc"
	"github.com/caribu66/veruspulse-sub016/internal/verrors"
	"golang.org/x/time/rate"
)

// nodeGateway is the slice of the RPC client the walker needs
type nodeGateway interface {
	GetBlockchainInfo(ctx context.Context) (*rpc.BlockchainInfo, error)
	GetAddressTxIDs(ctx context.Context, address string, start, end int64) ([]rpc.AddressTxID, error)
	BatchCall(ctx context.Context, requests []rpc.Request) ([]rpc.BatchResult, error)
}

// rewardSink records reward events discovered by the walk
type rewardSink interface {
	RecordReward(ctx context.Context, event *models.RewardEvent) error
}

// progressStore persists the resume height between chunks
type progressStore interface {
	UpdateProgress(ctx context.Context, identityAddress string, height int64) error
}

// Walker scans an identity's transaction history for reward-bearing
// coinbase and stake transactions. Heights are walked strictly ascending in
// fixed chunks; the resume height is persisted after every chunk so an
// interrupted walk continues instead of restarting.
type Walker struct {
	gateway   nodeGateway
	rewards   rewardSink
	states    progressStore
	limiter   *rate.Limiter
	chunkSize int64
	batchSize int
	logger    *logging.Logger
}

// NewWalker creates a walker throttled to cfg.RatePerSecond chunks
func NewWalker(gateway nodeGateway, rewards rewardSink, states progressStore, cfg *config.ScanConfig) *Walker {
	return &Walker{
		gateway:   gateway,
		rewards:   rewards,
		states:    states,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		chunkSize: cfg.ChunkSize,
		batchSize: cfg.BatchSize,
		logger:    logging.GetGlobalLogger().WithField("component", "scan-walker"),
	}
}

// Walk scans [fromHeight, toHeight] for rewards paid to identityAddress,
// updating progress as it goes. The persisted resume height only advances
// when advanceResume is set; a walk of a detached recent window must leave
// it alone or the blocks below the window would never be scanned. The walk
// stops at the first transport-level failure; already-recorded chunks stay
// recorded.
func (w *Walker) Walk(ctx context.Context, identityAddress string, fromHeight, toHeight int64, progress *Progress, advanceResume bool) error {
	for start := fromHeight; start <= toHeight; start += w.chunkSize {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}

		end := start + w.chunkSize - 1
		if end > toHeight {
			end = toHeight
		}

		if err := w.walkChunk(ctx, identityAddress, start, end, progress); err != nil {
			return err
		}

		if advanceResume {
			if err := w.states.UpdateProgress(ctx, identityAddress, end); err != nil {
				// Progress persistence is best effort mid-walk; a failure here
				// costs a re-scan of this chunk, not correctness.
				w.logger.WithError(err).WithField("identity", identityAddress).
					Warn("failed to persist scan progress")
			}
		}
		progress.CurrentHeight.Store(end)
		progress.BlocksScanned.Add(end - start + 1)
	}
	return nil
}

func (w *Walker) walkChunk(ctx context.Context, identityAddress string, start, end int64, progress *Progress) error {
	txids, err := w.gateway.GetAddressTxIDs(ctx, identityAddress, start, end)
	if err != nil {
		// An address with no index entries is an empty chunk, not a failure.
		if verrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	if len(txids) == 0 {
		return nil
	}

	for batchStart := 0; batchStart < len(txids); batchStart += w.batchSize {
		batchEnd := batchStart + w.batchSize
		if batchEnd > len(txids) {
			batchEnd = len(txids)
		}
		if err := w.processBatch(ctx, identityAddress, txids[batchStart:batchEnd], progress); err != nil {
			return err
		}
	}
	return nil
}

// processBatch fetches a slice of transactions in one batch call and records
// any reward outputs paying the identity. A single undecodable or missing
// transaction is skipped; the rest of the batch is still processed.
func (w *Walker) processBatch(ctx context.Context, identityAddress string, txids []rpc.AddressTxID, progress *Progress) error {
	requests := make([]rpc.Request, len(txids))
	for i, entry := range txids {
		requests[i] = rpc.Request{
			Method: rpc.MethodGetRawTransaction,
			Params: []interface{}{entry.TxID, 1},
		}
	}

	results, err := w.gateway.BatchCall(ctx, requests)
	if err != nil {
		return err
	}

	for i, result := range results {
		progress.TxProcessed.Add(1)
		if result.Err != nil {
			w.logger.WithError(result.Err).WithField("txid", txids[i].TxID).
				Debug("skipping unreadable transaction")
			continue
		}

		var tx rpc.RawTransaction
		if err := json.Unmarshal(result.Result, &tx); err != nil {
			w.logger.WithError(err).WithField("txid", txids[i].TxID).
				Debug("skipping undecodable transaction")
			continue
		}

		amount, ok := rewardAmount(&tx, identityAddress)
		if !ok {
			continue
		}

		event := &models.RewardEvent{
			IdentityAddress: identityAddress,
			TxID:            tx.TxID,
			Day:             dayOf(tx.BlockTime),
			Amount:          amount,
			BlockHeight:     tx.Height,
		}
		if err := w.rewards.RecordReward(ctx, event); err != nil {
			return err
		}
		progress.RewardsFound.Add(1)
	}
	return nil
}

// rewardAmount sums the coinbase/stake outputs paying the identity address.
// Coinbase transactions mint the block subsidy outright; a Verus stake
// reward is a single-input transaction whose first output pays the stake
// plus reward back to the staker. Ordinary transfers match neither shape.
func rewardAmount(tx *rpc.RawTransaction, identityAddress string) (float64, bool) {
	coinbase := false
	for i := range tx.Vin {
		if tx.Vin[i].IsCoinbase() {
			coinbase = true
			break
		}
	}
	stake := !coinbase && len(tx.Vin) == 1 && len(tx.Vout) > 0 &&
		paysAddress(&tx.Vout[0], identityAddress)

	if !coinbase && !stake {
		return 0, false
	}

	var total float64
	for i := range tx.Vout {
		if paysAddress(&tx.Vout[i], identityAddress) {
			total += tx.Vout[i].Value
		}
	}
	if total <= 0 {
		return 0, false
	}
	return total, true
}

func paysAddress(out *rpc.Vout, address string) bool {
	for _, addr := range out.ScriptPubKey.Addresses {
		if addr == address {
			return true
		}
	}
	return false
}

// dayOf truncates a unix block time to its UTC calendar day
func dayOf(blockTime int64) time.Time {
	t := time.Unix(blockTime, 0).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

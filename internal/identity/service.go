package identity

import (
	"context"
	"errors"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/config"
	"github.com/caribu66/veruspulse-sub016/internal/logging"
	"github.com/caribu66/veruspulse-sub016/internal/models"
	"github.com/caribu66/veruspulse-sub016/internal/rpc"
	"github.com/caribu66/veruspulse-sub016/internal/verrors"
)

// daemon error code for an unknown identity
const rpcErrIdentityNotFound = -5

// nodeGateway is the slice of the RPC client the service needs
type nodeGateway interface {
	GetIdentity(ctx context.Context, nameOrAddress string) (*rpc.IdentityResult, error)
}

// recordStore is the durable identity record store
type recordStore interface {
	Upsert(ctx context.Context, record *models.IdentityRecord) error
	Get(ctx context.Context, identityAddress string) (*models.IdentityRecord, error)
	GetByName(ctx context.Context, name string) (*models.IdentityRecord, error)
}

// rewardStore serves reward statistics and event writes
type rewardStore interface {
	RecordReward(ctx context.Context, event *models.RewardEvent) error
	GetStats(ctx context.Context, identityAddress string) (*models.IdentityStats, error)
}

// fastCache is the best-effort redis layer in front of postgres
type fastCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Service resolves VerusIDs through a redis -> postgres -> daemon chain and
// serves reward statistics for resolved identities.
type Service struct {
	gateway nodeGateway
	records recordStore
	rewards rewardStore
	cache   fastCache
	ttl     time.Duration
	logger  *logging.Logger
}

// NewService creates an identity service. cache may be nil when redis is
// not configured; the service then runs on postgres alone.
func NewService(gateway nodeGateway, records recordStore, rewards rewardStore, cache fastCache, cfg *config.CacheConfig) *Service {
	return &Service{
		gateway: gateway,
		records: records,
		rewards: rewards,
		cache:   cache,
		ttl:     cfg.IdentityTTL,
		logger:  logging.GetGlobalLogger().WithField("component", "identity"),
	}
}

// Resolve returns the identity record for a name or i-address, consulting
// redis, then postgres, then the daemon. Fresh hits short-circuit; stale or
// missing records re-resolve against the node and are persisted. The redis
// write is detached and best effort: its failure is logged and swallowed.
func (s *Service) Resolve(ctx context.Context, input string) (*models.IdentityRecord, error) {
	normalized := NormalizeInput(input)

	if record := s.fromRedis(ctx, normalized); record != nil && !record.IsStale(s.ttl) {
		return record, nil
	}

	record, err := s.fromPostgres(ctx, normalized)
	if err != nil && !verrors.IsNotFound(err) {
		return nil, err
	}
	if record != nil && !record.IsStale(s.ttl) {
		s.cacheDetached(normalized, record)
		return record, nil
	}

	resolved, err := s.gateway.GetIdentity(ctx, normalized)
	if err != nil {
		var rpcErr *verrors.RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == rpcErrIdentityNotFound {
			return nil, verrors.NewNotFoundError("identity", input)
		}
		// Stale local copy beats no answer when the node is unreachable.
		if record != nil && verrors.IsTransport(err) {
			s.logger.WithError(err).WithField("identity", normalized).
				Warn("node unreachable, serving stale identity record")
			return record, nil
		}
		return nil, err
	}

	fresh := recordFromResult(resolved)
	if err := s.records.Upsert(ctx, fresh); err != nil {
		return nil, verrors.NewPersistenceError("persist identity", err)
	}
	s.cacheDetached(normalized, fresh)

	return fresh, nil
}

// GetCached returns the identity record from redis or postgres without ever
// touching the daemon. A miss is (nil, nil), not an error.
func (s *Service) GetCached(ctx context.Context, input string) (*models.IdentityRecord, error) {
	normalized := NormalizeInput(input)

	if record := s.fromRedis(ctx, normalized); record != nil {
		return record, nil
	}

	record, err := s.fromPostgres(ctx, normalized)
	if err != nil {
		if verrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// GetStats returns reward totals and the daily series for an identity
// address. Identities with no indexed rewards get a zero-valued result.
func (s *Service) GetStats(ctx context.Context, identityAddress string) (*models.IdentityStats, error) {
	return s.rewards.GetStats(ctx, identityAddress)
}

// RecordReward credits a reward-bearing transaction to an identity.
// Replaying a txid already recorded for the identity is a no-op.
func (s *Service) RecordReward(ctx context.Context, identityAddress, txid string, day time.Time, amount float64) error {
	return s.rewards.RecordReward(ctx, &models.RewardEvent{
		IdentityAddress: identityAddress,
		TxID:            txid,
		Day:             day,
		Amount:          amount,
	})
}

func (s *Service) fromRedis(ctx context.Context, normalized string) *models.IdentityRecord {
	if s.cache == nil {
		return nil
	}
	var record models.IdentityRecord
	found, err := s.cache.GetJSON(ctx, cacheKey(normalized), &record)
	if err != nil {
		s.logger.WithError(err).Debug("redis identity lookup failed")
		return nil
	}
	if !found {
		return nil
	}
	return &record
}

func (s *Service) fromPostgres(ctx context.Context, normalized string) (*models.IdentityRecord, error) {
	if IsIdentityAddress(normalized) {
		return s.records.Get(ctx, normalized)
	}
	return s.records.GetByName(ctx, normalized)
}

// cacheDetached writes the record to redis under both its normalized name
// and its i-address, off the request path.
func (s *Service) cacheDetached(normalized string, record *models.IdentityRecord) {
	if s.cache == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		keys := []string{cacheKey(normalized)}
		if normalized != record.IdentityAddress {
			keys = append(keys, cacheKey(record.IdentityAddress))
		}
		for _, key := range keys {
			if err := s.cache.SetJSON(ctx, key, record, s.ttl); err != nil {
				s.logger.WithError(err).WithField("key", key).
					Warn("failed to cache identity record")
				return
			}
		}
	}()
}

func cacheKey(normalized string) string {
	return "identity:" + normalized
}

func recordFromResult(result *rpc.IdentityResult) *models.IdentityRecord {
	status := models.IdentityStatusActive
	if result.Status == "revoked" {
		status = models.IdentityStatusRevoked
	}

	name := NormalizeInput(result.Identity.Name)

	return &models.IdentityRecord{
		IdentityAddress:   result.Identity.IdentityAddress,
		Name:              name,
		FriendlyName:      result.FriendlyName,
		PrimaryAddresses:  result.Identity.PrimaryAddresses,
		DefiningTxID:      result.TxID,
		BlockHeight:       result.BlockHeight,
		MinimumSignatures: result.Identity.MinimumSignatures,
		Parent:            result.Identity.Parent,
		RevocationAuth:    result.Identity.RevocationAuthority,
		RecoveryAuth:      result.Identity.RecoveryAuthority,
		Timelock:          result.Identity.Timelock,
		Flags:             result.Identity.Flags,
		Status:            status,
		ResolvedAt:        time.Now().UTC(),
	}
}

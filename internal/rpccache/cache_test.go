package rpccache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/config"
	"github.com/caribu66/veruspulse-sub016/internal/rpc"
)

// fakeGateway counts upstream calls and optionally blocks until released,
// so tests can hold several callers inside a single refresh.
type fakeGateway struct {
	calls   atomic.Int64
	release chan struct{}
	result  json.RawMessage
	err     error
}

func (f *fakeGateway) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

func testCacheConfig() *config.CacheConfig {
	return &config.CacheConfig{
		SummaryTTL:    30 * time.Second,
		MiningTTL:     15 * time.Second,
		MempoolTTL:    5 * time.Second,
		BlockTTL:      10 * time.Minute,
		SweepInterval: time.Minute,
	}
}

func TestGet_HitSkipsUpstream(t *testing.T) {
	gw := &fakeGateway{result: json.RawMessage(`{"blocks":100}`)}
	cache := New(gw, testCacheConfig())

	ctx := context.Background()
	if _, err := cache.Get(ctx, rpc.MethodGetBlockchainInfo); err != nil {
		t.Fatalf("first Get() error = %v", err)
	}
	value, err := cache.Get(ctx, rpc.MethodGetBlockchainInfo)
	if err != nil {
		t.Fatalf("second Get() error = %v", err)
	}

	if string(value) != `{"blocks":100}` {
		t.Errorf("value = %s", value)
	}
	if gw.calls.Load() != 1 {
		t.Errorf("upstream called %d times, want 1", gw.calls.Load())
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit / 1 miss", stats)
	}
}

func TestGet_NonAllowListedMethodBypassesCache(t *testing.T) {
	gw := &fakeGateway{result: json.RawMessage(`"tx"`)}
	cache := New(gw, testCacheConfig())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := cache.Get(ctx, rpc.MethodGetRawTransaction, "abc", 1); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}

	if gw.calls.Load() != 3 {
		t.Errorf("upstream called %d times, want 3 (no caching for raw transactions)", gw.calls.Load())
	}
}

func TestGet_DistinctParamsGetDistinctEntries(t *testing.T) {
	gw := &fakeGateway{result: json.RawMessage(`{}`)}
	cache := New(gw, testCacheConfig())

	ctx := context.Background()
	if _, err := cache.Get(ctx, rpc.MethodGetBlock, 100, 2); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := cache.Get(ctx, rpc.MethodGetBlock, 101, 2); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if gw.calls.Load() != 2 {
		t.Errorf("upstream called %d times, want 2", gw.calls.Load())
	}
	if stats := cache.Stats(); stats.Entries != 2 {
		t.Errorf("entries = %d, want 2", stats.Entries)
	}
}

func TestGet_SingleFlight(t *testing.T) {
	gw := &fakeGateway{
		result:  json.RawMessage(`{"difficulty":1}`),
		release: make(chan struct{}),
	}
	cache := New(gw, testCacheConfig())

	const callers = 8
	var wg sync.WaitGroup
	values := make([]json.RawMessage, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			values[i], errs[i] = cache.Get(context.Background(), rpc.MethodGetMiningInfo)
		}(i)
	}

	// Let all callers reach the cache before the refresh completes.
	time.Sleep(50 * time.Millisecond)
	close(gw.release)
	wg.Wait()

	if gw.calls.Load() != 1 {
		t.Fatalf("upstream called %d times, want exactly 1 (single-flight)", gw.calls.Load())
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Errorf("caller %d error = %v", i, errs[i])
		}
		if string(values[i]) != `{"difficulty":1}` {
			t.Errorf("caller %d value = %s", i, values[i])
		}
	}
}

func TestGet_RefreshSurvivesLeaderCancel(t *testing.T) {
	gw := &fakeGateway{
		result:  json.RawMessage(`{"blocks":42}`),
		release: make(chan struct{}),
	}
	cache := New(gw, testCacheConfig())

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderDone := make(chan struct{})
	go func() {
		defer close(leaderDone)
		_, _ = cache.Get(leaderCtx, rpc.MethodGetBlockchainInfo)
	}()

	type outcome struct {
		value json.RawMessage
		err   error
	}
	waiter := make(chan outcome, 1)
	go func() {
		// Join the refresh the leader started.
		time.Sleep(20 * time.Millisecond)
		v, err := cache.Get(context.Background(), rpc.MethodGetBlockchainInfo)
		waiter <- outcome{v, err}
	}()

	// The leader's connection goes away mid-refresh; the waiter must still
	// receive the result.
	time.Sleep(50 * time.Millisecond)
	cancelLeader()
	close(gw.release)

	got := <-waiter
	if got.err != nil {
		t.Fatalf("waiter error = %v, want value despite leader cancellation", got.err)
	}
	if string(got.value) != `{"blocks":42}` {
		t.Errorf("waiter value = %s, want {\"blocks\":42}", got.value)
	}
	<-leaderDone
	if gw.calls.Load() != 1 {
		t.Errorf("upstream called %d times, want 1", gw.calls.Load())
	}
}

func TestGet_ErrorsAreNotCached(t *testing.T) {
	gw := &fakeGateway{err: errors.New("node down")}
	cache := New(gw, testCacheConfig())

	ctx := context.Background()
	if _, err := cache.Get(ctx, rpc.MethodGetNetworkInfo); err == nil {
		t.Fatal("expected error")
	}

	gw.err = nil
	gw.result = json.RawMessage(`{"connections":8}`)

	value, err := cache.Get(ctx, rpc.MethodGetNetworkInfo)
	if err != nil {
		t.Fatalf("Get() after recovery error = %v", err)
	}
	if string(value) != `{"connections":8}` {
		t.Errorf("value = %s", value)
	}
	if gw.calls.Load() != 2 {
		t.Errorf("upstream called %d times, want 2 (failure must not be cached)", gw.calls.Load())
	}
}

func TestGet_ExpiredEntryRefreshes(t *testing.T) {
	gw := &fakeGateway{result: json.RawMessage(`1`)}
	cfg := testCacheConfig()
	cfg.MiningTTL = 10 * time.Millisecond
	cache := New(gw, cfg)

	ctx := context.Background()
	if _, err := cache.Get(ctx, rpc.MethodGetDifficulty); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	time.Sleep(25 * time.Millisecond)

	if _, err := cache.Get(ctx, rpc.MethodGetDifficulty); err != nil {
		t.Fatalf("Get() after expiry error = %v", err)
	}
	if gw.calls.Load() != 2 {
		t.Errorf("upstream called %d times, want 2 after expiry", gw.calls.Load())
	}
}

func TestSweep_RemovesExpiredEntries(t *testing.T) {
	gw := &fakeGateway{result: json.RawMessage(`{}`)}
	cfg := testCacheConfig()
	cfg.SummaryTTL = 5 * time.Millisecond
	cache := New(gw, cfg)

	if _, err := cache.Get(context.Background(), rpc.MethodGetBlockchainInfo); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stats := cache.Stats(); stats.Entries != 1 {
		t.Fatalf("entries = %d, want 1", stats.Entries)
	}

	time.Sleep(15 * time.Millisecond)
	cache.sweep()

	if stats := cache.Stats(); stats.Entries != 0 {
		t.Errorf("entries = %d after sweep, want 0", stats.Entries)
	}
}

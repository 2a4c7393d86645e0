package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/config"
	"github.com/caribu66/veruspulse-sub016/internal/events"
	"github.com/caribu66/veruspulse-sub016/internal/models"
	"github.com/caribu66/veruspulse-sub016/internal/scan"
	"github.com/caribu66/veruspulse-sub016/internal/verrors"
)

const testAddr = "iB5PRXMHLYcNtM8dfLB6KwfJrHU2mKDYuU"

type fakeIdentities struct {
	record *models.IdentityRecord
	cached *models.IdentityRecord
	stats  *models.IdentityStats
	err    error
}

func (f *fakeIdentities) Resolve(ctx context.Context, input string) (*models.IdentityRecord, error) {
	return f.record, f.err
}

func (f *fakeIdentities) GetCached(ctx context.Context, input string) (*models.IdentityRecord, error) {
	return f.cached, f.err
}

func (f *fakeIdentities) GetStats(ctx context.Context, addr string) (*models.IdentityStats, error) {
	if f.stats != nil {
		return f.stats, nil
	}
	return &models.IdentityStats{IdentityAddress: addr}, nil
}

type fakeScans struct {
	receipt  *scan.Receipt
	progress *scan.Progress
	err      error
}

func (f *fakeScans) RequestPriorityScan(addr string) (*scan.Receipt, error) {
	return f.receipt, f.err
}

func (f *fakeScans) RequestFullScan(ctx context.Context, addr string) (*scan.Progress, error) {
	return f.progress, f.err
}

func (f *fakeScans) GetProgress(handle string) *scan.Progress {
	if f.progress != nil && f.progress.Handle == handle {
		return f.progress
	}
	return nil
}

type fakeTrends struct {
	snapshots []models.TrendSnapshot
}

func (f *fakeTrends) GetTrendingVerusIDs(ctx context.Context, limit int) ([]models.TrendSnapshot, error) {
	if limit < len(f.snapshots) {
		return f.snapshots[:limit], nil
	}
	return f.snapshots, nil
}

type fakeChain struct {
	payload string
	err     error
}

func (f *fakeChain) Get(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.payload), nil
}

func testServer(t *testing.T, identities IdentityServiceInterface, scans ScanServiceInterface, trends TrendServiceInterface, chain ChainReaderInterface) *Server {
	t.Helper()
	b := events.NewBroadcaster()
	go b.Run()
	t.Cleanup(b.Stop)

	return NewServer(
		&config.ServerConfig{Host: "127.0.0.1", Port: "0"},
		&config.EventsConfig{HeartbeatInterval: 50 * time.Millisecond, ClientBuffer: 8},
		identities, scans, trends, chain,
		b,
		nil,
		nil,
	)
}

func TestHandleResolve(t *testing.T) {
	record := &models.IdentityRecord{IdentityAddress: testAddr, Name: "alice@"}
	srv := testServer(t, &fakeIdentities{record: record}, &fakeScans{}, &fakeTrends{}, &fakeChain{})

	req := httptest.NewRequest("GET", "/api/identity/alice@", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var got models.IdentityRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.IdentityAddress != testAddr {
		t.Errorf("IdentityAddress = %s, want %s", got.IdentityAddress, testAddr)
	}
}

func TestHandleResolve_NotFound(t *testing.T) {
	srv := testServer(t, &fakeIdentities{err: verrors.NewNotFoundError("identity", "nobody@")}, &fakeScans{}, &fakeTrends{}, &fakeChain{})

	req := httptest.NewRequest("GET", "/api/identity/nobody@", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestHandleGetCached_Miss(t *testing.T) {
	srv := testServer(t, &fakeIdentities{}, &fakeScans{}, &fakeTrends{}, &fakeChain{})

	req := httptest.NewRequest("GET", "/api/identity/alice@/cached", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestHandlePriorityScan(t *testing.T) {
	receipt := &scan.Receipt{IdentityAddress: testAddr, Status: "scanning", Blocks: 10000}
	srv := testServer(t, &fakeIdentities{}, &fakeScans{receipt: receipt}, &fakeTrends{}, &fakeChain{})

	req := httptest.NewRequest("POST", "/api/identity/"+testAddr+"/scan", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rr.Code)
	}
}

func TestHandlePriorityScan_ConflictIsOK(t *testing.T) {
	srv := testServer(t, &fakeIdentities{}, &fakeScans{err: verrors.NewScanConflictError(testAddr)}, &fakeTrends{}, &fakeChain{})

	req := httptest.NewRequest("POST", "/api/identity/"+testAddr+"/scan", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for scan conflict", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "already scanning" {
		t.Errorf("body = %v, want already scanning status", body)
	}
}

func TestHandleGetStats_DerivedViews(t *testing.T) {
	stats := &models.IdentityStats{
		IdentityAddress: testAddr,
		TotalRewards:    10,
		RewardCount:     4,
		DailyStats: []models.DailyRewardStat{
			{Day: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), TotalAmount: 3, EventCount: 1},
			{Day: time.Date(2025, 10, 8, 0, 0, 0, 0, time.UTC), TotalAmount: 7, EventCount: 3},
		},
	}
	srv := testServer(t, &fakeIdentities{stats: stats}, &fakeScans{}, &fakeTrends{}, &fakeChain{})

	req := httptest.NewRequest("GET", "/api/identity/"+testAddr+"/stats", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var got statsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Weekly) != 2 {
		t.Errorf("len(Weekly) = %d, want 2", len(got.Weekly))
	}
	if len(got.Monthly) != 1 {
		t.Errorf("len(Monthly) = %d, want 1", len(got.Monthly))
	}
}

func TestHandleTrending_LimitValidation(t *testing.T) {
	srv := testServer(t, &fakeIdentities{}, &fakeScans{}, &fakeTrends{}, &fakeChain{})

	for _, limit := range []string{"0", "-1", "101", "abc"} {
		req := httptest.NewRequest("GET", "/api/trending?limit="+limit, nil)
		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("limit %q status = %d, want 400", limit, rr.Code)
		}
	}
}

func TestHandleTrending_EmptyIsArray(t *testing.T) {
	srv := testServer(t, &fakeIdentities{}, &fakeScans{}, &fakeTrends{}, &fakeChain{})

	req := httptest.NewRequest("GET", "/api/trending", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if body := rr.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want empty JSON array", body)
	}
}

func TestChainHandler_PassThrough(t *testing.T) {
	srv := testServer(t, &fakeIdentities{}, &fakeScans{}, &fakeTrends{}, &fakeChain{payload: `{"chain":"VRSC","blocks":3200000}`})

	req := httptest.NewRequest("GET", "/api/chain/info", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["chain"] != "VRSC" {
		t.Errorf("chain = %v, want VRSC", got["chain"])
	}
}

func TestChainHandler_NodeError(t *testing.T) {
	srv := testServer(t, &fakeIdentities{}, &fakeScans{}, &fakeTrends{}, &fakeChain{err: verrors.NewTransportError("http://node", context.DeadlineExceeded)})

	req := httptest.NewRequest("GET", "/api/chain/info", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rr.Code)
	}
}

func TestHandleScanProgress_Unknown(t *testing.T) {
	srv := testServer(t, &fakeIdentities{}, &fakeScans{}, &fakeTrends{}, &fakeChain{})

	req := httptest.NewRequest("GET", "/api/scans/no-such-handle", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestHandleHealth_Degraded(t *testing.T) {
	b := events.NewBroadcaster()
	go b.Run()
	t.Cleanup(b.Stop)

	srv := NewServer(
		&config.ServerConfig{Host: "127.0.0.1", Port: "0"},
		&config.EventsConfig{HeartbeatInterval: time.Second, ClientBuffer: 8},
		&fakeIdentities{}, &fakeScans{}, &fakeTrends{}, &fakeChain{},
		b,
		map[string]Pinger{"postgres": pingerFunc(func(ctx context.Context) error { return context.DeadlineExceeded })},
		nil,
	)

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/events"
	"github.com/caribu66/veruspulse-sub016/internal/rpc"
)

type fakeGateway struct {
	hash  string
	block *rpc.Block
}

func (f *fakeGateway) GetBestBlockHash(ctx context.Context) (string, error) {
	return f.hash, nil
}

func (f *fakeGateway) GetBlock(ctx context.Context, hashOrHeight interface{}, verbosity int) (*rpc.Block, error) {
	return f.block, nil
}

func TestPoll_EmitsOnTipChange(t *testing.T) {
	b := events.NewBroadcaster()
	go b.Run()
	defer b.Stop()

	ch := make(chan events.Event, 16)
	b.AddListener("test", ch)

	gw := &fakeGateway{hash: "hash-1"}
	w := New(gw, b, time.Minute)

	// First poll primes the tip without emitting.
	if err := w.poll(context.Background()); err != nil {
		t.Fatalf("poll() error = %v", err)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %s on priming poll", e.Type)
	case <-time.After(50 * time.Millisecond):
	}

	// Unchanged tip stays quiet.
	if err := w.poll(context.Background()); err != nil {
		t.Fatalf("poll() error = %v", err)
	}

	gw.hash = "hash-2"
	gw.block = &rpc.Block{
		Hash:   "hash-2",
		Height: 3_200_001,
		Time:   1_760_000_000,
		Tx:     []rpc.RawTransaction{{TxID: "tx-1"}, {TxID: "tx-2"}},
	}
	if err := w.poll(context.Background()); err != nil {
		t.Fatalf("poll() error = %v", err)
	}

	wantTypes := []string{"new-block", "new-tx", "new-tx"}
	for i, want := range wantTypes {
		select {
		case e := <-ch:
			if e.Type != want {
				t.Errorf("event %d type = %s, want %s", i, e.Type, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event %d (%s)", i, want)
		}
	}
}

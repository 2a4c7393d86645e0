package rpc

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/caribu66/veruspulse-sub016/internal/logging"
)

// EndpointPool manages multiple daemon RPC endpoints with failover on
// connection-level failure. Strategy: stick to the current endpoint until it
// fails, then switch to the next one that is not cooling down.
type EndpointPool struct {
	endpoints    []string
	currentIndex int
	mu           sync.RWMutex
	cooldowns    map[int]time.Time
	cooldownTime time.Duration
}

// NewEndpointPool creates a pool from an ordered endpoint list. The first
// entry is the preferred primary.
func NewEndpointPool(endpoints []string, cooldown time.Duration) (*EndpointPool, error) {
	var valid []string
	for _, ep := range endpoints {
		ep = strings.TrimSpace(ep)
		if ep != "" {
			valid = append(valid, ep)
		}
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}

	if cooldown == 0 {
		cooldown = 30 * time.Second
	}

	return &EndpointPool{
		endpoints:    valid,
		cooldowns:    make(map[int]time.Time),
		cooldownTime: cooldown,
	}, nil
}

// Current returns the active endpoint URL
func (p *EndpointPool) Current() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.endpoints[p.currentIndex]
}

// Size returns the number of endpoints in the pool
func (p *EndpointPool) Size() int {
	return len(p.endpoints)
}

// OnFailure marks the current endpoint as failed and switches to the next
// endpoint whose cooldown has expired. Returns an error when every endpoint
// is cooling down.
func (p *EndpointPool) OnFailure() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	logger := logging.GetGlobalLogger()

	p.cooldowns[p.currentIndex] = time.Now()
	startIndex := p.currentIndex

	for i := 0; i < len(p.endpoints); i++ {
		nextIndex := (p.currentIndex + 1 + i) % len(p.endpoints)

		if markedAt, exists := p.cooldowns[nextIndex]; exists {
			if time.Since(markedAt) < p.cooldownTime {
				continue
			}
			delete(p.cooldowns, nextIndex)
		}

		p.currentIndex = nextIndex
		logger.WithFields(map[string]interface{}{
			"from": startIndex,
			"to":   nextIndex,
		}).Warn("RPC endpoint failed, switched to failover endpoint")
		return nil
	}

	return fmt.Errorf("all %d RPC endpoints are unavailable", len(p.endpoints))
}

// TryResetToPrimary switches back to the primary endpoint if its cooldown
// has expired. Returns true when the pool is on the primary afterwards.
func (p *EndpointPool) TryResetToPrimary() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.currentIndex == 0 {
		return true
	}

	if markedAt, exists := p.cooldowns[0]; exists {
		if time.Since(markedAt) < p.cooldownTime {
			return false
		}
		delete(p.cooldowns, 0)
	}

	p.currentIndex = 0
	logging.GetGlobalLogger().Info("RPC endpoint pool reset to primary")
	return true
}

// Status describes the pool for health reporting
type Status struct {
	TotalEndpoints int              `json:"totalEndpoints"`
	CurrentIndex   int              `json:"currentIndex"`
	Endpoints      []EndpointStatus `json:"endpoints"`
}

// EndpointStatus describes one endpoint in the pool
type EndpointStatus struct {
	Index             int           `json:"index"`
	URL               string        `json:"url"`
	IsCurrent         bool          `json:"isCurrent"`
	InCooldown        bool          `json:"inCooldown"`
	CooldownRemaining time.Duration `json:"cooldownRemaining,omitempty"`
}

// Status returns the current status of the pool
func (p *EndpointPool) Status() *Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := &Status{
		TotalEndpoints: len(p.endpoints),
		CurrentIndex:   p.currentIndex,
		Endpoints:      make([]EndpointStatus, len(p.endpoints)),
	}

	for i, url := range p.endpoints {
		es := EndpointStatus{
			Index:     i,
			URL:       url,
			IsCurrent: i == p.currentIndex,
		}

		if markedAt, exists := p.cooldowns[i]; exists {
			remaining := p.cooldownTime - time.Since(markedAt)
			if remaining > 0 {
				es.InCooldown = true
				es.CooldownRemaining = remaining
			}
		}

		status.Endpoints[i] = es
	}

	return status
}

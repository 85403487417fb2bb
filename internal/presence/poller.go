// Package presence reconciles each user's online flag by periodically probing
// the user's own status endpoint.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/relayhub/relay/internal/bus"
	"github.com/relayhub/relay/internal/registry"
	"go.uber.org/zap"
)

// StatusPath is the well-known health path every peer serves.
const StatusPath = "/api/v1/status"

// StatusOnline is the sentinel status value meaning reachable and healthy.
const StatusOnline = "ok"

// Change is the bus payload for a presence transition.
type Change struct {
	UserID int  `json:"user_id"`
	Online bool `json:"online"`
}

// Poller probes every registered user's status endpoint on a fixed interval
// and writes the result back into the registry. Probes fan out concurrently,
// each bounded by its own timeout, so one stalled peer cannot stall the cycle.
type Poller struct {
	reg      *registry.Registry
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration
	timeout  time.Duration
	http     *http.Client
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewPoller creates a poller. interval is the cycle period, timeout bounds
// each individual probe.
func NewPoller(reg *registry.Registry, b *bus.Bus, logger *zap.Logger, interval, timeout time.Duration) *Poller {
	return &Poller{
		reg:      reg,
		bus:      b,
		logger:   logger,
		interval: interval,
		timeout:  timeout,
		http:     &http.Client{Timeout: timeout},
	}
}

// Start begins the polling loop in a background goroutine.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop cancels the loop and waits for the current cycle to finish.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("presence poller started", zap.Duration("interval", p.interval))

	// First cycle runs immediately; cancellation is observed at iteration
	// boundaries, never mid-probe.
	p.checkAll(ctx)

	for {
		select {
		case <-ticker.C:
			p.checkAll(ctx)
		case <-ctx.Done():
			p.logger.Info("presence poller stopped")
			return
		}
	}
}

// checkAll probes every known user concurrently and writes each computed
// status into the registry, unconditionally, even when unchanged.
func (p *Poller) checkAll(ctx context.Context) {
	users := p.reg.GetUsers(nil)

	online := make([]bool, len(users))
	var wg sync.WaitGroup
	for i, user := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			online[i] = p.probe(ctx, user)
		}()
	}
	wg.Wait()

	for i, user := range users {
		if user.Online != online[i] {
			p.logger.Info("user status changed",
				zap.Int("user_id", user.ID),
				zap.Bool("online", online[i]))
			p.bus.Publish(bus.Event{
				Kind:      bus.KindPresenceChanged,
				Timestamp: time.Now(),
				Payload:   Change{UserID: user.ID, Online: online[i]},
			})
		}
		p.reg.SetUserOnline(user.ID, online[i])
	}
}

// probe fetches the user's status endpoint and reports whether the peer is
// reachable and announces the online sentinel. Every failure mode maps to
// offline and is logged, never propagated.
func (p *Poller) probe(ctx context.Context, user registry.User) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, user.Endpoint+StatusPath, nil)
	if err != nil {
		p.logger.Error("error when fetching status", zap.Int("user_id", user.ID), zap.Error(err))
		return false
	}

	resp, err := p.http.Do(req)
	if err != nil {
		p.logger.Error("error when fetching status", zap.Int("user_id", user.ID), zap.Error(err))
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		p.logger.Error("error when fetching status",
			zap.Int("user_id", user.ID),
			zap.Error(fmt.Errorf("peer returned status %d", resp.StatusCode)))
		return false
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		p.logger.Error("error when fetching status", zap.Int("user_id", user.ID), zap.Error(err))
		return false
	}
	return health.Status == StatusOnline
}

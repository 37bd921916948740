package provider

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Snapshot is the latest known provider state served to the admin dashboard.
type Snapshot struct {
	Stock     *Stock    `json:"stock"`
	Jobs      []Job     `json:"jobs"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Poller refreshes the provider snapshot on a fixed interval until its
// context is cancelled. Reads never block on the upstream.
type Poller struct {
	client   *Client
	interval time.Duration
	log      *slog.Logger

	mu       sync.RWMutex
	snapshot *Snapshot
}

func NewPoller(client *Client, interval time.Duration, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{client: client, interval: interval, log: log}
}

// Run polls until ctx is done. The first refresh happens immediately.
func (p *Poller) Run(ctx context.Context) {
	p.refresh(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *Poller) refresh(ctx context.Context) {
	stock, err := p.client.GetStock(ctx)
	if err != nil {
		p.log.Error("refresh provider stock", "err", err)
		return
	}
	jobs, err := p.client.ListJobs(ctx)
	if err != nil {
		p.log.Error("refresh provider jobs", "err", err)
		return
	}

	p.mu.Lock()
	p.snapshot = &Snapshot{Stock: stock, Jobs: jobs, FetchedAt: time.Now().UTC()}
	p.mu.Unlock()
}

// Snapshot returns the latest provider state, or nil before the first
// successful refresh.
func (p *Poller) Snapshot() *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// Package health tracks whether the legacy card store is reachable and
// publishes the result on the gRPC health service and over HTTP.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/guard-e/hostel/internal/hostel/gateway"
)

// Service is the name registered on the gRPC health server for the card
// store. The empty name reports overall server health.
const Service = "hostel.CardStore"

// Snapshot is the result of the most recent probe.
type Snapshot struct {
	Up        bool      `json:"up"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
	Kind      string    `json:"kind,omitempty"`
}

// ProberConfig holds the parameters for NewProber.
type ProberConfig struct {
	// Interval between probes. Defaults to 15s.
	Interval time.Duration
	// Timeout of a single probe. Defaults to 3s.
	Timeout time.Duration
	// OnChange, if set, is called after every probe with the result.
	OnChange func(up bool)
}

// Prober pings the store on an interval.
type Prober struct {
	pinger   gateway.Pinger
	grpc     *health.Server
	interval time.Duration
	timeout  time.Duration
	onChange func(bool)
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	last   Snapshot
	cancel context.CancelFunc
	done   chan struct{}
}

func NewProber(p gateway.Pinger, cfg ProberConfig, logger *slog.Logger) *Prober {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	srv := health.NewServer()
	srv.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Prober{
		pinger:   p,
		grpc:     srv,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		onChange: cfg.OnChange,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "health")),
	}
}

// GRPC returns the health server to register on a grpc.Server.
func (p *Prober) GRPC() *health.Server { return p.grpc }

// Last returns the most recent snapshot.
func (p *Prober) Last() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// CheckOnce pings the store and publishes the result.
func (p *Prober) CheckOnce(ctx context.Context) Snapshot {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pinger.Ping(ctx)
	snap := Snapshot{Up: err == nil, CheckedAt: p.now().UTC()}
	if err != nil {
		snap.Error = err.Error()
		kind, _ := gateway.KindOf(err)
		snap.Kind = kind.String()
	}

	p.mu.Lock()
	prev := p.last
	p.last = snap
	p.mu.Unlock()

	status := healthpb.HealthCheckResponse_SERVING
	if !snap.Up {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	p.grpc.SetServingStatus(Service, status)

	switch {
	case !snap.Up && (prev.Up || prev.CheckedAt.IsZero()):
		p.logger.Warn("card store unreachable", slog.String("error", snap.Error), slog.String("kind", snap.Kind))
	case snap.Up && !prev.Up:
		p.logger.Info("card store reachable")
	}
	if p.onChange != nil {
		p.onChange(snap.Up)
	}
	return snap
}

// Start probes immediately and then on the interval until Stop or ctx is done.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return
	}
	p.done = make(chan struct{})
	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)
}

// Stop ends the loop and marks every service NOT_SERVING. Safe to call more
// than once and before Start.
func (p *Prober) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	p.grpc.Shutdown()
}

func (p *Prober) loop(ctx context.Context) {
	defer close(p.done)

	p.CheckOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CheckOnce(ctx)
		}
	}
}

// ServeHTTP reports the last snapshot: 200 when the store is up, 503 otherwise.
func (p *Prober) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	snap := p.Last()
	status := http.StatusOK
	if !snap.Up {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(snap)
}

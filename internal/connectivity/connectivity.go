// Package connectivity provides the default production implementation of
// the network status collaborator (spec §6.4): a small poller that dials a
// configured host on an interval and reports connected/disconnected
// transitions to a registered handler.
package connectivity

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// DefaultPollInterval is how often the monitor dials the target host.
const DefaultPollInterval = 10 * time.Second

// DefaultDialTimeout bounds a single connectivity probe.
const DefaultDialTimeout = 5 * time.Second

// Handler is called on every observed connected/disconnected transition,
// matching spec §6.4's `{connected: bool}` event shape.
type Handler func(ctx context.Context, connected bool)

// Monitor polls a target address and reports connectivity transitions.
type Monitor struct {
	target       string
	pollInterval time.Duration
	dialTimeout  time.Duration
	dial         func(ctx context.Context, network, address string) (net.Conn, error)
	logger       *slog.Logger
}

// New creates a Monitor that probes target (host:port) on DefaultPollInterval.
func New(target string, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}

	var dialer net.Dialer

	return &Monitor{
		target:       target,
		pollInterval: DefaultPollInterval,
		dialTimeout:  DefaultDialTimeout,
		dial:         dialer.DialContext,
		logger:       logger,
	}
}

// WithPollInterval overrides the polling cadence.
func (m *Monitor) WithPollInterval(d time.Duration) *Monitor {
	m.pollInterval = d
	return m
}

// Run polls until ctx is canceled, invoking handler on every transition.
// The initial state is always reported once, whatever it is.
func (m *Monitor) Run(ctx context.Context, handler Handler) {
	var lastKnown *bool

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	m.probeAndReport(ctx, handler, &lastKnown)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeAndReport(ctx, handler, &lastKnown)
		}
	}
}

func (m *Monitor) probeAndReport(ctx context.Context, handler Handler, lastKnown **bool) {
	connected := m.probe(ctx)

	if *lastKnown != nil && **lastKnown == connected {
		return
	}

	*lastKnown = &connected

	m.logger.Debug("connectivity: transition observed", slog.Bool("connected", connected))

	handler(ctx, connected)
}

func (m *Monitor) probe(ctx context.Context) bool {
	dialCtx, cancel := context.WithTimeout(ctx, m.dialTimeout)
	defer cancel()

	conn, err := m.dial(dialCtx, "tcp", m.target)
	if err != nil {
		return false
	}

	_ = conn.Close()

	return true
}

package network

import (
	"context"
	"net"
	"sync"
	"time"

	"song-recognition/logger"
)

type Connectivity int

const (
	Full Connectivity = iota
	// Limited means names resolve but the probe host is unreachable
	Limited
	Portal
	LocalOnly
)

var connectivityNames = map[Connectivity]string{
	Full:      "full",
	Limited:   "limited",
	Portal:    "portal",
	LocalOnly: "local-only",
}

func (c Connectivity) String() string {
	if name, ok := connectivityNames[c]; ok {
		return name
	}
	return "unknown"
}

func (c Connectivity) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Monitor tracks connectivity by periodically dialing a probe address.
type Monitor struct {
	addr     string
	interval time.Duration
	dialer   *net.Dialer
	resolver *net.Resolver

	mu      sync.RWMutex
	current Connectivity
	subs    map[int]func(Connectivity)
	nextID  int
}

// NewMonitor creates a monitor that assumes full connectivity until the
// first probe says otherwise.
func NewMonitor(addr string, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		addr:     addr,
		interval: interval,
		dialer:   &net.Dialer{Timeout: 5 * time.Second},
		resolver: net.DefaultResolver,
		current:  Full,
		subs:     map[int]func(Connectivity){},
	}
}

func (m *Monitor) Connectivity() Connectivity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Subscribe calls fn on every change and returns a func that stops it.
func (m *Monitor) Subscribe(fn func(Connectivity)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Set updates the current value and notifies subscribers if it changed.
func (m *Monitor) Set(c Connectivity) {
	m.mu.Lock()
	if m.current == c {
		m.mu.Unlock()
		return
	}
	prev := m.current
	m.current = c
	subs := make([]func(Connectivity), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	logger.Info("[network] connectivity changed",
		logger.String("from", prev.String()),
		logger.String("to", c.String()))

	for _, fn := range subs {
		fn(c)
	}
}

// Probe checks the probe address once and records the result.
func (m *Monitor) Probe(ctx context.Context) Connectivity {
	c := m.probe(ctx)
	if ctx.Err() == nil {
		m.Set(c)
	}
	return c
}

func (m *Monitor) probe(ctx context.Context) Connectivity {
	host, _, err := net.SplitHostPort(m.addr)
	if err != nil {
		logger.Warn("[network] invalid probe address", logger.String("addr", m.addr), logger.ErrorField(err))
		return LocalOnly
	}

	if net.ParseIP(host) == nil {
		if _, err := m.resolver.LookupHost(ctx, host); err != nil {
			logger.Debug("[network] probe lookup failed", logger.ErrorField(err))
			return LocalOnly
		}
	}

	conn, err := m.dialer.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		logger.Debug("[network] probe dial failed", logger.ErrorField(err))
		return Limited
	}
	conn.Close()
	return Full
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

package connectivity

import (
	"context"
	"log"
	"net"
	"sync"
	"time"

	portsout "karte/internal/application/ports/out"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultDebounce = 2
	defaultTimeout  = 3 * time.Second
)

type Probe interface {
	Probe(ctx context.Context) bool
}

type ProbeFunc func(ctx context.Context) bool

func (f ProbeFunc) Probe(ctx context.Context) bool {
	return f(ctx)
}

// DialProbe reports online when a TCP connection to Address succeeds.
type DialProbe struct {
	Address string
	Timeout time.Duration
}

func (p DialProbe) Probe(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// InterfaceProbe reports online when any non-loopback interface is up and
// has an address.
type InterfaceProbe struct{}

func (InterfaceProbe) Probe(context.Context) bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addresses, err := iface.Addrs()
		if err == nil && len(addresses) > 0 {
			return true
		}
	}
	return false
}

// Observer polls a Probe and reports a state change only after it has been
// seen on debounce consecutive polls.
type Observer struct {
	probe    Probe
	interval time.Duration
	debounce int
	logger   *log.Logger

	mu        sync.Mutex
	online    bool
	pending   bool
	streak    int
	listeners listenerSet
	cancel    context.CancelFunc
	done      chan struct{}
}

var _ portsout.ConnectivityObserver = (*Observer)(nil)

func NewObserver(probe Probe, interval time.Duration, debounce int, logger *log.Logger) *Observer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Observer{
		probe:    probe,
		interval: interval,
		debounce: debounce,
		logger:   logger,
		online:   true,
	}
}

func (o *Observer) IsOnline() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

func (o *Observer) Subscribe(listener func(online bool)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.listeners.add(listener)

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.listeners.remove(id)
	}
}

// Start takes an initial reading synchronously, then polls in the
// background until ctx ends or Stop is called.
func (o *Observer) Start(ctx context.Context) {
	if o.probe == nil {
		return
	}
	o.mu.Lock()
	if o.cancel != nil {
		o.mu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	o.mu.Unlock()

	initial := o.probe.Probe(pollCtx)
	o.mu.Lock()
	o.online = initial
	o.mu.Unlock()
	o.logf("connectivity observer started online=%t interval=%s debounce=%d", initial, o.interval, o.debounce)

	go o.run(pollCtx)
}

func (o *Observer) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	done := o.done
	o.cancel = nil
	o.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (o *Observer) run(ctx context.Context) {
	defer close(o.done)
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.observe(o.probe.Probe(ctx))
		}
	}
}

func (o *Observer) observe(reading bool) {
	o.mu.Lock()
	if reading == o.online {
		o.streak = 0
		o.mu.Unlock()
		return
	}
	if o.pending != reading {
		o.pending = reading
		o.streak = 0
	}
	o.streak++
	if o.streak < o.debounce {
		o.mu.Unlock()
		return
	}

	o.online = reading
	o.streak = 0
	listeners := o.listeners.snapshot()
	o.mu.Unlock()

	o.logf("connectivity changed online=%t", reading)
	for _, listener := range listeners {
		listener(reading)
	}
}

func (o *Observer) logf(format string, args ...any) {
	if o == nil || o.logger == nil {
		return
	}
	o.logger.Printf(format, args...)
}

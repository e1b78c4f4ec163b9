// Package manager drives a TCC over a CAN bus: it encodes commands, applies
// telemetry timeouts and keeps the live parameter table current from a
// background receive goroutine.
package manager

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tcc-gateway/internal/can"
	"tcc-gateway/internal/models"
	"tcc-gateway/internal/tcc"
)

// State of the bus connection
type State int32

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "OPEN"
	}
	return "CLOSED"
}

const (
	DefaultJoinTimeout    = time.Second
	DefaultReceiveTimeout = time.Second
)

// ErrNotOpen is returned by operations that need the bus while it is closed
var ErrNotOpen = fmt.Errorf("%w: bus not open", tcc.ErrTransport)

// Change describes one actual change of a live parameter
type Change struct {
	Parameter tcc.Parameter
	Previous  tcc.Value
	Value     tcc.Value
	CANID     uint32
	Time      time.Time
}

// Sample converts the change into a recordable sample
func (c Change) Sample(iface string) models.ParameterSample {
	return models.ParameterSample{
		Timestamp: c.Time,
		Interface: iface,
		Parameter: c.Parameter.String(),
		ID:        c.Parameter.ID(),
		CANID:     c.CANID,
		Value:     c.Value.Float(),
	}
}

// Options configures a Manager. Zero fields take defaults.
type Options struct {
	Registry       *tcc.Registry
	Opener         can.Opener
	Logger         zerolog.Logger
	JoinTimeout    time.Duration
	ReceiveTimeout time.Duration

	// OnParameterChange is called from the receive goroutine, outside any
	// lock, once per actual change of a live parameter.
	OnParameterChange func(Change)
}

// Manager owns one CAN bus connection and the live tables fed by it
type Manager struct {
	registry       *tcc.Registry
	opener         can.Opener
	logger         zerolog.Logger
	joinTimeout    time.Duration
	receiveTimeout time.Duration
	onChange       func(Change)

	lifecycle sync.RWMutex // serialises Open/Close, guards the fields below
	bus       can.Bus
	iface     string
	stop      chan struct{}
	done      chan struct{}
	state     atomic.Int32

	mu         sync.Mutex // guards parameters and timeouts
	parameters map[tcc.Parameter]tcc.Value
	timeouts   map[tcc.Timeout]int
}

// New creates a closed manager with default live tables
func New(opts Options) *Manager {
	if opts.Registry == nil {
		opts.Registry = tcc.Default()
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = DefaultJoinTimeout
	}
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = DefaultReceiveTimeout
	}

	return &Manager{
		registry:       opts.Registry,
		opener:         opts.Opener,
		logger:         opts.Logger.With().Str("component", "manager").Logger(),
		joinTimeout:    opts.JoinTimeout,
		receiveTimeout: opts.ReceiveTimeout,
		onChange:       opts.OnParameterChange,
		parameters:     opts.Registry.DefaultParameterValues(),
		timeouts:       opts.Registry.DefaultTimeoutValues(),
	}
}

// Registry returns the tables the manager was built with
func (m *Manager) Registry() *tcc.Registry { return m.registry }

// State reports whether the bus is open
func (m *Manager) State() State { return State(m.state.Load()) }

// IsOpen is State() == StateOpen
func (m *Manager) IsOpen() bool { return m.State() == StateOpen }

// Interface returns the channel name of the open bus, or "" when closed
func (m *Manager) Interface() string {
	m.lifecycle.RLock()
	defer m.lifecycle.RUnlock()
	return m.iface
}

// Open connects to iface, starts the receive goroutine and applies the
// current root timeouts. Opening an open manager is a no-op.
func (m *Manager) Open(iface string) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.State() == StateOpen {
		return nil
	}
	if m.opener == nil {
		return fmt.Errorf("%w: no CAN opener configured", tcc.ErrConfiguration)
	}

	bus, err := m.opener(iface)
	if err != nil {
		m.logger.Error().Err(err).Str("interface", iface).Msg("failed to open CAN bus")
		return fmt.Errorf("%w: open %s: %w", tcc.ErrTransport, iface, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go m.receiveLoop(bus, stop, done)

	if err := m.applyRoots(bus, m.rootValue); err != nil {
		m.logger.Error().Err(err).Str("interface", iface).Msg("startup timeout sequence failed")
		m.shutdown(bus, stop, done)
		return fmt.Errorf("startup timeouts on %s: %w", iface, err)
	}

	m.bus, m.iface, m.stop, m.done = bus, iface, stop, done
	m.state.Store(int32(StateOpen))
	m.logger.Info().Str("interface", iface).Msg("CAN bus opened")
	return nil
}

// Close zeroes the root timeouts, stops the receive goroutine and closes the
// bus. Closing a closed manager is a no-op.
func (m *Manager) Close() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.State() == StateClosed {
		return nil
	}

	if err := m.applyRoots(m.bus, func(tcc.Timeout) int { return 0 }); err != nil {
		m.logger.Warn().Err(err).Msg("failed to zero timeouts on close")
	}

	// state is reset regardless of how the bus shuts down
	err := m.shutdown(m.bus, m.stop, m.done)
	iface := m.iface
	m.bus, m.iface, m.stop, m.done = nil, "", nil, nil
	m.state.Store(int32(StateClosed))
	m.logger.Info().Str("interface", iface).Msg("CAN bus closed")
	if err != nil {
		return fmt.Errorf("%w: close %s: %w", tcc.ErrTransport, iface, err)
	}
	return nil
}

func (m *Manager) shutdown(bus can.Bus, stop, done chan struct{}) error {
	close(stop)
	select {
	case <-done:
	case <-time.After(m.joinTimeout):
		m.logger.Warn().Dur("timeout", m.joinTimeout).Msg("receive goroutine did not stop, abandoning it")
	}
	return bus.Close()
}

// currentBus returns the open bus without holding the lifecycle lock across the send
func (m *Manager) currentBus() (can.Bus, error) {
	m.lifecycle.RLock()
	defer m.lifecycle.RUnlock()
	if m.bus == nil {
		return nil, ErrNotOpen
	}
	return m.bus, nil
}

func (m *Manager) rootValue(t tcc.Timeout) int {
	v, _ := m.Timeout(t)
	return v
}

// applyRoots sets every root timeout in order and stops at the first failure
func (m *Manager) applyRoots(bus can.Bus, value func(tcc.Timeout) int) error {
	for _, root := range m.registry.Roots() {
		if err := m.setTimeout(bus, root, value(root)); err != nil {
			return fmt.Errorf("root %s: %w", root, err)
		}
	}
	return nil
}

// Parameter returns the live value of p
func (m *Manager) Parameter(p tcc.Parameter) (tcc.Value, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.parameters[p]
	return v, ok
}

// Timeout returns the live value of t in milliseconds
func (m *Manager) Timeout(t tcc.Timeout) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.timeouts[t]
	return v, ok
}

// Snapshot is a copy of both live tables
type Snapshot struct {
	Parameters map[tcc.Parameter]tcc.Value
	Timeouts   map[tcc.Timeout]int
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		Parameters: make(map[tcc.Parameter]tcc.Value, len(m.parameters)),
		Timeouts:   make(map[tcc.Timeout]int, len(m.timeouts)),
	}
	for p, v := range m.parameters {
		s.Parameters[p] = v
	}
	for t, v := range m.timeouts {
		s.Timeouts[t] = v
	}
	return s
}

func transportError(err error) error {
	if errors.Is(err, tcc.ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %w", tcc.ErrTransport, err)
}

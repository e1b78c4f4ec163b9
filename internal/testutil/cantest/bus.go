// Package cantest provides an in-memory CAN bus for tests.
package cantest

import (
	"errors"
	"sync"
	"time"

	"tcc-gateway/internal/can"
	"tcc-gateway/internal/models"
)

// ErrInjected is returned by sends the test asked to fail
var ErrInjected = errors.New("cantest: injected send failure")

// Bus records sent frames and delivers injected ones to Receive
type Bus struct {
	mu        sync.Mutex
	sent      []models.CANFrame
	attempts  int
	failIDs   map[uint32]bool
	failAfter int // remaining successful sends before failing, -1 = never
	closed    bool
	closes    int

	receiveErr   error
	receiveFails int
	receives     int
	hold         chan struct{}

	inbound chan models.CANFrame
	done    chan struct{}
}

func NewBus() *Bus {
	return &Bus{
		failIDs:   make(map[uint32]bool),
		failAfter: -1,
		inbound:   make(chan models.CANFrame, 64),
		done:      make(chan struct{}),
	}
}

func (b *Bus) Send(frame models.CANFrame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return can.ErrClosed
	}
	b.attempts++
	if frame.ID > can.MaxStandardID || frame.DLC > 8 {
		return can.ErrFrame
	}
	if b.failIDs[frame.ID] {
		return ErrInjected
	}
	if b.failAfter == 0 {
		return ErrInjected
	}
	if b.failAfter > 0 {
		b.failAfter--
	}
	b.sent = append(b.sent, frame)
	return nil
}

func (b *Bus) Receive(timeout time.Duration) (models.CANFrame, error) {
	b.mu.Lock()
	b.receives++
	hold := b.hold
	if b.receiveFails > 0 {
		b.receiveFails--
		err := b.receiveErr
		b.mu.Unlock()
		return models.CANFrame{}, err
	}
	b.mu.Unlock()

	if hold != nil {
		<-hold
		return models.CANFrame{}, can.ErrClosed
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case f := <-b.inbound:
		return f, nil
	case <-b.done:
		return models.CANFrame{}, can.ErrClosed
	case <-expired:
		return models.CANFrame{}, can.ErrTimeout
	}
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}

// Inject queues a frame for Receive
func (b *Bus) Inject(frame models.CANFrame) {
	b.inbound <- frame
}

// Sent returns a copy of the frames sent so far
func (b *Bus) Sent() []models.CANFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.CANFrame(nil), b.sent...)
}

// Attempts counts sends on the open bus, failed ones included
func (b *Bus) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Reset forgets the recorded frames and attempts
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = nil
	b.attempts = 0
}

// FailID makes every send to id fail
func (b *Bus) FailID(id uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failIDs[id] = true
}

// FailAfter lets n sends succeed and fails every later one
func (b *Bus) FailAfter(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAfter = n
}

// FailReceive makes the next n receives return err
func (b *Bus) FailReceive(err error, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receiveErr, b.receiveFails = err, n
}

// Receives counts calls to Receive
func (b *Bus) Receives() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.receives
}

// HoldReceive makes later receives block, ignoring Close, until release is called
func (b *Bus) HoldReceive() (release func()) {
	hold := make(chan struct{})
	b.mu.Lock()
	b.hold = hold
	b.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(hold) }) }
}

func (b *Bus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Opener hands out buses and counts how often it was called
type Opener struct {
	mu    sync.Mutex
	buses []*Bus
	err   error
	setup func(*Bus)
}

// NewOpener returns an opener whose buses are prepared by setup (may be nil)
func NewOpener(setup func(*Bus)) *Opener {
	return &Opener{setup: setup}
}

// Fail makes subsequent opens return err
func (o *Opener) Fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

func (o *Opener) Open(channel string) (can.Bus, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	b := NewBus()
	if o.setup != nil {
		o.setup(b)
	}
	o.buses = append(o.buses, b)
	return b, nil
}

// Opens returns the number of successful opens
func (o *Opener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.buses)
}

// Last returns the most recently opened bus or nil
func (o *Opener) Last() *Bus {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.buses) == 0 {
		return nil
	}
	return o.buses[len(o.buses)-1]
}

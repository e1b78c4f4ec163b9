package manager

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tcc-gateway/internal/codec"
	"tcc-gateway/internal/models"
	"tcc-gateway/internal/tcc"
	"tcc-gateway/internal/testutil/cantest"
)

// leaves reached from all six roots, COVER_STATE counted under both parents
const startupFrames = 5 + 6 + 7 + 3 + 4 + 2

func newTestManager(t *testing.T, setup func(*cantest.Bus)) (*Manager, *cantest.Opener) {
	t.Helper()
	opener := cantest.NewOpener(setup)
	m := New(Options{
		Opener:         opener.Open,
		Logger:         zerolog.Nop(),
		ReceiveTimeout: 10 * time.Millisecond,
		JoinTimeout:    time.Second,
	})
	t.Cleanup(func() { m.Close() })
	return m, opener
}

func openTestManager(t *testing.T) (*Manager, *cantest.Bus) {
	t.Helper()
	m, opener := newTestManager(t, nil)
	if err := m.Open("vcan0"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	bus := opener.Last()
	bus.Reset()
	return m, bus
}

func float(f float64) *float64 { return &f }

func TestOpenIsIdempotent(t *testing.T) {
	m, opener := newTestManager(t, nil)

	if err := m.Open("vcan0"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Open("vcan0"); err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if got := opener.Opens(); got != 1 {
		t.Errorf("opens = %d, want 1", got)
	}
	if !m.IsOpen() || m.Interface() != "vcan0" {
		t.Errorf("state = %s iface = %q", m.State(), m.Interface())
	}

	bus := opener.Last()
	if got := len(bus.Sent()); got != startupFrames {
		t.Errorf("startup frames = %d, want %d", got, startupFrames)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if m.IsOpen() || m.Interface() != "" {
		t.Errorf("state after close = %s", m.State())
	}
	if !bus.Closed() {
		t.Error("bus not closed")
	}
	if got := len(bus.Sent()); got != 2*startupFrames {
		t.Errorf("frames after close = %d, want %d", got, 2*startupFrames)
	}
}

func TestStartupSequence(t *testing.T) {
	m, opener := newTestManager(t, nil)
	if err := m.Open("vcan0"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	sent := opener.Last().Sent()
	first := sent[0]
	want := [8]byte{0x01, 0x0C, 0x05, 0x00, 0x05, 0x17, 0x00, 0x14} // YAW_POSITION (1303) = 20 ms
	if first.ID != TimeoutCANID || first.Data != want {
		t.Errorf("first frame = %v, want 7D0#%X", first, want)
	}

	// ROVER_GNSS leaves go out with the ROVER sub-bus tag
	rover := sent[5+6+7]
	if rover.Data[0] != byte(tcc.TimeoutRover) {
		t.Errorf("rover frame = %v", rover)
	}

	if v, _ := m.Timeout(tcc.TimeoutYawPosition); v != 20 {
		t.Errorf("YAW_POSITION = %d, want 20", v)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if v, _ := m.Timeout(tcc.TimeoutYawPosition); v != 0 {
		t.Errorf("YAW_POSITION after close = %d, want 0", v)
	}
	if v, _ := m.Timeout(tcc.TimeoutYawResponse); v != 20 {
		t.Errorf("YAW_RESPONSE after close = %d, want 20", v)
	}
}

func TestOpenFailure(t *testing.T) {
	t.Run("opener", func(t *testing.T) {
		m, opener := newTestManager(t, nil)
		opener.Fail(errors.New("no such device"))

		err := m.Open("can9")
		if !errors.Is(err, tcc.ErrTransport) {
			t.Errorf("err = %v, want ErrTransport", err)
		}
		if m.IsOpen() {
			t.Error("manager open after failed Open")
		}
	})

	t.Run("startup", func(t *testing.T) {
		m, opener := newTestManager(t, func(b *cantest.Bus) { b.FailAfter(3) })

		if err := m.Open("vcan0"); !errors.Is(err, tcc.ErrTransport) {
			t.Errorf("err = %v, want ErrTransport", err)
		}
		if m.IsOpen() {
			t.Error("manager open after failed startup")
		}
		bus := opener.Last()
		if !bus.Closed() {
			t.Error("bus left open after failed startup")
		}
		// first root attempts every child, later roots are not tried
		if got := bus.Attempts(); got != 5 {
			t.Errorf("attempts = %d, want 5", got)
		}
	})

	t.Run("no opener", func(t *testing.T) {
		m := New(Options{Logger: zerolog.Nop()})
		if err := m.Open("vcan0"); !errors.Is(err, tcc.ErrConfiguration) {
			t.Errorf("err = %v, want ErrConfiguration", err)
		}
	})
}

func TestExecuteCommand(t *testing.T) {
	tests := []struct {
		name    string
		cmd     tcc.Command
		arg     *float64
		wantErr error
		wantID  uint32
		want    [8]byte
	}{
		{"yaw max", tcc.CmdYawPosition, float(180), nil, 1300, [8]byte{0, 0x02, 0, 0, 0x43, 0x34, 0, 0}},
		{"yaw min", tcc.CmdYawPosition, float(-180), nil, 1300, [8]byte{0, 0x02, 0, 0, 0xC3, 0x34, 0, 0}},
		{"pitch", tcc.CmdPitchPosition, float(45), nil, 1310, [8]byte{0, 0x02, 0, 0, 0x42, 0x34, 0, 0}},
		{"missing arg", tcc.CmdYawVelocity, nil, nil, 1301, [8]byte{0, 0x02}},
		{"fan on", tcc.CmdControlFan, float(1), nil, 1403, [8]byte{0, 0x0A, 0, 0, 0x01}},
		{"motion mode", tcc.CmdPitchMotionMode, float(2), nil, 1317, [8]byte{0, 0x0A, 0, 0, 0x02}},
		{"above max", tcc.CmdYawPosition, float(180.5), tcc.ErrRange, 0, [8]byte{}},
		{"below min", tcc.CmdPitchPosition, float(-20.01), tcc.ErrRange, 0, [8]byte{}},
		{"simple not integral", tcc.CmdYawMotionMode, float(1.5), tcc.ErrRange, 0, [8]byte{}},
		{"simple above max", tcc.CmdControlCover, float(2), tcc.ErrRange, 0, [8]byte{}},
		{"nan", tcc.CmdYawVelocity, float(math.NaN()), tcc.ErrRange, 0, [8]byte{}},
		{"unknown", tcc.Command(99), float(1), tcc.ErrUnknownIdentifier, 0, [8]byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, bus := openTestManager(t)

			err := m.ExecuteCommand(tt.cmd, tt.arg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if n := len(bus.Sent()); n != 0 {
					t.Errorf("sent %d frames for a rejected command", n)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExecuteCommand: %v", err)
			}

			sent := bus.Sent()
			if len(sent) != 1 {
				t.Fatalf("sent %d frames, want 1", len(sent))
			}
			if sent[0].ID != tt.wantID || sent[0].Data != tt.want || sent[0].DLC != 8 {
				t.Errorf("frame = %v, want %03X#%X", sent[0], tt.wantID, tt.want)
			}
		})
	}
}

func TestExecuteCommandClosed(t *testing.T) {
	m, _ := newTestManager(t, nil)
	err := m.ExecuteCommand(tcc.CmdControlFan, float(1))
	if !errors.Is(err, ErrNotOpen) || !errors.Is(err, tcc.ErrTransport) {
		t.Errorf("err = %v, want ErrNotOpen", err)
	}
}

func TestExecuteCommandSendFailure(t *testing.T) {
	m, bus := openTestManager(t)
	bus.FailID(1403)
	if err := m.ExecuteCommand(tcc.CmdControlFan, float(0)); !errors.Is(err, tcc.ErrTransport) {
		t.Errorf("err = %v, want ErrTransport", err)
	}
}

func TestSetTimeoutGroupPropagates(t *testing.T) {
	m, bus := openTestManager(t)

	if err := m.SetTimeout(tcc.TimeoutYawResponse, 50); err != nil {
		t.Fatalf("SetTimeout: %v", err)
	}

	sent := bus.Sent()
	if len(sent) != 5 {
		t.Fatalf("sent %d frames, want 5", len(sent))
	}
	for _, f := range sent {
		if f.ID != TimeoutCANID || f.Data[6] != 0x00 || f.Data[7] != 50 {
			t.Errorf("frame = %v", f)
		}
	}

	for _, leaf := range []tcc.Timeout{tcc.TimeoutYawPosition, tcc.TimeoutYawVelocity, tcc.TimeoutYawEngine, tcc.TimeoutYawMotionMode, tcc.TimeoutYawPower} {
		if v, _ := m.Timeout(leaf); v != 50 {
			t.Errorf("%s = %d, want 50", leaf, v)
		}
	}
	if v, _ := m.Timeout(tcc.TimeoutYawResponse); v != 20 {
		t.Errorf("group value = %d, want 20", v)
	}
}

func TestSetTimeoutPartialFailure(t *testing.T) {
	m, bus := openTestManager(t)
	bus.FailAfter(2)

	err := m.SetTimeout(tcc.TimeoutYawResponse, 30)
	if !errors.Is(err, tcc.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	if got := bus.Attempts(); got != 5 {
		t.Errorf("attempts = %d, want 5", got)
	}

	want := map[tcc.Timeout]int{
		tcc.TimeoutYawPosition:   30,
		tcc.TimeoutYawVelocity:   30,
		tcc.TimeoutYawEngine:     20,
		tcc.TimeoutYawMotionMode: 20,
		tcc.TimeoutYawPower:      20,
	}
	for leaf, v := range want {
		if got, _ := m.Timeout(leaf); got != v {
			t.Errorf("%s = %d, want %d", leaf, got, v)
		}
	}
}

func TestSetTimeoutLeaf(t *testing.T) {
	m, bus := openTestManager(t)

	if err := m.SetTimeout(tcc.TimeoutBaseGNSSLatitude, 1000); err != nil {
		t.Fatalf("SetTimeout: %v", err)
	}
	sent := bus.Sent()
	want := [8]byte{0x06, 0x0C, 0x05, 0x00, 0x05, 0xF0, 0x03, 0xE8} // 1520, 1000 ms on BASE
	if len(sent) != 1 || sent[0].Data != want {
		t.Errorf("sent = %v, want %X", sent, want)
	}
}

func TestSetTimeoutErrors(t *testing.T) {
	tests := []struct {
		name    string
		timeout tcc.Timeout
		value   int
		wantErr error
	}{
		{"negative", tcc.TimeoutFanState, -1, tcc.ErrRange},
		{"overflow", tcc.TimeoutFanState, 40000, tcc.ErrRange},
		{"unknown", tcc.Timeout(77), 10, tcc.ErrUnknownIdentifier},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, bus := openTestManager(t)
			if err := m.SetTimeout(tt.timeout, tt.value); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if n := len(bus.Sent()); n != 0 {
				t.Errorf("sent %d frames", n)
			}
		})
	}
}

func TestSetTimeoutRange(t *testing.T) {
	reg, err := tcc.NewRegistry(nil,
		map[tcc.Parameter]tcc.ParameterSpec{tcc.ParamFanState: {CANID: 1404, Kind: tcc.DecodeBool}},
		map[tcc.Timeout]tcc.TimeoutSpec{
			tcc.TimeoutFanState: {Kind: tcc.TimeoutMain, Parameter: tcc.ParamFanState, Range: &tcc.Range{Min: 10, Max: 100}},
		},
		nil,
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	opener := cantest.NewOpener(nil)
	m := New(Options{Registry: reg, Opener: opener.Open, Logger: zerolog.Nop(), ReceiveTimeout: 10 * time.Millisecond})
	if err := m.Open("vcan0"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	if err := m.SetTimeout(tcc.TimeoutFanState, 100); err != nil {
		t.Errorf("upper bound rejected: %v", err)
	}
	if err := m.SetTimeout(tcc.TimeoutFanState, 9); !errors.Is(err, tcc.ErrRange) {
		t.Errorf("err = %v, want ErrRange", err)
	}
}

func frameWith(id uint32, offset int, b []byte) models.CANFrame {
	var data [8]byte
	copy(data[offset:], b)
	return models.NewFrame(id, data)
}

func TestHandleFrame(t *testing.T) {
	mustInt32 := func(v int64) []byte {
		b, err := codec.EncodeInt(v, 4)
		if err != nil {
			t.Fatal(err)
		}
		return b
	}

	tests := []struct {
		name   string
		frame  models.CANFrame
		param  tcc.Parameter
		want   tcc.Value
		change bool
	}{
		{"bool", frameWith(1404, 4, []byte{0x01}), tcc.ParamFanState, tcc.BoolValue(true), true},
		{"float", frameWith(1303, 4, codec.EncodeFloat(-12.5)), tcc.ParamYawPosition, tcc.FloatValue(-12.5), true},
		{"int", frameWith(1308, 4, []byte{0x02}), tcc.ParamYawMotionMode, tcc.IntValue(2), true},
		{"big int", frameWith(1418, 4, mustInt32(123456)), tcc.ParamGlobalShotCounter, tcc.IntValue(123456), true},
		{"scaled", frameWith(1523, 4, mustInt32(-1500)), tcc.ParamBaseGNSSSeaLevel, tcc.FloatValue(-1.5), true},
		{"unassigned", frameWith(1305, 4, codec.EncodeFloat(3)), tcc.ParamYawEngine, tcc.FloatValue(0), false},
		{"same value", frameWith(1409, 4, []byte{0x00}), tcc.ParamCoverState, tcc.BoolValue(false), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager(t, nil)
			if got := m.HandleFrame(tt.frame); got != tt.change {
				t.Errorf("changed = %v, want %v", got, tt.change)
			}
			if v, _ := m.Parameter(tt.param); v != tt.want {
				t.Errorf("%s = %v, want %v", tt.param, v, tt.want)
			}
		})
	}
}

func TestHandleFrameIgnoresUnknownAndShort(t *testing.T) {
	m, _ := newTestManager(t, nil)
	before := m.Snapshot()

	if m.HandleFrame(frameWith(0x123, 0, []byte{1, 2, 3})) {
		t.Error("unknown id changed a parameter")
	}
	if m.HandleFrame(models.CANFrame{ID: 1303, DLC: 4}) {
		t.Error("short float frame changed a parameter")
	}

	after := m.Snapshot()
	for p, v := range before.Parameters {
		if after.Parameters[p] != v {
			t.Errorf("%s changed from %v to %v", p, v, after.Parameters[p])
		}
	}
}

func TestChangeNotificationOnlyOnChange(t *testing.T) {
	var (
		mu      sync.Mutex
		changes []Change
	)
	m := New(Options{
		Logger: zerolog.Nop(),
		OnParameterChange: func(c Change) {
			mu.Lock()
			changes = append(changes, c)
			mu.Unlock()
		},
	})

	on := frameWith(1404, 4, []byte{0x01})
	off := frameWith(1404, 4, []byte{0x00})
	for _, f := range []models.CANFrame{on, on, on, off, off, on} {
		m.HandleFrame(f)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 3 {
		t.Fatalf("notifications = %d, want 3", len(changes))
	}
	first := changes[0]
	if first.Parameter != tcc.ParamFanState || first.Previous != tcc.BoolValue(false) || first.Value != tcc.BoolValue(true) || first.CANID != 1404 {
		t.Errorf("first change = %+v", first)
	}
}

func TestReceiveLoopDeliversFrames(t *testing.T) {
	changed := make(chan Change, 1)
	opener := cantest.NewOpener(nil)
	m := New(Options{
		Opener:            opener.Open,
		Logger:            zerolog.Nop(),
		ReceiveTimeout:    10 * time.Millisecond,
		OnParameterChange: func(c Change) { changed <- c },
	})
	if err := m.Open("vcan0"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	opener.Last().Inject(frameWith(1405, 4, codec.EncodeFloat(36.5)))

	select {
	case c := <-changed:
		if c.Parameter != tcc.ParamCaseTemperature || c.Value != tcc.FloatValue(36.5) {
			t.Errorf("change = %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change delivered")
	}
}

func TestReopenAfterClose(t *testing.T) {
	m, opener := newTestManager(t, nil)
	for i := 0; i < 2; i++ {
		if err := m.Open("vcan0"); err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
		if err := m.Close(); err != nil {
			t.Fatalf("Close #%d: %v", i, err)
		}
	}
	if got := opener.Opens(); got != 2 {
		t.Errorf("opens = %d, want 2", got)
	}
	if err := m.SendData(0x100, [8]byte{}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("SendData on closed manager = %v", err)
	}
}

func TestSendData(t *testing.T) {
	m, bus := openTestManager(t)
	payload := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := m.SendData(0x321, payload); err != nil {
		t.Fatalf("SendData: %v", err)
	}
	if sent := bus.Sent(); len(sent) != 1 || sent[0].ID != 0x321 || sent[0].Data != payload {
		t.Errorf("sent = %v", sent)
	}

	if err := m.SendData(0x800, payload); !errors.Is(err, tcc.ErrTransport) {
		t.Errorf("extended id err = %v, want ErrTransport", err)
	}
}

func TestReceiveLoopSurvivesTransportErrors(t *testing.T) {
	m, bus := openTestManager(t)
	bus.FailReceive(errors.New("network is down"), 3)
	bus.Inject(frameWith(1404, 4, []byte{0x01}))

	deadline := time.Now().Add(2 * time.Second)
	for {
		if v, _ := m.Parameter(tcc.ParamFanState); v == tcc.BoolValue(true) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("FAN_STATE not updated after receive errors, receives = %d", bus.Receives())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := bus.Receives(); got < 4 {
		t.Errorf("receives = %d, want more than the 3 failed ones", got)
	}
}

func TestCloseWhenZeroingFails(t *testing.T) {
	m, bus := openTestManager(t)
	bus.FailAfter(0)

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if m.IsOpen() || m.Interface() != "" {
		t.Errorf("state after close = %s iface = %q", m.State(), m.Interface())
	}
	if !bus.Closed() {
		t.Error("bus not closed")
	}
	if got := bus.Attempts(); got != 1 {
		t.Errorf("zeroing attempts = %d, want 1 (stops at first failure)", got)
	}
	if err := m.ExecuteCommand(tcc.CmdControlFan, nil); !errors.Is(err, ErrNotOpen) {
		t.Errorf("ExecuteCommand after close = %v, want ErrNotOpen", err)
	}
}

func TestCloseAbandonsStuckReceiver(t *testing.T) {
	opener := cantest.NewOpener(nil)
	m := New(Options{
		Opener:         opener.Open,
		Logger:         zerolog.Nop(),
		ReceiveTimeout: 10 * time.Millisecond,
		JoinTimeout:    50 * time.Millisecond,
	})
	if err := m.Open("vcan0"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	bus := opener.Last()
	release := bus.HoldReceive()
	defer release()

	// wait until the receive goroutine is parked in a held receive
	held := bus.Receives() + 1
	deadline := time.Now().Add(2 * time.Second)
	for bus.Receives() < held {
		if time.Now().After(deadline) {
			t.Fatal("receive goroutine never blocked")
		}
		time.Sleep(5 * time.Millisecond)
	}

	start := time.Now()
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Close returned after %s, before the join timeout", elapsed)
	}
	if m.IsOpen() || !bus.Closed() {
		t.Errorf("state = %s, bus closed = %v", m.State(), bus.Closed())
	}
}

func TestSetTimeoutTwoByteLimit(t *testing.T) {
	m, bus := openTestManager(t)

	if err := m.SetTimeout(tcc.TimeoutYawPosition, 32767); err != nil {
		t.Fatalf("SetTimeout(32767): %v", err)
	}
	sent := bus.Sent()
	if len(sent) != 1 || sent[0].Data[6] != 0x7F || sent[0].Data[7] != 0xFF {
		t.Errorf("sent = %v, want value 7FFF", sent)
	}

	if err := m.SetTimeout(tcc.TimeoutYawPosition, 32768); !errors.Is(err, tcc.ErrRange) {
		t.Errorf("SetTimeout(32768) = %v, want ErrRange", err)
	}
	if v, _ := m.Timeout(tcc.TimeoutYawPosition); v != 32767 {
		t.Errorf("YAW_POSITION = %d, want 32767", v)
	}
}

func TestRepeatedNaNNotifiesOnce(t *testing.T) {
	var changes int
	m := New(Options{
		Logger:            zerolog.Nop(),
		OnParameterChange: func(Change) { changes++ },
	})

	nan := frameWith(1405, 4, codec.EncodeFloat(float32(math.NaN())))
	if !m.HandleFrame(nan) {
		t.Fatal("first NaN frame did not change CASE_TEMPERATURE")
	}
	if m.HandleFrame(nan) {
		t.Error("repeated NaN frame reported a change")
	}
	if changes != 1 {
		t.Errorf("notifications = %d, want 1", changes)
	}
}

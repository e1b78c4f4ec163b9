package can

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tcc-gateway/internal/models"
)

func TestEncodeSLCAN(t *testing.T) {
	tests := []struct {
		name  string
		frame models.CANFrame
		want  string
	}{
		{"full", models.NewFrame(0x7D0, [8]byte{0x01, 0x0C, 0x05, 0x00, 0x05, 0x17, 0x00, 0x14}), "t7D08010C050005170014\r"},
		{"empty", models.CANFrame{ID: 0x123}, "t1230\r"},
		{"short", models.CANFrame{ID: 0x001, DLC: 2, Data: [8]byte{0xAB, 0xCD}}, "t0012ABCD\r"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeSLCAN(tt.frame)
			if err != nil {
				t.Fatalf("EncodeSLCAN: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeSLCANRejectsExtendedID(t *testing.T) {
	if _, err := EncodeSLCAN(models.CANFrame{ID: 0x800}); !errors.Is(err, ErrFrame) {
		t.Errorf("err = %v, want ErrFrame", err)
	}
}

func TestParseSLCAN(t *testing.T) {
	frame, err := ParseSLCAN([]byte("t57C80100000000000000"))
	if err != nil {
		t.Fatalf("ParseSLCAN: %v", err)
	}
	if frame.ID != 1404 || frame.DLC != 8 || frame.Data[0] != 0x01 {
		t.Errorf("frame = %v", frame)
	}

	for _, bad := range []string{"", "t12", "tXYZ0", "t1239", "t1232AB", "T123456781AA", "t8000"} {
		if _, err := ParseSLCAN([]byte(bad)); !errors.Is(err, ErrFrame) {
			t.Errorf("ParseSLCAN(%q) err = %v, want ErrFrame", bad, err)
		}
	}
}

// pipePort feeds scripted input to the adapter and records what it writes
type pipePort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
}

func newPipePort() *pipePort {
	r, w := io.Pipe()
	return &pipePort{r: r, w: w}
}

func (p *pipePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *pipePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *pipePort) Close() error {
	p.w.Close()
	return p.r.Close()
}

func (p *pipePort) output() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func TestSLCANReceive(t *testing.T) {
	port := newPipePort()
	bus := newSLCAN(port, zerolog.Nop())
	defer bus.Close()

	go port.w.Write([]byte("\r\az\rgarbage\rt57C80100000000000000\rt5"))

	frame, err := bus.Receive(time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if frame.ID != 1404 || frame.Data[0] != 1 {
		t.Errorf("frame = %v", frame)
	}

	if _, err := bus.Receive(20 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestSLCANFeedDropsOverlongLines(t *testing.T) {
	s := &SLCAN{logger: zerolog.Nop(), frames: make(chan models.CANFrame, 4)}

	line := s.feed(nil, bytes.Repeat([]byte{'x'}, 4096))
	if len(line) > maxSLCANLine {
		t.Fatalf("pending line grew to %d bytes", len(line))
	}

	// a frame glued to the garbage is part of the dropped line
	line = s.feed(line, []byte("t57C80100000000000000\r"))
	if len(s.frames) != 0 {
		t.Fatalf("frame parsed out of an overlong line")
	}

	line = s.feed(line, []byte("t57C80100000000000000\r"))
	if len(line) != 0 || len(s.frames) != 1 {
		t.Fatalf("pending = %q, frames = %d, want one frame", line, len(s.frames))
	}
	if f := <-s.frames; f.ID != 1404 || f.Data[0] != 1 {
		t.Errorf("frame = %v", f)
	}
}

func TestSLCANSendAndClose(t *testing.T) {
	port := newPipePort()
	bus := newSLCAN(port, zerolog.Nop())

	if err := bus.Send(models.CANFrame{ID: 0x514, DLC: 1, Data: [8]byte{0x01}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	if got, want := port.output(), "t514101\rC\r"; got != want {
		t.Errorf("written %q, want %q", got, want)
	}
	if _, err := bus.Receive(time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive after close = %v, want ErrClosed", err)
	}
	if err := bus.Send(models.CANFrame{ID: 1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after close = %v, want ErrClosed", err)
	}
}

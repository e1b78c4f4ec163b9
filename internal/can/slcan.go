package can

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"

	"tcc-gateway/internal/models"
)

// slcanBitrates maps a bus bitrate in bit/s to its SLCAN setup command
var slcanBitrates = map[int]string{
	10000:   "S0",
	20000:   "S1",
	50000:   "S2",
	100000:  "S3",
	125000:  "S4",
	250000:  "S5",
	500000:  "S6",
	800000:  "S7",
	1000000: "S8",
}

// SLCANOptions configures a serial line CAN adapter
type SLCANOptions struct {
	Baud    int
	Bitrate int
	Logger  zerolog.Logger
}

// SLCAN drives a serial line CAN adapter speaking the Lawicel ASCII protocol
type SLCAN struct {
	port   io.ReadWriteCloser
	logger zerolog.Logger

	discarding bool // owned by readLoop

	writeMu sync.Mutex
	frames  chan models.CANFrame
	done    chan struct{}
	once    sync.Once
}

// OpenSLCAN opens the serial port, configures the bitrate and opens the channel
func OpenSLCAN(portName string, opts SLCANOptions) (*SLCAN, error) {
	setup, ok := slcanBitrates[opts.Bitrate]
	if !ok {
		return nil, fmt.Errorf("unsupported SLCAN bitrate %d", opts.Bitrate)
	}
	if opts.Baud == 0 {
		opts.Baud = 115200
	}

	mode := &serial.Mode{
		BaudRate: opts.Baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %q: %w", portName, err)
	}
	if err := p.SetReadTimeout(50 * time.Millisecond); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to set read timeout on %q: %w", portName, err)
	}
	p.ResetInputBuffer()
	p.ResetOutputBuffer()

	s := newSLCAN(p, opts.Logger.With().Str("port", portName).Logger())
	// close any channel left open by a previous session before configuring
	for _, cmd := range []string{"C", setup, "O"} {
		if err := s.command(cmd); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// SLCANOpener returns an Opener treating the channel name as a serial port
func SLCANOpener(opts SLCANOptions) Opener {
	return func(channel string) (Bus, error) {
		s, err := OpenSLCAN(channel, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func newSLCAN(port io.ReadWriteCloser, logger zerolog.Logger) *SLCAN {
	s := &SLCAN{
		port:   port,
		logger: logger,
		frames: make(chan models.CANFrame, 256),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *SLCAN) command(cmd string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.port.Write([]byte(cmd + "\r")); err != nil {
		return fmt.Errorf("slcan command %q: %w", cmd, err)
	}
	return nil
}

func (s *SLCAN) Send(frame models.CANFrame) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	line, err := EncodeSLCAN(frame)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.port.Write(line); err != nil {
		return fmt.Errorf("failed to write to serial port: %w", err)
	}
	return nil
}

func (s *SLCAN) Receive(timeout time.Duration) (models.CANFrame, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case f := <-s.frames:
		return f, nil
	case <-s.done:
		return models.CANFrame{}, ErrClosed
	case <-expired:
		return models.CANFrame{}, ErrTimeout
	}
}

// Close closes the CAN channel and the serial port
func (s *SLCAN) Close() error {
	var err error
	s.once.Do(func() {
		s.command("C")
		close(s.done)
		err = s.port.Close()
	})
	return err
}

func (s *SLCAN) readLoop() {
	var line []byte
	buf := make([]byte, 64)
	for {
		n, err := s.port.Read(buf)
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Error().Err(err).Msg("serial read failed")
			}
			return
		}
		select {
		case <-s.done:
			return
		default:
		}
		line = s.feed(line, buf[:n])
	}
}

// maxSLCANLine is the longest line a frame reply can have: an extended
// frame with 8 data bytes and a timestamp
const maxSLCANLine = 30

// feed consumes raw serial bytes and returns the unfinished line. A line
// longer than any frame is dropped up to the next CR.
func (s *SLCAN) feed(line, data []byte) []byte {
	for _, b := range data {
		if s.discarding {
			if b == '\r' || b == '\a' {
				s.discarding = false
			}
			continue
		}
		switch b {
		case '\a':
			s.logger.Warn().Msg("adapter rejected command")
			line = line[:0]
		case '\r':
			if len(line) == 0 {
				continue // plain acknowledgement
			}
			if line[0] == 't' {
				frame, err := ParseSLCAN(line)
				if err != nil {
					s.logger.Debug().Err(err).Str("line", string(line)).Msg("dropping malformed frame")
				} else {
					select {
					case s.frames <- frame:
					default:
						s.logger.Warn().Msg("receive queue full, dropping frame")
					}
				}
			}
			line = line[:0]
		default:
			if len(line) >= maxSLCANLine {
				s.logger.Debug().Int("bytes", len(line)).Msg("dropping overlong line")
				line = line[:0]
				s.discarding = true
				continue
			}
			line = append(line, b)
		}
	}
	return line
}

// EncodeSLCAN renders a standard frame as "tIIILDD..\r"
func EncodeSLCAN(frame models.CANFrame) ([]byte, error) {
	if err := validateFrame(frame); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 5+2*int(frame.DLC)+1)
	out = append(out, 't')
	out = append(out, fmt.Sprintf("%03X%d", frame.ID, frame.DLC)...)
	out = append(out, []byte(fmt.Sprintf("%X", frame.Payload()))...)
	return append(out, '\r'), nil
}

// ParseSLCAN decodes a standard frame line without its trailing CR
func ParseSLCAN(line []byte) (models.CANFrame, error) {
	if len(line) < 5 || line[0] != 't' {
		return models.CANFrame{}, fmt.Errorf("%w: %q is not a standard SLCAN frame", ErrFrame, line)
	}
	id, err := strconv.ParseUint(string(line[1:4]), 16, 16)
	if err != nil || id > MaxStandardID {
		return models.CANFrame{}, fmt.Errorf("%w: bad id in %q", ErrFrame, line)
	}
	dlc := int(line[4] - '0')
	if dlc < 0 || dlc > 8 {
		return models.CANFrame{}, fmt.Errorf("%w: bad dlc in %q", ErrFrame, line)
	}
	data := line[5:]
	if len(data) < 2*dlc {
		return models.CANFrame{}, fmt.Errorf("%w: short payload in %q", ErrFrame, line)
	}

	frame := models.CANFrame{ID: uint32(id), DLC: uint8(dlc)}
	if _, err := hex.Decode(frame.Data[:dlc], data[:2*dlc]); err != nil {
		return models.CANFrame{}, fmt.Errorf("%w: bad payload in %q", ErrFrame, line)
	}
	return frame, nil
}

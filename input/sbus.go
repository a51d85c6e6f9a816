// Package input reads receiver input and turns it into input-capture
// signals for the mixer.
package input

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.bug.st/serial"

	"github.com/Swind/go-txcore/core"
	"github.com/Swind/go-txcore/tasks"
)

// SBUS framing: 100000 baud 8E2, 25-byte frames.
const (
	SBUSBaudRate = 100000
	SBUSFrameLen = 25
	SBUSHeader   = 0x0F
	SBUSFooter   = 0x00
	SBUSChannels = 16
)

// Flag bits of frame byte 23.
const (
	sbusFlagCh17      = 1 << 0
	sbusFlagCh18      = 1 << 1
	sbusFlagFrameLost = 1 << 2
	sbusFlagFailsafe  = 1 << 3
)

// ErrBadFrame is returned for a frame with wrong length or framing bytes.
var ErrBadFrame = errors.New("bad sbus frame")

// Frame is one decoded SBUS frame. Channel values are 11-bit.
type Frame struct {
	Channels  [SBUSChannels]uint16
	Ch17      bool
	Ch18      bool
	FrameLost bool
	Failsafe  bool
}

// DecodeFrame decodes a complete 25-byte frame.
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	if len(b) != SBUSFrameLen {
		return f, fmt.Errorf("%w: length %d", ErrBadFrame, len(b))
	}
	if b[0] != SBUSHeader || b[SBUSFrameLen-1] != SBUSFooter {
		return f, fmt.Errorf("%w: framing % x..% x", ErrBadFrame, b[0], b[SBUSFrameLen-1])
	}

	var bits uint32
	var nbits uint
	ch := 0
	for i := 1; i <= 22 && ch < SBUSChannels; i++ {
		bits |= uint32(b[i]) << nbits
		nbits += 8
		for nbits >= 11 && ch < SBUSChannels {
			f.Channels[ch] = uint16(bits & 0x7FF)
			bits >>= 11
			nbits -= 11
			ch++
		}
	}

	flags := b[23]
	f.Ch17 = flags&sbusFlagCh17 != 0
	f.Ch18 = flags&sbusFlagCh18 != 0
	f.FrameLost = flags&sbusFlagFrameLost != 0
	f.Failsafe = flags&sbusFlagFailsafe != 0
	return f, nil
}

// EncodeFrame is the inverse of DecodeFrame. Channel values are masked to 11 bits.
func EncodeFrame(f Frame) []byte {
	b := make([]byte, SBUSFrameLen)
	b[0] = SBUSHeader

	var bits uint32
	var nbits uint
	pos := 1
	for _, v := range f.Channels {
		bits |= uint32(v&0x7FF) << nbits
		nbits += 11
		for nbits >= 8 {
			b[pos] = byte(bits)
			pos++
			bits >>= 8
			nbits -= 8
		}
	}

	var flags byte
	if f.Ch17 {
		flags |= sbusFlagCh17
	}
	if f.Ch18 {
		flags |= sbusFlagCh18
	}
	if f.FrameLost {
		flags |= sbusFlagFrameLost
	}
	if f.Failsafe {
		flags |= sbusFlagFailsafe
	}
	b[23] = flags
	b[24] = SBUSFooter
	return b
}

// SBUSReader decodes a byte stream of SBUS frames. Every good frame is
// stored as the latest input and signals the capture semaphore.
type SBUSReader struct {
	port    io.ReadCloser
	capture atomic.Pointer[core.BinarySemaphore]
	logger  core.Logger

	// Apply receives each new frame from Process, on the mixer task.
	Apply func(Frame)

	buf []byte

	mu     sync.Mutex
	latest Frame
	fresh  bool
	have   bool

	frames    atomic.Uint64
	bad       atomic.Uint64
	processed atomic.Uint64

	closeOnce sync.Once
}

// OpenSBUS opens a serial port in SBUS mode.
func OpenSBUS(name string, capture *core.BinarySemaphore, logger core.Logger) (*SBUSReader, error) {
	mode := &serial.Mode{
		BaudRate: SBUSBaudRate,
		DataBits: 8,
		Parity:   serial.EvenParity,
		StopBits: serial.TwoStopBits,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open sbus port %s: %w", name, err)
	}
	r := NewSBUSReader(p, capture, logger)
	r.logger.Info("sbus port opened", core.F("device", name), core.F("baud", SBUSBaudRate))
	return r, nil
}

// NewSBUSReader reads frames from port. capture may be nil.
func NewSBUSReader(port io.ReadCloser, capture *core.BinarySemaphore, logger core.Logger) *SBUSReader {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	r := &SBUSReader{
		port:   port,
		logger: core.WithTag(logger, "sbus"),
		buf:    make([]byte, 0, 2*SBUSFrameLen),
	}
	r.capture.Store(capture)
	return r
}

// SetCapture changes the semaphore signaled for every good frame. The port
// may be opened before bring-up and attached once the semaphore exists.
func (r *SBUSReader) SetCapture(capture *core.BinarySemaphore) {
	r.capture.Store(capture)
}

// Run reads until ctx is done or the port fails. The port is closed on return.
func (r *SBUSReader) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = r.Close() })
	defer stop()
	defer r.Close()

	chunk := make([]byte, 64)
	for {
		n, err := r.port.Read(chunk)
		if n > 0 {
			r.Feed(chunk[:n])
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			r.logger.Error("sbus read failed", core.F("error", err))
			return fmt.Errorf("sbus read: %w", err)
		}
	}
}

// Feed parses raw bytes and returns the number of good frames found.
func (r *SBUSReader) Feed(data []byte) int {
	found := 0
	for _, c := range data {
		if len(r.buf) == 0 && c != SBUSHeader {
			continue
		}
		r.buf = append(r.buf, c)
		if len(r.buf) < SBUSFrameLen {
			continue
		}

		f, err := DecodeFrame(r.buf)
		if err != nil {
			r.bad.Add(1)
			r.resync()
			continue
		}
		r.buf = r.buf[:0]
		r.publish(f)
		found++
	}
	return found
}

// resync drops the leading header and restarts at the next candidate header.
func (r *SBUSReader) resync() {
	next := bytes.IndexByte(r.buf[1:], SBUSHeader)
	if next < 0 {
		r.buf = r.buf[:0]
		return
	}
	n := copy(r.buf, r.buf[next+1:])
	r.buf = r.buf[:n]
}

func (r *SBUSReader) publish(f Frame) {
	r.mu.Lock()
	r.latest = f
	r.fresh = true
	r.have = true
	r.mu.Unlock()

	r.frames.Add(1)
	if sem := r.capture.Load(); sem != nil {
		sem.Give()
	}
}

// Process hands the newest unprocessed frame to Apply. It is the mixer
// pre-wait hook and never blocks.
func (r *SBUSReader) Process(ctx context.Context) {
	r.mu.Lock()
	if !r.fresh {
		r.mu.Unlock()
		return
	}
	f := r.latest
	r.fresh = false
	r.mu.Unlock()

	r.processed.Add(1)
	if r.Apply != nil {
		r.Apply(f)
	}
}

// Hook returns Process as an enabled mixer hook.
func (r *SBUSReader) Hook() tasks.Hook {
	return tasks.Hook{Name: "sbus", Enabled: true, Run: r.Process}
}

// Latest returns the most recent frame.
func (r *SBUSReader) Latest() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest, r.have
}

// Frames returns the number of good frames.
func (r *SBUSReader) Frames() uint64 { return r.frames.Load() }

// BadFrames returns the number of rejected frames.
func (r *SBUSReader) BadFrames() uint64 { return r.bad.Load() }

// Processed returns the number of frames handed to Apply.
func (r *SBUSReader) Processed() uint64 { return r.processed.Load() }

// Close closes the port. Safe to call more than once.
func (r *SBUSReader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.port.Close()
	})
	return err
}

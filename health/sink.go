package health

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/Swind/go-txcore/core"
)

// Sink receives health reports.
type Sink interface {
	Emit(ctx context.Context, snap Snapshot) error
}

// LogSink writes reports through a Logger, one line per item.
type LogSink struct {
	Logger core.Logger
}

// NewLogSink returns a sink tagged for the health monitor.
func NewLogSink(logger core.Logger) *LogSink {
	return &LogSink{Logger: core.WithTag(logger, "health")}
}

// Emit logs the snapshot. It never fails.
func (s *LogSink) Emit(ctx context.Context, snap Snapshot) error {
	s.Logger.Debug(fmt.Sprintf("s_pulses_paused: %t", snap.PulsesPaused))
	for _, t := range snap.Tasks {
		s.Logger.Debug(fmt.Sprintf("Min stack: %s: %d", t.Name, t.StackHighWater))
	}
	s.Logger.Info(fmt.Sprintf("maxMixerDuration: %d us.", snap.MaxMixerDurationUs))
	for _, c := range snap.CPU {
		s.Logger.Info(c.String())
	}
	return nil
}

// =============================================================================
// CBOR report log
// =============================================================================

var (
	reportEncMode cbor.EncMode
	reportDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	reportEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create report CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	reportDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create report CBOR decoder mode: %v", err))
	}
}

// CBORSink appends reports as a stream of CBOR records.
// It is safe for concurrent use.
type CBORSink struct {
	mu      sync.Mutex
	closer  io.Closer
	encoder *cbor.Encoder
	closed  bool
}

// NewCBORSink writes records to w.
func NewCBORSink(w io.Writer) *CBORSink {
	s := &CBORSink{encoder: reportEncMode.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenCBORFile appends to path, creating it with 0644 if needed.
func OpenCBORFile(path string) (*CBORSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open report log: %w", err)
	}
	return NewCBORSink(f), nil
}

// Emit encodes one record.
func (s *CBORSink) Emit(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if err := s.encoder.Encode(snap); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// Close closes the underlying writer if it is closable. Safe to call twice.
func (s *CBORSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// DecodeReports reads every record from r.
func DecodeReports(r io.Reader) ([]Snapshot, error) {
	dec := reportDecMode.NewDecoder(r)
	var out []Snapshot
	for {
		var snap Snapshot
		if err := dec.Decode(&snap); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, fmt.Errorf("decode report %d: %w", len(out), err)
		}
		out = append(out, snap)
	}
}

// Compile-time interface satisfaction checks.
var (
	_ Sink = (*LogSink)(nil)
	_ Sink = (*CBORSink)(nil)
)

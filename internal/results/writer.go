package results

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sejmwatch/sejmaudit/internal/clock"
	"github.com/sejmwatch/sejmaudit/internal/clock/system"
)

// utf8BOM makes spreadsheet tools pick UTF-8 for Polish diacritics. Only the
// first segment carries it, so concatenated segments stay a valid file.
const utf8BOM = "\xEF\xBB\xBF"

// Mirror receives a copy of every finished segment, e.g. an object-storage
// bucket. Mirror failures never block the local checkpoint.
type Mirror interface {
	Upload(ctx context.Context, name string, data []byte) error
}

// Sink receives the flushed rows themselves, e.g. a relational store.
type Sink interface {
	Save(ctx context.Context, rows []TreeRow) error
}

// Options configures a Writer. At least one of FlushInterval and FlushEvery
// must be set or the buffer would only drain at shutdown.
type Options struct {
	Dir           string
	BaseName      string
	FlushInterval time.Duration // zero disables the timer trigger
	FlushEvery    int           // processes per flush; zero disables the count trigger
	Clock         clock.Clock
	Logger        *zap.Logger
	Mirrors       []Mirror
	Sinks         []Sink
}

// Writer buffers rows from concurrent workers and flushes them as numbered
// CSV segments. All methods are safe for concurrent use.
type Writer struct {
	mu        sync.Mutex
	opts      Options
	rows      []TreeRow
	processes int
	segments  int
	lastFlush time.Time
}

// NewWriter creates the output directory and arms the flush triggers.
func NewWriter(opts Options) (*Writer, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("output dir is required")
	}
	if opts.FlushInterval <= 0 && opts.FlushEvery <= 0 {
		return nil, fmt.Errorf("at least one flush trigger is required")
	}
	if opts.BaseName == "" {
		opts.BaseName = "audyt_sejm"
	}
	if opts.Clock == nil {
		opts.Clock = system.Clock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Writer{opts: opts, lastFlush: opts.Clock.Now()}, nil
}

// Append buffers the rows of one completed unit of work.
func (w *Writer) Append(rows ...TreeRow) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = append(w.rows, rows...)
}

// ProcessDone records one finished process and flushes when a trigger fires.
func (w *Writer) ProcessDone(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.processes++
	if !w.due() {
		return nil
	}
	return w.flushLocked(ctx, false)
}

// FlushFinal drains the buffer into the closing segment. An empty run still
// produces a header-only report.
func (w *Writer) FlushFinal(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.rows) == 0 && w.segments > 0 {
		return nil
	}
	return w.flushLocked(ctx, true)
}

// Segments reports how many segments have been written so far.
func (w *Writer) Segments() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.segments
}

func (w *Writer) due() bool {
	if w.opts.FlushEvery > 0 && w.processes >= w.opts.FlushEvery {
		return true
	}
	if w.opts.FlushInterval > 0 && w.opts.Clock.Now().Sub(w.lastFlush) >= w.opts.FlushInterval {
		return true
	}
	return false
}

func (w *Writer) flushLocked(ctx context.Context, final bool) error {
	rows := w.rows

	name := fmt.Sprintf("%s_%04d.csv", w.opts.BaseName, w.segments+1)
	if final {
		name = w.opts.BaseName + "_final.csv"
	}

	var buf bytes.Buffer
	if w.segments == 0 {
		buf.WriteString(utf8BOM)
	}
	enc := csv.NewWriter(&buf)
	enc.Comma = ';'
	if w.segments == 0 {
		if err := enc.Write(Header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, row := range rows {
		if err := enc.Write(row.Record()); err != nil {
			return fmt.Errorf("encode row %s: %w", row.TreeID, err)
		}
	}
	enc.Flush()
	if err := enc.Error(); err != nil {
		return fmt.Errorf("encode segment: %w", err)
	}

	path := filepath.Join(w.opts.Dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write segment %s: %w", name, err)
	}

	// The local checkpoint is the source of truth; downstream copies are
	// best effort.
	for _, mirror := range w.opts.Mirrors {
		if err := mirror.Upload(ctx, name, buf.Bytes()); err != nil {
			w.opts.Logger.Warn("segment mirror failed", zap.String("segment", name), zap.Error(err))
		}
	}
	for _, sink := range w.opts.Sinks {
		if err := sink.Save(ctx, rows); err != nil {
			w.opts.Logger.Warn("row sink failed", zap.String("segment", name), zap.Error(err))
		}
	}

	w.opts.Logger.Info("segment written",
		zap.String("segment", name),
		zap.Int("rows", len(rows)),
		zap.Bool("final", final),
	)

	w.rows = nil
	w.processes = 0
	w.segments++
	w.lastFlush = w.opts.Clock.Now()
	return nil
}

// Package crawl drives the audit: it walks the process → print → attachment
// hierarchy of each configured term, fans the processes out over a worker
// pool, and turns every document into report rows.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sejmwatch/sejmaudit/internal/api"
	"github.com/sejmwatch/sejmaudit/internal/clock"
	"github.com/sejmwatch/sejmaudit/internal/clock/system"
	"github.com/sejmwatch/sejmaudit/internal/extract"
	"github.com/sejmwatch/sejmaudit/internal/notify"
	"github.com/sejmwatch/sejmaudit/internal/progress"
	"github.com/sejmwatch/sejmaudit/internal/results"
	"github.com/sejmwatch/sejmaudit/internal/scan"
	"github.com/sejmwatch/sejmaudit/internal/sejm"
	"github.com/sejmwatch/sejmaudit/internal/treeid"
)

// API is the subset of the Sejm client the crawl depends on.
type API interface {
	Processes(ctx context.Context, term int) ([]sejm.Process, error)
	Print(ctx context.Context, term, number int) (sejm.Print, error)
	Attachment(ctx context.Context, term, printNumber int, filename string) ([]byte, error)
	AttachmentURL(term, printNumber int, filename string) string
	ProcessURL(term int, num string) string
}

// Extractor decodes attachment bytes into the dual text channels.
type Extractor interface {
	Extract(ctx context.Context, data []byte, ext string) extract.Content
}

// RowSink receives finished rows; the results.Writer satisfies it.
type RowSink interface {
	Append(rows ...results.TreeRow)
	ProcessDone(ctx context.Context) error
	Segments() int
}

// Options wires a Runner.
type Options struct {
	API       API
	Extractor Extractor
	Scorer    *scan.Scorer
	Writer    RowSink
	Notifier  notify.Provider
	Progress  progress.Emitter
	Logger    *zap.Logger
	Clock     clock.Clock

	Terms   []int
	Workers int
	// LockedRisk is assigned to encrypted documents that resisted opening.
	LockedRisk int
	// NotifyMinRisk is the score at which a finding is pushed out mid-run.
	NotifyMinRisk int
}

// Runner executes one audit run.
type Runner struct {
	opts  Options
	runID uuid.UUID

	startedAt          time.Time
	processesDone      atomic.Int64
	processesFailed    atomic.Int64
	attachmentsScanned atomic.Int64
	highRisk           atomic.Int64
}

type task struct {
	term    int
	ordinal int
	process sejm.Process
}

// NewRunner validates the wiring and assigns the run its identity.
func NewRunner(opts Options) (*Runner, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("api client is required")
	}
	if opts.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if opts.Scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	if opts.Writer == nil {
		return nil, fmt.Errorf("row sink is required")
	}
	if len(opts.Terms) == 0 {
		return nil, fmt.Errorf("at least one term is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.LockedRisk <= 0 {
		opts.LockedRisk = 8
	}
	if opts.NotifyMinRisk <= 0 {
		opts.NotifyMinRisk = 6
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NoOp{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = system.Clock{}
	}
	return &Runner{opts: opts, runID: uuid.New()}, nil
}

// RunID identifies this audit run.
func (r *Runner) RunID() uuid.UUID {
	return r.runID
}

// Snapshot reports live progress for the status endpoint.
func (r *Runner) Snapshot() api.Status {
	return api.Status{
		RunID:              r.runID.String(),
		StartedAt:          r.startedAt,
		Terms:              append([]int(nil), r.opts.Terms...),
		ProcessesDone:      r.processesDone.Load(),
		ProcessesFailed:    r.processesFailed.Load(),
		AttachmentsScanned: r.attachmentsScanned.Load(),
		HighRisk:           r.highRisk.Load(),
		SegmentsWritten:    r.opts.Writer.Segments(),
	}
}

// Run audits every configured term and blocks until all processes are done
// or ctx is canceled. A term whose process list cannot be fetched is skipped
// and reported in the returned error; the other terms still run.
func (r *Runner) Run(ctx context.Context) error {
	r.startedAt = r.opts.Clock.Now()
	r.emit(progress.Event{Stage: progress.StageRunStart})

	var termErrs []error
	var tasks []task
	ordinal := 0
	for _, term := range r.opts.Terms {
		processes, err := r.opts.API.Processes(ctx, term)
		if err != nil {
			r.opts.Logger.Error("list processes failed", zap.Int("term", term), zap.Error(err))
			termErrs = append(termErrs, fmt.Errorf("term %d: %w", term, err))
			continue
		}
		r.opts.Logger.Info("term listed", zap.Int("term", term), zap.Int("processes", len(processes)))
		for _, p := range processes {
			ordinal++
			tasks = append(tasks, task{term: term, ordinal: ordinal, process: p})
		}
	}

	taskCh := make(chan task)
	var wg sync.WaitGroup
	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskCh {
				r.work(ctx, t)
			}
		}()
	}

feed:
	for _, t := range tasks {
		select {
		case taskCh <- t:
		case <-ctx.Done():
			break feed
		}
	}
	close(taskCh)
	wg.Wait()

	r.emit(progress.Event{Stage: progress.StageRunDone, Dur: r.opts.Clock.Now().Sub(r.startedAt)})
	if err := ctx.Err(); err != nil {
		termErrs = append(termErrs, err)
	}
	return errors.Join(termErrs...)
}

// work audits one process end to end and hands its rows to the sink.
func (r *Runner) work(ctx context.Context, t task) {
	start := r.opts.Clock.Now()
	id := treeid.Roman(t.ordinal)
	r.emit(progress.Event{Stage: progress.StageProcessStart, Term: t.term, TreeID: id})

	rows, failed := r.auditProcess(ctx, t, id)
	r.opts.Writer.Append(rows...)
	if err := r.opts.Writer.ProcessDone(ctx); err != nil {
		r.opts.Logger.Error("checkpoint flush failed", zap.String("tree_id", id), zap.Error(err))
	}

	dur := r.opts.Clock.Now().Sub(start)
	if failed != nil {
		r.processesFailed.Add(1)
		r.emit(progress.Event{
			Stage: progress.StageProcessError, Term: t.term, TreeID: id,
			Dur: dur, Note: failed.Error(),
		})
		return
	}
	r.processesDone.Add(1)
	r.emit(progress.Event{Stage: progress.StageProcessDone, Term: t.term, TreeID: id, Dur: dur})
}

func (r *Runner) emit(evt progress.Event) {
	if r.opts.Progress == nil {
		return
	}
	evt.RunID = progress.UUIDToBytes(r.runID)
	evt.TS = r.opts.Clock.Now().UTC()
	r.opts.Progress.Emit(evt)
}

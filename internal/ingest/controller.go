// Package ingest drives a load: it reads archive lines, decodes them on a
// worker pool and commits the extracted rows in batches.
package ingest

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"tweetnorm/internal/archive"
	"tweetnorm/internal/logging"
	"tweetnorm/internal/merge"
	"tweetnorm/internal/metrics"
	"tweetnorm/internal/model"
	"tweetnorm/internal/store"
)

// Writer commits a batch of candidate rows atomically.
type Writer interface {
	WriteBatch(ctx context.Context, batch []model.Rows) (*store.WriteResult, error)
}

var _ Writer = (*store.Store)(nil)

// Options tunes a Controller.
type Options struct {
	BatchSize     int
	Workers       int
	BatchTimeout  time.Duration
	ProgressEvery time.Duration
	ReverseInputs bool
	// RateLimit caps batch transactions per second; 0 is unlimited.
	RateLimit float64
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		BatchSize:     500,
		Workers:       runtime.NumCPU(),
		BatchTimeout:  2 * time.Minute,
		ProgressEvery: 10 * time.Second,
		ReverseInputs: true,
	}
}

// Controller runs loads against a Writer.
type Controller struct {
	w        Writer
	opts     Options
	limiter  *rate.Limiter
	progress *rate.Sometimes
}

func NewController(w Writer, opts Options) *Controller {
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = def.BatchTimeout
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = def.ProgressEvery
	}
	c := &Controller{
		w:        w,
		opts:     opts,
		progress: &rate.Sometimes{First: 1, Interval: opts.ProgressEvery},
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return c
}

type job struct {
	seq  int64
	src  Source
	line []byte
	err  error
}

type decoded struct {
	seq  int64
	src  Source
	rows model.Rows
	err  error
}

// Run loads every input and returns the run report. The report is returned
// even when err is non-nil. err is non-nil only when the load stopped early:
// a connection failure that outlived its retries, or ctx cancellation. Bad
// records and rejected rows are reported, not returned.
func (c *Controller) Run(ctx context.Context, inputs []string) (*Report, error) {
	inputs = archive.SortInputs(inputs, c.opts.ReverseInputs)
	rep := newReport(uuid.NewString(), inputs)
	defer func() { rep.FinishedAt = time.Now().UTC() }()
	logging.Info("load_start", map[string]any{
		"run_id": rep.RunID, "inputs": len(inputs), "batch_size": c.opts.BatchSize, "workers": c.opts.Workers,
	})

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job, c.opts.BatchSize)
	results := make(chan decoded, c.opts.BatchSize)

	g.Go(func() error {
		defer close(jobs)
		return c.read(gctx, inputs, jobs, rep)
	})

	var workers sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for j := range jobs {
				rows, err := model.Rows{}, j.err
				if err == nil {
					rows, err = Decode(j.line)
				}
				select {
				case results <- decoded{seq: j.seq, src: j.src, rows: rows, err: err}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	g.Go(func() error { return c.collect(gctx, results, rep) })

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	switch {
	case err == nil:
	case ctx.Err() != nil:
		rep.Cancelled = true
		err = errors.Wrap(ctx.Err(), "load cancelled")
	default:
		rep.FatalError = err.Error()
	}
	fields := map[string]any{
		"run_id": rep.RunID, "read": rep.RecordsRead, "committed": rep.RecordsCommitted,
		"skipped": rep.RecordsSkipped, "rejected": rep.RecordsRejected, "merge_warnings": rep.MergeWarnings,
	}
	if err != nil {
		fields["error"] = err.Error()
		logging.Error("load_stopped", fields)
		return rep, err
	}
	logging.Info("load_done", fields)
	return rep, nil
}

// read feeds every non-blank line to jobs in input order. An unreadable
// input is reported and the next one is read.
func (c *Controller) read(ctx context.Context, inputs []string, jobs chan<- job, rep *Report) error {
	var seq int64
	for _, path := range inputs {
		logging.Info("input_start", map[string]any{"file": path})
		err := archive.Walk(ctx, path, c.opts.ReverseInputs, func(l archive.Line) error {
			src := Source{File: l.File, Member: l.Member, Line: l.Number}
			j := job{seq: seq, src: src, line: append([]byte(nil), l.Data...), err: l.Err}
			select {
			case jobs <- j:
			case <-ctx.Done():
				return ctx.Err()
			}
			seq++
			c.progress.Do(func() {
				logging.Info("progress", map[string]any{"file": l.File, "member": l.Member, "line": l.Number, "queued": seq})
			})
			return nil
		})
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// only this goroutine touches InputErrors until Run returns
		logging.Error("input_error", map[string]any{"file": path, "error": err.Error()})
		rep.inputError(Source{File: path}, err.Error())
	}
	return nil
}

// collect restores input order, batches decoded records and commits them.
func (c *Controller) collect(ctx context.Context, results <-chan decoded, rep *Report) error {
	pending := make(map[int64]decoded)
	var next int64
	batch := make([]decoded, 0, c.opts.BatchSize)
	for r := range results {
		pending[r.seq] = r
		for {
			d, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			rep.RecordsRead++
			metrics.AddRecords("read", 1)
			if d.err != nil {
				rep.skip(d.src, d.err.Error())
				metrics.AddRecords("skipped", 1)
				logging.Debug("record_skipped", map[string]any{"source": d.src.String(), "error": d.err.Error()})
				continue
			}
			batch = append(batch, d)
			if len(batch) >= c.opts.BatchSize {
				if err := c.flush(ctx, batch, rep); err != nil {
					return err
				}
				batch = batch[:0]
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.flush(ctx, batch, rep)
}

// flush commits batch in one transaction. If that fails for any reason but
// a lost connection, each record is retried in its own transaction so one
// bad record cannot sink the others.
func (c *Controller) flush(ctx context.Context, batch []decoded, rep *Report) error {
	if len(batch) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rep.Batches++
	rows := make([]model.Rows, len(batch))
	for i, d := range batch {
		rows[i] = d.rows
	}
	res, err := c.write(ctx, rows)
	switch {
	case err == nil:
		c.commit(batch, res, rep)
		logging.Debug("batch_committed", map[string]any{"records": len(batch), "rows": candidateRows(rows), "first": batch[0].src.String()})
		return nil
	case store.IsConnectionFailure(err):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	}

	rep.IsolatedBatches++
	metrics.BatchIsolations.Inc()
	logging.Warn("batch_failed_isolating", map[string]any{
		"records": len(batch), "first": batch[0].src.String(), "error": err.Error(),
	})
	for _, d := range batch {
		res, err := c.write(ctx, []model.Rows{d.rows})
		switch {
		case err == nil:
			c.commit([]decoded{d}, res, rep)
		case store.IsConnectionFailure(err):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			rep.RecordsRejected++
			metrics.AddRecords("rejected", 1)
			kind := "record"
			if store.IsConstraintViolation(err) {
				kind = "constraint"
			}
			rep.reject(Rejection{Source: d.src, Kind: kind, TweetID: d.rows.Key, Reason: err.Error()})
			logging.Warn("record_rejected", map[string]any{"source": d.src.String(), "tweet_id": d.rows.Key, "error": err.Error()})
		}
	}
	return nil
}

func (c *Controller) write(ctx context.Context, rows []model.Rows) (*store.WriteResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	wctx, cancel := context.WithTimeout(ctx, c.opts.BatchTimeout)
	defer cancel()
	start := time.Now()
	defer metrics.ObserveBatchDuration(start)
	return c.w.WriteBatch(wctx, rows)
}

func (c *Controller) commit(batch []decoded, res *store.WriteResult, rep *Report) {
	rep.RecordsCommitted += int64(len(batch))
	metrics.AddRecords("committed", len(batch))
	for kind, counts := range res.Rows {
		rep.Rows[kind.String()].Add(*counts)
		metrics.AddRows(kind.String(), "inserted", counts.Inserted)
		metrics.AddRows(kind.String(), "changed", counts.Changed)
		metrics.AddRows(kind.String(), "unchanged", counts.Unchanged)
		metrics.AddRows(kind.String(), "rejected", counts.Rejected)
	}

	for _, rr := range res.Rejected {
		var src Source
		if rr.Record >= 0 && rr.Record < len(batch) {
			src = batch[rr.Record].src
		}
		rep.reject(Rejection{Source: src, Kind: rr.Kind.String(), TweetID: rr.TweetID, Key: rr.Key, Reason: rr.Reason})
	}

	rep.MergeConflicts += int64(len(res.Conflicts))
	rep.MergeWarnings += int64(merge.StableCount(res.Conflicts))
	for _, cf := range res.Conflicts {
		metrics.IncMergeConflict(cf.Kind.String(), cf.Stable)
		if cf.Stable {
			warnConflict(cf)
		}
	}
}

func candidateRows(batch []model.Rows) map[string]int {
	out := make(map[string]int, len(model.WriteOrder))
	for i := range batch {
		for _, k := range model.WriteOrder {
			out[k.String()] += batch[i].Count(k)
		}
	}
	return out
}

func warnConflict(cf merge.Conflict) {
	logging.Warn("merge_invariant_violation", map[string]any{
		"kind": cf.Kind.String(), "key": cf.Key, "field": cf.Field, "error": cf.Err().Error(),
	})
}

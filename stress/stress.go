// Package stress drives concurrent atom creation and release against a
// namespace and checks that equal strings always resolve to one entry.
package stress

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yourusername/atomcache/atom"
	"github.com/yourusername/atomcache/internal/intern"
	"github.com/yourusername/atomcache/logging"
	"github.com/yourusername/atomcache/ratelimit"
	"github.com/yourusername/atomcache/stats"
)

// ErrViolation is returned when an atom does not match its string or two
// live handles for the same string are not identical.
var ErrViolation = errors.New("atom identity violation")

// Options configures a stress run.
//
// Hold is the number of atoms each worker keeps alive before releasing the
// oldest one. A zero Seed picks a random seed; any other value makes word
// selection reproducible. Limiter, when set, is shared by all workers and
// caps their combined operation rate.
type Options struct {
	Namespace    *atom.Namespace
	Words        []string
	Workers      int
	OpsPerWorker int
	Duration     time.Duration
	Hold         int
	Seed         int64
	Limiter      *ratelimit.Limiter
	Tracker      *stats.Tracker
	Logger       *logging.Logger

	// newAtom replaces Namespace.New when set.
	newAtom func(string) atom.Atom
}

// Result summarises a finished run. Before and After are the table's
// statistics around the run.
type Result struct {
	Ops      int64
	Releases int64
	Elapsed  time.Duration
	Before   intern.Stats
	After    intern.Stats
}

// Leaked reports entries left in the table by the run. It is only exact
// when nothing else uses the table concurrently.
func (r Result) Leaked() int {
	return r.After.Entries - r.Before.Entries
}

type workerResult struct {
	ops      int64
	releases int64
}

// Run starts the workers and waits for them to finish. Workers stop after
// OpsPerWorker operations, once Duration has elapsed, or when ctx is
// cancelled, whichever comes first; every atom they hold is released
// before Run returns.
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Namespace == nil {
		return Result{}, errors.New("namespace is required")
	}
	if len(opts.Words) == 0 {
		return Result{}, errors.New("no words to intern")
	}
	if opts.OpsPerWorker <= 0 && opts.Duration <= 0 {
		return Result{}, errors.New("either an operation count or a duration is required")
	}
	workers := max(opts.Workers, 1)
	hold := max(opts.Hold, 1)
	seed := uint64(opts.Seed)
	if seed == 0 {
		seed = rand.Uint64()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.Named("stress")

	runCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	table := opts.Namespace.Table()
	result := Result{Before: table.Stats()}
	logger.Debugf("starting %d workers over %d words (hold=%d seed=%d)", workers, len(opts.Words), hold, seed)

	newAtom := opts.newAtom
	if newAtom == nil {
		newAtom = opts.Namespace.New
	}

	results := make([]workerResult, workers)
	g, gctx := errgroup.WithContext(runCtx)
	start := time.Now()
	for i := 0; i < workers; i++ {
		w := &worker{
			id:      i,
			newAtom: newAtom,
			words:   opts.Words,
			limit:   int64(opts.OpsPerWorker),
			held:    make([]atom.Atom, 0, hold),
			rng:     rand.New(rand.NewPCG(seed, uint64(i))),
			tracker: opts.Tracker,
			limiter: opts.Limiter,
			out:     &results[i],
		}
		g.Go(func() error {
			return w.run(gctx)
		})
	}
	err := g.Wait()
	result.Elapsed = time.Since(start)

	for _, r := range results {
		result.Ops += r.ops
		result.Releases += r.releases
	}
	result.After = table.Stats()
	logger.Debugf("finished: ops=%d releases=%d elapsed=%s", result.Ops, result.Releases, result.Elapsed)

	if err != nil {
		return result, err
	}
	return result, ctx.Err()
}

type worker struct {
	id      int
	newAtom func(string) atom.Atom
	words   []string
	limit   int64
	held    []atom.Atom
	rng     *rand.Rand
	tracker *stats.Tracker
	limiter *ratelimit.Limiter
	out     *workerResult
}

func (w *worker) run(ctx context.Context) error {
	defer w.releaseAll()

	for w.limit <= 0 || w.out.ops < w.limit {
		if ctx.Err() != nil {
			return nil
		}
		if err := w.limiter.Wait(ctx); err != nil {
			return nil
		}

		word := w.words[w.rng.IntN(len(w.words))]
		a := w.newAtom(word)
		w.out.ops++
		w.tracker.RecordNew(a.IsStatic())

		if a.String() != word {
			a.Release()
			return fmt.Errorf("worker %d: %w: New(%q) returned %q", w.id, ErrViolation, word, a.String())
		}
		for _, h := range w.held {
			if h.String() == word && !h.Eq(a) {
				a.Release()
				return fmt.Errorf("worker %d: %w: two live atoms for %q", w.id, ErrViolation, word)
			}
		}

		if len(w.held) == cap(w.held) {
			w.release(w.held[0])
			w.held = append(w.held[:0], w.held[1:]...)
		}
		w.held = append(w.held, a)
	}
	return nil
}

func (w *worker) release(a atom.Atom) {
	a.Release()
	w.out.releases++
	w.tracker.RecordRelease()
}

func (w *worker) releaseAll() {
	for _, a := range w.held {
		w.release(a)
	}
	w.held = w.held[:0]
}

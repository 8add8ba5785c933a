package installer

import (
	"context"
	"log/slog"
	"path/filepath"
	"pix/pkg/display"
	"pix/pkg/downloader"
	"pix/pkg/loop"
	"pix/pkg/operation"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Options tune an Installer.
type Options struct {
	// Parallel is the number of concurrent downloads (default 4).
	Parallel int
	// Rate caps new downloads per second; 0 means unlimited.
	Rate float64
	// Display receives a task per image. Defaults to display.Discard().
	Display display.Display
	Logger  *slog.Logger
}

// ProgressFunc is called after each finished image, successful or not.
// Calls are serialised and done is strictly increasing.
type ProgressFunc func(done, total int)

// DoneFunc receives the terminal state of an install run.
type DoneFunc func(res Result, state operation.State, err error)

// Installer runs install operations on a dedicated loop.
// Immutable
type Installer struct {
	loop   *loop.Loop
	dl     downloader.Downloader
	opts   Options
	logger *slog.Logger
}

func New(l *loop.Loop, dl downloader.Downloader, opts Options) *Installer {
	if opts.Parallel <= 0 {
		opts.Parallel = 4
	}
	if opts.Display == nil {
		opts.Display = display.Discard()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{loop: l, dl: dl, opts: opts, logger: logger}
}

// Start schedules req and returns its operation.
func (in *Installer) Start(req Request, progress ProgressFunc, onDone DoneFunc) (*operation.Operation, error) {
	logger := in.logger.With("dir", req.Dir, "total", req.Total)
	op := operation.New("install", in.loop, logger)

	var res Result
	work := func(ctx context.Context) error {
		var err error
		res, err = in.run(ctx, req, progress, logger)
		return err
	}
	finish := func(state operation.State, err error) {
		if onDone != nil {
			onDone(res, state, err)
		}
	}
	if err := op.Start(work, finish); err != nil {
		return nil, err
	}
	return op, nil
}

func (in *Installer) run(ctx context.Context, req Request, progress ProgressFunc, logger *slog.Logger) (Result, error) {
	plans, err := NewPlan(req)
	if err != nil {
		return Result{}, err
	}
	total := len(plans)
	logger.Info("install started", "images", total)

	limit := rate.Inf
	if in.opts.Rate > 0 {
		limit = rate.Limit(in.opts.Rate)
	}
	limiter := rate.NewLimiter(limit, in.opts.Parallel)

	var (
		mu   sync.Mutex
		res  Result
		done int
		g    errgroup.Group
	)
	g.SetLimit(in.opts.Parallel)

	for _, plan := range plans {
		// Cancellation stops scheduling; in-flight items finish on their own.
		if ctx.Err() != nil {
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		g.Go(func() error {
			// g.Go may have waited for a slot past a cancel.
			if ctx.Err() != nil {
				return nil
			}
			task := in.opts.Display.StartTask(filepath.Base(plan.Path))
			out := DownloadStage(ctx, in.dl, plan, task)
			task.Done()
			if out.Err != nil && ctx.Err() == nil {
				logger.Warn("image failed", "url", plan.URL, "error", out.Err)
			}

			mu.Lock()
			defer mu.Unlock()
			res.add(out)
			done++
			if progress != nil && ctx.Err() == nil {
				progress(done, total)
			}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		logger.Info("install cancelled", "done", done)
		return res, err
	}
	logger.Info("install finished", "saved", res.Saved, "existing", res.Existing, "failed", res.Failed)
	return res, nil
}

package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"pix/pkg/cache"
	"pix/pkg/display"
	"pix/pkg/downloader"
)

// Outcome is what happened to one planned image.
// Immutable
type Outcome struct {
	Plan *Plan
	// Size in bytes of the file on disk.
	Size int64
	// Existing is true when the file was already present.
	Existing bool
	Err      error
}

// DownloadStage fetches plan.URL into plan.Path. The file appears
// atomically; a file that already exists is left alone.
func DownloadStage(ctx context.Context, dl downloader.Downloader, plan *Plan, task display.Task) Outcome {
	task.SetStage("Download", plan.URL)

	created, err := cache.Ensure(ctx, plan.Path, func(tmp string) error {
		f, err := os.Create(tmp)
		if err != nil {
			return err
		}
		if err := dl.Download(ctx, plan.URL, f, task); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if err != nil {
		return Outcome{Plan: plan, Err: fmt.Errorf("download %s: %w", plan.URL, err)}
	}

	out := Outcome{Plan: plan, Existing: !created}
	if fi, err := os.Stat(plan.Path); err == nil {
		out.Size = fi.Size()
	}
	return out
}

// Result summarises an install run.
// Mutable
type Result struct {
	Saved    int
	Existing int
	Failed   int
	// Outcomes in completion order.
	Outcomes []Outcome
}

func (r *Result) add(o Outcome) {
	switch {
	case o.Err != nil:
		if !errors.Is(o.Err, context.Canceled) {
			r.Failed++
		}
	case o.Existing:
		r.Existing++
	default:
		r.Saved++
	}
	r.Outcomes = append(r.Outcomes, o)
}

// Package progress renders terminal progress for long running CLI commands.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"

	"github.com/vexxhost/migratekit-cleanroom/internal/status"
)

var theme = progressbar.Theme{
	Saucer:        "[green]=[reset]",
	SaucerHead:    "[green]>[reset]",
	SaucerPadding: " ",
	BarStart:      "[",
	BarEnd:        "]",
}

// EntityBar counts settled entities of a recovery group.
func EntityBar(w io.Writer, desc string, total int) *progressbar.ProgressBar {
	if w == nil {
		w = ansi.NewAnsiStdout()
	}
	return progressbar.NewOptions(max(total, 1),
		progressbar.OptionSetWriter(w),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetTheme(theme),
	)
}

// Poller reads the current recovery status of every entity, keyed by name.
type Poller func(ctx context.Context) (map[string]status.RecoveryStatus, error)

// WaitOptions configures Wait
type WaitOptions struct {
	Interval    time.Duration
	Timeout     time.Duration
	Description string
	// Writer receives the bar; nil selects the ANSI stdout.
	Writer io.Writer
}

// WaitResult is the last poll Wait saw.
type WaitResult struct {
	Statuses map[string]status.RecoveryStatus
	Polls    int
}

// Pending lists the entities still in progress, sorted.
func (r WaitResult) Pending() []string {
	var names []string
	for name, st := range r.Statuses {
		if !settled(st) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func settled(st status.RecoveryStatus) bool {
	return st != status.StatusInProgress
}

const defaultInterval = 15 * time.Second

// Wait polls until no entity is IN_PROGRESS, the timeout passes or ctx ends.
// Poll errors end the wait.
func Wait(ctx context.Context, poll Poller, opts WaitOptions) (WaitResult, error) {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	bar := EntityBar(opts.Writer, opts.Description, 0)
	defer bar.Exit()

	var result WaitResult
	for {
		statuses, err := poll(ctx)
		if err != nil {
			return result, fmt.Errorf("failed to poll entity status: %w", err)
		}
		result.Statuses = statuses
		result.Polls++

		done := 0
		for _, st := range statuses {
			if settled(st) {
				done++
			}
		}
		bar.ChangeMax(max(len(statuses), 1))
		_ = bar.Set(done)

		log.WithFields(log.Fields{
			"settled": done,
			"total":   len(statuses),
			"poll":    result.Polls,
		}).Debug("Polled entity recovery status")

		if done == len(statuses) {
			_ = bar.Finish()
			return result, nil
		}

		timer := time.NewTimer(opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, fmt.Errorf("stopped waiting with %d of %d entities in progress: %w",
				len(statuses)-done, len(statuses), ctx.Err())
		case <-timer.C:
		}
	}
}

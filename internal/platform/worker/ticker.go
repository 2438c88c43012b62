package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TickerTask represents a task triggered by a ticker.
type TickerTask struct {
	Name     string
	Interval time.Duration
	// Timeout bounds one run; zero means no extra deadline.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// TickerConfig configures a ticker-based worker loop.
type TickerConfig struct {
	// Name identifies the worker for logging.
	Name string

	// Tasks are the ticker-triggered tasks to run.
	Tasks []TickerTask

	// RunOnStart runs every task once before the first tick.
	RunOnStart bool

	// Logger for the worker.
	Logger *zerolog.Logger
}

// TickerLoop runs each task on its own ticker until the context is canceled.
// Tasks with a non-positive interval are skipped. A run never overlaps with
// the next run of the same task. Returns a wrapped context error.
func TickerLoop(ctx context.Context, cfg TickerConfig) error {
	logger := getLogger(cfg.Logger)
	logger.Info().Str(logFieldWorker, cfg.Name).Int("tasks", len(cfg.Tasks)).Msg("starting ticker loop")

	defer logger.Info().Str(logFieldWorker, cfg.Name).Msg("ticker loop stopped")

	var wg sync.WaitGroup

	for _, task := range cfg.Tasks {
		if task.Interval <= 0 || task.Run == nil {
			logger.Debug().Str(logFieldTask, task.Name).Msg("task disabled")
			continue
		}

		wg.Add(1)

		go func(task TickerTask) {
			defer wg.Done()

			runTask(ctx, task, cfg.RunOnStart, logger)
		}(task)
	}

	wg.Wait()
	<-ctx.Done()

	return fmt.Errorf("ticker loop %s: %w", cfg.Name, ctx.Err())
}

func runTask(ctx context.Context, task TickerTask, runOnStart bool, logger *zerolog.Logger) {
	if runOnStart {
		RunOnce(ctx, task, logger)
	}

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			RunOnce(ctx, task, logger)
		}
	}
}

// RunOnce runs a task a single time with its timeout, logging errors and panics.
func RunOnce(ctx context.Context, task TickerTask, logger *zerolog.Logger) {
	logger = getLogger(logger)
	defer RecoverPanic(logger, task.Name)

	start := time.Now()

	if err := RunWithTimeout(ctx, task.Timeout, task.Run); err != nil {
		if ctx.Err() != nil {
			return
		}

		logger.Error().Err(err).Str(logFieldTask, task.Name).Msg("task failed")

		return
	}

	logger.Debug().Str(logFieldTask, task.Name).Dur("took", time.Since(start)).Msg("task finished")
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/progressd/internal/app"
	"github.com/JakeFAU/progressd/internal/config"
	"github.com/JakeFAU/progressd/internal/progress"
)

// demoIndex pins the slot identity of the simulated run's phase set.
type demoIndex struct{}

// sourceFetch pins the slot identity of the per-source child steps.
type sourceFetch struct{}

// cacheWarm pins the slot identity of the cache warming steps.
type cacheWarm struct{}

// documents is the unit counted by the processing phase's atomic step.
type documents struct{}

func (documents) UnitName() string { return "documents" }

var demoPhases = progress.NewPhases[demoIndex](
	"FetchingSources",
	"ProcessingDocuments",
	"WritingIndex",
)

// newDemoCmd creates and configures the 'demo' subcommand.
func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Runs simulated tasks and renders them to the terminal",
		Long: `Assembles the full service with in-memory providers and drives a few
simulated tasks through it: a main indexing run is followed live in the
terminal while two background tasks run alongside it, then each task's
duration breakdown is printed. Finished records travel the real delivery
pipeline into the in-memory sinks.`,
		RunE: runDemoCommand,
	}
}

// demoConfig assembles the app entirely from in-memory providers: memory
// archive, memory publisher, no database. Port 0 binds an ephemeral port so
// the demo never collides with a running service, and error-level logging
// keeps the terminal clear for the follower.
func demoConfig() *config.Config {
	var cfg config.Config
	cfg.Application.ServiceName = "progressd-demo"
	cfg.Application.Version = "dev"
	cfg.Server.Port = 0
	cfg.Logging.Development = true
	cfg.Logging.Level = "error"
	cfg.Storage.Provider = "memory"
	cfg.Storage.Prefix = "reports"
	cfg.PubSub.TopicName = "task-events"
	cfg.Delivery.QueueDepth = 16
	cfg.Delivery.Workers = 2
	cfg.Registry.RetainFinished = 16
	return &cfg
}

func runDemoCommand(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	out := cmd.OutOrStdout()

	a, err := app.Build(ctx, demoConfig())
	if err != nil {
		return fmt.Errorf("build demo app: %w", err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- a.Run(runCtx) }()

	reg := a.Registry()
	mainTask, err := reg.Create("index-rebuild")
	if err != nil {
		return fmt.Errorf("create demo task: %w", err)
	}
	vacuum, err := reg.Create("vacuum-store")
	if err != nil {
		return fmt.Errorf("create demo task: %w", err)
	}
	warm, err := reg.Create("warm-cache")
	if err != nil {
		return fmt.Errorf("create demo task: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		driveVacuum(ctx, vacuum.Tracker())
		_ = reg.Finish(ctx, vacuum.ID)
	}()
	go func() {
		defer wg.Done()
		driveCacheWarm(ctx, warm.Tracker())
		_ = reg.Finish(ctx, warm.ID)
	}()

	follower := progress.NewFollower(mainTask.Tracker(), out, 80*time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- follower.Run(ctx) }()

	driveIndexRebuild(ctx, mainTask.Tracker())
	if err := reg.Finish(ctx, mainTask.ID); err != nil {
		return fmt.Errorf("finish demo task: %w", err)
	}
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("follow demo task: %w", err)
	}
	wg.Wait()

	for _, summary := range reg.List() {
		if summary.ID == mainTask.ID {
			continue // the follower already rendered this table
		}
		durations, err := reg.Durations(summary.ID)
		if err != nil {
			return fmt.Errorf("read %s durations: %w", summary.Name, err)
		}
		fmt.Fprintf(out, "\n%s (%s)\n%s\n",
			summary.Name, summary.Duration, progress.RenderDurationTable(durations))
	}

	cancel()
	if err := <-runDone; err != nil {
		return fmt.Errorf("demo app shutdown: %w", err)
	}
	return nil
}

// driveIndexRebuild walks the phase set: three nested source fetches, an
// atomic document counter, then the index write.
func driveIndexRebuild(ctx context.Context, tracker *progress.Tracker) {
	tracker.Report(demoPhases.Phase(0))
	for i, source := range []string{"wiki", "news", "docs"} {
		tracker.Report(progress.NewNamed[sourceFetch](source, uint64(i), 3))
		if !pause(ctx, 120*time.Millisecond) {
			return
		}
	}

	tracker.Report(demoPhases.Phase(1))
	counter, step := progress.NewAtomicStep[documents](400)
	tracker.Report(step)
	for i := 0; i < 10; i++ {
		counter.Add(40)
		if !pause(ctx, 70*time.Millisecond) {
			return
		}
	}

	tracker.Report(demoPhases.Phase(2))
	pause(ctx, 150*time.Millisecond)
}

// driveVacuum reports wire-style slot steps, the shape remote producers use.
func driveVacuum(ctx context.Context, tracker *progress.Tracker) {
	for i := uint64(0); i <= 4; i++ {
		tracker.Report(progress.NewSlotStep("sweep", "sweeping segments", i, 4))
		if !pause(ctx, 90*time.Millisecond) {
			return
		}
	}
}

func driveCacheWarm(ctx context.Context, tracker *progress.Tracker) {
	shards := []string{"alpha", "beta", "gamma"}
	for i, shard := range shards {
		tracker.Report(progress.NewNamed[cacheWarm]("shard "+shard, uint64(i), uint64(len(shards))))
		if !pause(ctx, 110*time.Millisecond) {
			return
		}
	}
}

// pause sleeps for d unless the context ends first.
func pause(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

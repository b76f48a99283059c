package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Reconciler re-verifies payments whose callback never arrived
type Reconciler interface {
	ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// PaymentReconcileJob periodically re-verifies pending payments with the gateway
type PaymentReconcileJob struct {
	reconciler Reconciler
	interval   time.Duration
	after      time.Duration
	batch      int
	timeout    time.Duration
	cron       *cron.Cron
}

func NewPaymentReconcileJob(reconciler Reconciler, interval, after time.Duration, batch int) *PaymentReconcileJob {
	return &PaymentReconcileJob{
		reconciler: reconciler,
		interval:   interval,
		after:      after,
		batch:      batch,
		timeout:    interval,
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start schedules the job. Runs that overlap a still running one are skipped.
func (j *PaymentReconcileJob) Start() error {
	spec := fmt.Sprintf("@every %s", j.interval)
	if _, err := j.cron.AddFunc(spec, j.Run); err != nil {
		return fmt.Errorf("failed to schedule payment reconciliation: %w", err)
	}

	slog.Info("Starting payment reconciliation job",
		"interval", j.interval, "after", j.after, "batch", j.batch)
	j.cron.Start()
	return nil
}

// Stop waits for a running pass to finish or for ctx to expire
func (j *PaymentReconcileJob) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
		slog.Info("Payment reconciliation job stopped")
	case <-ctx.Done():
		slog.Warn("Payment reconciliation job did not stop in time")
	}
}

// Run performs one reconciliation pass
func (j *PaymentReconcileJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	checked, err := j.reconciler.ReconcileStale(ctx, j.after, j.batch)
	if err != nil {
		slog.Error("Payment reconciliation failed", "error", err, "checked", checked)
		return
	}
	if checked > 0 {
		slog.Info("Checked stale payments", "checked", checked)
	} else {
		slog.Debug("No stale payments found")
	}
}

// Package jobs contains medgate's background loops. Each job exposes
// Start(ctx)/Stop() and is launched through safego from the main binary.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/medgate/medgate/internal/config"
	"github.com/medgate/medgate/internal/db/repositories"
	"github.com/medgate/medgate/internal/telemetry"
)

// AppointmentReconciler periodically cancels pending appointments whose
// scheduled date has passed. The sweep is one bulk UPDATE scoped by both the
// date cutoff and the pending status, so re-running it (or running it from
// several replicas) converges on the same state instead of compounding.
type AppointmentReconciler struct {
	appointments *repositories.AppointmentRepository
	cfg          *config.ReconcilerConfig
	stopChan     chan struct{}
}

// NewAppointmentReconciler creates a new AppointmentReconciler.
func NewAppointmentReconciler(appointments *repositories.AppointmentRepository, cfg *config.ReconcilerConfig) *AppointmentReconciler {
	return &AppointmentReconciler{
		appointments: appointments,
		cfg:          cfg,
		stopChan:     make(chan struct{}),
	}
}

// Start begins the reconciliation loop. It runs one sweep immediately so a
// restarted process catches up without waiting a full interval, then repeats
// on the configured interval. The loop exits when ctx is cancelled or Stop()
// is called. A failed sweep is logged and retried at the next tick; rows it
// would have cancelled are simply picked up then.
func (r *AppointmentReconciler) Start(ctx context.Context) {
	if !r.cfg.Enabled {
		slog.Info("appointment reconciler disabled")
		return
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.Info("appointment reconciler started", "interval", r.cfg.Interval)

	r.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			r.sweep(ctx)
		case <-r.stopChan:
			slog.Info("appointment reconciler stopped")
			return
		case <-ctx.Done():
			slog.Info("appointment reconciler context cancelled")
			return
		}
	}
}

// Stop signals the loop to exit.
func (r *AppointmentReconciler) Stop() {
	close(r.stopChan)
}

// sweep performs a single reconciliation pass.
func (r *AppointmentReconciler) sweep(ctx context.Context) {
	cancelled, err := r.appointments.CancelExpired(ctx)
	if err != nil {
		telemetry.ReconcilerSweepsTotal.WithLabelValues("error").Inc()
		slog.Error("appointment reconciler sweep failed", "error", err)
		return
	}

	telemetry.ReconcilerSweepsTotal.WithLabelValues("ok").Inc()
	telemetry.ReconcilerCancelledTotal.Add(float64(cancelled))

	if cancelled > 0 {
		slog.Info("appointment reconciler cancelled expired appointments", "count", cancelled)
	}
}

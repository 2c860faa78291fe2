// README: Watchdog for ready orders nobody claimed; alerts, never cancels.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"antar/internal/modules/order"
	"antar/internal/notify"
)

// StaleReadyStore lists ready, unassigned orders older than the cutoff.
type StaleReadyStore interface {
	ListStaleReady(ctx context.Context, readyBefore time.Time) ([]*order.Order, error)
}

// StaleReadyJob warns merchants about ready orders that sat unclaimed past
// the threshold. Expiry policy is deliberately alert-only: the order stays
// claimable until somebody acts on it.
type StaleReadyJob struct {
	store   StaleReadyStore
	emitter notify.Emitter
	after   time.Duration
	spec    string
	cron    *cron.Cron
	log     *zap.Logger
}

func NewStaleReadyJob(store StaleReadyStore, emitter notify.Emitter, spec string, after time.Duration, log *zap.Logger) *StaleReadyJob {
	return &StaleReadyJob{
		store:   store,
		emitter: emitter,
		after:   after,
		spec:    spec,
		cron:    cron.New(),
		log:     log.With(zap.String("component", "stale_ready_job")),
	}
}

func (j *StaleReadyJob) Start() error {
	_, err := j.cron.AddFunc(j.spec, j.runOnce)
	if err != nil {
		return err
	}
	j.cron.Start()
	j.log.Info("stale ready watchdog started", zap.String("spec", j.spec))
	return nil
}

func (j *StaleReadyJob) Stop() {
	j.cron.Stop()
	j.log.Info("stale ready watchdog stopped")
}

func (j *StaleReadyJob) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-j.after)
	stale, err := j.store.ListStaleReady(ctx, cutoff)
	if err != nil {
		j.log.Error("stale ready scan failed", zap.Error(err))
		return
	}
	for _, o := range stale {
		j.emitter.Notify(o.MerchantID, notify.KindWarning, map[string]any{
			"order_id": o.ID,
			"status":   o.Status,
			"ready_at": o.ReadyAt,
		})
	}
	if len(stale) > 0 {
		j.log.Warn("unclaimed ready orders", zap.Int("count", len(stale)))
	}
}

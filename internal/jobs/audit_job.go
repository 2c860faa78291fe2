// README: Wallet-ledger consistency audit; anomalies are loud, never auto-fixed.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"antar/internal/modules/wallet"
	"antar/internal/notify"
	"antar/internal/types"
)

type AuditStore interface {
	AuditWallets(ctx context.Context) ([]wallet.Anomaly, error)
}

// AuditJob cross-checks every wallet balance against the sum of its ledger
// entries. The conditional writes should make a mismatch impossible, so any
// hit is an incident, not a cleanup task.
type AuditJob struct {
	store       AuditStore
	emitter     notify.Emitter
	alertUserID types.ID
	spec        string
	cron        *cron.Cron
	log         *zap.Logger
}

func NewAuditJob(store AuditStore, emitter notify.Emitter, alertUserID types.ID, spec string, log *zap.Logger) *AuditJob {
	return &AuditJob{
		store:       store,
		emitter:     emitter,
		alertUserID: alertUserID,
		spec:        spec,
		cron:        cron.New(),
		log:         log.With(zap.String("component", "wallet_audit_job")),
	}
}

func (j *AuditJob) Start() error {
	_, err := j.cron.AddFunc(j.spec, j.runOnce)
	if err != nil {
		return err
	}
	j.cron.Start()
	j.log.Info("wallet audit started", zap.String("spec", j.spec))
	return nil
}

func (j *AuditJob) Stop() {
	j.cron.Stop()
	j.log.Info("wallet audit stopped")
}

func (j *AuditJob) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	anomalies, err := j.store.AuditWallets(ctx)
	if err != nil {
		j.log.Error("wallet audit failed", zap.Error(err))
		return
	}
	for _, a := range anomalies {
		j.log.Error("wallet balance diverged from ledger",
			zap.String("user_id", string(a.UserID)),
			zap.Int64("balance", a.Balance),
			zap.Int64("ledger_sum", a.LedgerSum),
		)
		j.emitter.Notify(j.alertUserID, notify.KindSystem, map[string]any{
			"user_id":    a.UserID,
			"balance":    a.Balance,
			"ledger_sum": a.LedgerSum,
		})
	}
}

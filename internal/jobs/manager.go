// README: Coordinates the scheduled jobs; one Start/Stop for all of them.
package jobs

import (
	"fmt"

	"go.uber.org/zap"

	"antar/internal/config"
	"antar/internal/notify"
	"antar/internal/types"
)

type Manager struct {
	staleReady *StaleReadyJob
	audit      *AuditJob
}

func NewManager(staleStore StaleReadyStore, auditStore AuditStore, emitter notify.Emitter, cfg config.JobsConfig, log *zap.Logger) *Manager {
	return &Manager{
		staleReady: NewStaleReadyJob(staleStore, emitter, cfg.StaleReadySpec, cfg.StaleReadyAfter, log),
		audit:      NewAuditJob(auditStore, emitter, types.ID(cfg.AlertUserID), cfg.AuditSpec, log),
	}
}

func (m *Manager) StartAll() error {
	if err := m.staleReady.Start(); err != nil {
		return fmt.Errorf("start stale ready watchdog: %w", err)
	}
	if err := m.audit.Start(); err != nil {
		m.staleReady.Stop()
		return fmt.Errorf("start wallet audit: %w", err)
	}
	return nil
}

func (m *Manager) StopAll() {
	m.staleReady.Stop()
	m.audit.Stop()
}

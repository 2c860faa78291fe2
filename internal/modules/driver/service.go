// README: Driver directory; availability, live location, and admin approval.
package driver

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"antar/internal/logger"
	"antar/internal/notify"
	"antar/internal/types"
)

var (
	ErrNotFound        = errors.New("driver not found")
	ErrNotAuthorized   = errors.New("actor not entitled to this operation")
	ErrAlreadyReviewed = errors.New("driver application already reviewed")
)

type Store interface {
	Get(ctx context.Context, id types.ID) (*Driver, error)
	GetByUserID(ctx context.Context, userID types.ID) (*Driver, error)
	SetActive(ctx context.Context, id types.ID, active bool) error
	UpdateLocation(ctx context.Context, id types.ID, p types.Point) error
	// SetStatus is conditional on the current status; zero rows means the
	// application was already reviewed.
	SetStatus(ctx context.Context, id types.ID, from, to ApprovalStatus) error
}

// GeoIndex tracks live driver positions.
type GeoIndex interface {
	Add(ctx context.Context, id types.ID, p types.Point) error
	Remove(ctx context.Context, id types.ID) error
}

type Service struct {
	store   Store
	geo     GeoIndex
	emitter notify.Emitter
}

func NewService(store Store, geo GeoIndex, emitter notify.Emitter) *Service {
	if emitter == nil {
		emitter = notify.Nop{}
	}
	return &Service{store: store, geo: geo, emitter: emitter}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) GetByUserID(ctx context.Context, userID types.ID) (*Driver, error) {
	return s.store.GetByUserID(ctx, userID)
}

func (s *Service) SetAvailability(ctx context.Context, driverID types.ID, active bool) error {
	d, err := s.store.Get(ctx, driverID)
	if err != nil {
		return err
	}
	if err := s.store.SetActive(ctx, d.ID, active); err != nil {
		return err
	}
	if s.geo != nil && !active {
		if err := s.geo.Remove(ctx, d.ID); err != nil {
			logger.FromCtx(ctx).Warn("driver geo remove failed",
				zap.String("driver_id", string(d.ID)), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) UpdateLocation(ctx context.Context, driverID types.ID, p types.Point) error {
	if err := s.store.UpdateLocation(ctx, driverID, p); err != nil {
		return err
	}
	if s.geo != nil {
		if err := s.geo.Add(ctx, driverID, p); err != nil {
			logger.FromCtx(ctx).Warn("driver geo update failed",
				zap.String("driver_id", string(driverID)), zap.Error(err))
		}
	}
	return nil
}

// Review resolves a pending driver application, exactly once.
func (s *Service) Review(ctx context.Context, admin types.Actor, driverID types.ID, approve bool) error {
	if !admin.Is(types.RoleAdmin) {
		return ErrNotAuthorized
	}
	d, err := s.store.Get(ctx, driverID)
	if err != nil {
		return err
	}

	to := StatusRejected
	if approve {
		to = StatusApproved
	}
	if err := s.store.SetStatus(ctx, d.ID, StatusPending, to); err != nil {
		return err
	}
	s.emitter.Notify(d.UserID, notify.KindDriver, map[string]any{
		"driver_id": d.ID,
		"status":    to,
	})
	return nil
}

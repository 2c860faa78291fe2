// README: Order lifecycle engine; validates and applies state transitions.
package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"antar/internal/logger"
	"antar/internal/modules/settlement"
	"antar/internal/notify"
	"antar/internal/types"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNotAuthorized     = errors.New("actor not entitled to this transition")
	ErrConflict          = errors.New("order state conflict")
	ErrBadRequest        = errors.New("bad request")
	// ErrConsistency signals a half-applied settlement; it is never retried
	// blindly and must be reconciled manually.
	ErrConsistency = errors.New("settlement state inconsistent")
)

// Store is the durable order store. All mutating methods are conditional
// writes keyed on the expected current status and version; they return
// ErrConflict when the predicate no longer holds.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (*Order, error)
	// Complete flips the order to completed and applies the settlement in
	// one atomic transaction; either both happen or neither does.
	Complete(ctx context.Context, o *Order, s settlement.Settlement) (*Order, error)
	AppendEvent(ctx context.Context, e *Event) error
}

// GeoIndex tracks pickup points of ready orders for dispatch queries.
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

type CreateCommand struct {
	Actor         types.Actor
	MerchantID    types.ID
	PaymentMethod PaymentMethod
	Subtotal      int64
	DeliveryFee   int64
	ServiceFee    int64
	Pickup        types.Point
	Dropoff       types.Point
}

type AdvanceCommand struct {
	OrderID types.ID
	Actor   types.Actor
	Target  Status
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if !cmd.Actor.Is(types.RoleCustomer) {
		return nil, ErrNotAuthorized
	}
	if cmd.MerchantID == "" {
		return nil, ErrBadRequest
	}
	switch cmd.PaymentMethod {
	case PaymentCOD, PaymentWallet, PaymentTransfer:
	default:
		return nil, ErrBadRequest
	}
	if cmd.Subtotal < 0 || cmd.DeliveryFee < 0 || cmd.ServiceFee < 0 {
		return nil, ErrBadRequest
	}
	if cmd.ServiceFee > cmd.DeliveryFee {
		return nil, ErrBadRequest
	}

	o := &Order{
		ID:            types.ID(uuid.NewString()),
		CustomerID:    cmd.Actor.ID,
		MerchantID:    cmd.MerchantID,
		Status:        StatusPending,
		StatusVersion: 0,
		PaymentMethod: cmd.PaymentMethod,
		Subtotal:      cmd.Subtotal,
		DeliveryFee:   cmd.DeliveryFee,
		ServiceFee:    cmd.ServiceFee,
		TotalAmount:   cmd.Subtotal + cmd.DeliveryFee,
		Pickup:        cmd.Pickup,
		Dropoff:       cmd.Dropoff,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, &Event{
		OrderID:    o.ID,
		FromStatus: StatusNone,
		ToStatus:   StatusPending,
		ActorRole:  string(cmd.Actor.Role),
		ActorID:    &cmd.Actor.ID,
		CreatedAt:  o.CreatedAt,
	})
	s.emitter.Notify(o.MerchantID, notify.KindMerchant, map[string]any{
		"order_id": o.ID,
		"status":   o.Status,
	})
	return o, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

// Advance applies one edge of the transition graph on behalf of an actor.
// Re-sending an already-applied transition is a no-op returning the current
// order, so a retried network call never double-applies settlement.
func (s *Service) Advance(ctx context.Context, cmd AdvanceCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	if err := authorize(cmd.Actor, o, cmd.Target); err != nil {
		return nil, err
	}
	if o.Status == cmd.Target {
		return o, nil
	}
	if !CanTransition(o.Status, cmd.Target) {
		return nil, ErrInvalidTransition
	}

	var updated *Order
	if cmd.Target == StatusCompleted {
		set, err := settlement.Compute(settlement.Input{
			CashOnDelivery: o.PaymentMethod == PaymentCOD,
			DeliveryFee:    o.DeliveryFee,
			ServiceFee:     o.ServiceFee,
			TotalAmount:    o.TotalAmount,
		})
		if err != nil {
			return nil, err
		}
		updated, err = s.store.Complete(ctx, o, set)
		if err != nil {
			return nil, err
		}
	} else {
		updated, err = s.store.UpdateStatus(ctx, o.ID, o.Status, cmd.Target, o.StatusVersion)
		if err != nil {
			return nil, err
		}
	}

	s.appendEvent(ctx, &Event{
		OrderID:    o.ID,
		FromStatus: o.Status,
		ToStatus:   cmd.Target,
		ActorRole:  string(cmd.Actor.Role),
		ActorID:    &cmd.Actor.ID,
		CreatedAt:  time.Now().UTC(),
	})
	s.syncGeo(ctx, updated, o.Status)
	s.notifyParties(updated)
	return updated, nil
}

// authorize checks the actor against the edge being requested. The accepted
// edge belongs to the dispatch coordinator and is never reachable here.
func authorize(actor types.Actor, o *Order, target Status) error {
	switch target {
	case StatusPreparing, StatusReady:
		if !actor.Is(types.RoleMerchant) || actor.ID != o.MerchantID {
			return ErrNotAuthorized
		}
		if o.DriverID != nil {
			return ErrNotAuthorized
		}
	case StatusCancelled:
		switch {
		case actor.Is(types.RoleCustomer) && actor.ID == o.CustomerID:
		case actor.Is(types.RoleMerchant) && actor.ID == o.MerchantID:
		case actor.Is(types.RoleAdmin):
		default:
			return ErrNotAuthorized
		}
		if o.DriverID != nil {
			return ErrNotAuthorized
		}
	case StatusPickup, StatusDelivery, StatusCompleted:
		if !actor.Is(types.RoleDriver) || o.DriverID == nil || actor.ID != *o.DriverID {
			return ErrNotAuthorized
		}
	default:
		return ErrNotAuthorized
	}
	return nil
}

// appendEvent records a history row. The transition itself has already
// committed, so a failed append costs the audit entry, not the order.
func (s *Service) appendEvent(ctx context.Context, e *Event) {
	if err := s.store.AppendEvent(ctx, e); err != nil {
		logger.FromCtx(ctx).Warn("status event append failed",
			zap.String("order_id", string(e.OrderID)),
			zap.String("to_status", string(e.ToStatus)),
			zap.Error(err))
	}
}

func (s *Service) syncGeo(ctx context.Context, o *Order, from Status) {
	if s.geo == nil {
		return
	}
	var err error
	switch {
	case o.Status == StatusReady:
		err = s.geo.Add(ctx, o.ID, o.Pickup)
	case o.Status == StatusCancelled && from == StatusReady:
		err = s.geo.Remove(ctx, o.ID)
	default:
		return
	}
	if err != nil {
		logger.FromCtx(ctx).Warn("geo index update failed",
			zap.String("order_id", string(o.ID)), zap.Error(err))
	}
}

func (s *Service) notifyParties(o *Order) {
	payload := map[string]any{
		"order_id": o.ID,
		"status":   o.Status,
	}
	s.emitter.Notify(o.CustomerID, notify.KindOrder, payload)

	switch o.Status {
	case StatusCancelled, StatusCompleted:
		s.emitter.Notify(o.MerchantID, notify.KindMerchant, payload)
	}
}

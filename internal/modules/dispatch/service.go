// README: Dispatch coordinator; matches ready orders to drivers and performs the atomic claim.
package dispatch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"antar/internal/config"
	"antar/internal/geo"
	"antar/internal/logger"
	"antar/internal/modules/driver"
	"antar/internal/modules/order"
	"antar/internal/notify"
	"antar/internal/types"
)

var (
	// ErrAlreadyClaimed is the expected outcome of losing a claim race; it
	// is cheap and not logged as a failure.
	ErrAlreadyClaimed    = errors.New("order already claimed")
	ErrDriverUnavailable = errors.New("driver unavailable")
)

type Store interface {
	// Claim is the single conditional write that assigns a driver: it only
	// succeeds while the order is ready and unassigned.
	Claim(ctx context.Context, orderID, driverID types.ID) (*order.Order, error)
	GetOrder(ctx context.Context, id types.ID) (*order.Order, error)
	ListReadyByIDs(ctx context.Context, ids []types.ID) ([]*order.Order, error)
	HasActiveDelivery(ctx context.Context, driverID types.ID) (bool, error)
	ListStaleReady(ctx context.Context, readyBefore time.Time) ([]*order.Order, error)
	AppendEvent(ctx context.Context, e *order.Event) error
}

type Drivers interface {
	Get(ctx context.Context, id types.ID) (*driver.Driver, error)
}

type GeoIndex interface {
	Near(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error)
	Remove(ctx context.Context, id types.ID) error
}

// AvailableOrder is one listAvailable result; the distance is from the
// querying driver to the merchant pickup point.
type AvailableOrder struct {
	Order      *order.Order
	DistanceKm float64
}

type Service struct {
	store   Store
	drivers Drivers
	geo     GeoIndex
	emitter notify.Emitter
	cfg     config.DispatchConfig
}

func NewService(store Store, drivers Drivers, geoIdx GeoIndex, emitter notify.Emitter, cfg config.DispatchConfig) *Service {
	if emitter == nil {
		emitter = notify.Nop{}
	}
	return &Service{store: store, drivers: drivers, geo: geoIdx, emitter: emitter, cfg: cfg}
}

// ListAvailable returns ready, unassigned orders whose pickup point lies
// within radiusKm of the driver, closest first, oldest-ready as tiebreak.
// The result is a hint, not a reservation: only Claim decides ownership.
func (s *Service) ListAvailable(ctx context.Context, driverLoc types.Point, radiusKm float64) ([]AvailableOrder, error) {
	if radiusKm <= 0 {
		radiusKm = s.cfg.DefaultRadiusKm
	}
	if s.cfg.MaxRadiusKm > 0 && radiusKm > s.cfg.MaxRadiusKm {
		radiusKm = s.cfg.MaxRadiusKm
	}

	ids, err := s.geo.Near(ctx, driverLoc, radiusKm)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	orders, err := s.store.ListReadyByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]AvailableOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, AvailableOrder{
			Order:      o,
			DistanceKm: geo.HaversineKm(driverLoc.Lat, driverLoc.Lng, o.Pickup.Lat, o.Pickup.Lng),
		})
	}
	geo.SortByDistance(out, func(a AvailableOrder) float64 { return a.DistanceKm })
	sortTiesByReadyAt(out)
	return out, nil
}

// Claim atomically assigns the order to the driver. Exactly one of N
// concurrent claims wins; the rest observe ErrAlreadyClaimed.
func (s *Service) Claim(ctx context.Context, orderID, driverID types.ID) (*order.Order, error) {
	d, err := s.drivers.Get(ctx, driverID)
	if errors.Is(err, driver.ErrNotFound) {
		return nil, ErrDriverUnavailable
	}
	if err != nil {
		return nil, err
	}
	if !d.Available() {
		return nil, ErrDriverUnavailable
	}
	active, err := s.store.HasActiveDelivery(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrDriverUnavailable
	}

	o, err := s.store.Claim(ctx, orderID, driverID)
	if errors.Is(err, ErrAlreadyClaimed) {
		// Distinguish a lost race from a missing order.
		if _, gerr := s.store.GetOrder(ctx, orderID); errors.Is(gerr, order.ErrNotFound) {
			return nil, order.ErrNotFound
		}
		return nil, ErrAlreadyClaimed
	}
	if err != nil {
		return nil, err
	}

	if rerr := s.geo.Remove(ctx, o.ID); rerr != nil {
		logger.FromCtx(ctx).Warn("geo index remove failed",
			zap.String("order_id", string(o.ID)), zap.Error(rerr))
	}
	if aerr := s.store.AppendEvent(ctx, &order.Event{
		OrderID:    o.ID,
		FromStatus: order.StatusReady,
		ToStatus:   order.StatusAccepted,
		ActorRole:  string(types.RoleDriver),
		ActorID:    &driverID,
		CreatedAt:  time.Now().UTC(),
	}); aerr != nil {
		logger.FromCtx(ctx).Warn("status event append failed",
			zap.String("order_id", string(o.ID)), zap.Error(aerr))
	}

	payload := map[string]any{"order_id": o.ID, "status": o.Status}
	s.emitter.Notify(d.UserID, notify.KindDriver, payload)
	s.emitter.Notify(o.CustomerID, notify.KindOrder, payload)
	return o, nil
}

// sortTiesByReadyAt keeps the distance order but breaks equal-distance runs
// by ready_at ascending.
func sortTiesByReadyAt(items []AvailableOrder) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && items[j].DistanceKm == key.DistanceKm && readyAfter(items[j].Order, key.Order) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}

func readyAfter(a, b *order.Order) bool {
	if a.ReadyAt == nil || b.ReadyAt == nil {
		return false
	}
	return a.ReadyAt.After(*b.ReadyAt)
}

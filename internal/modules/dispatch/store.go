// README: Postgres-backed dispatch store; the claim is one conditional UPDATE.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"antar/internal/modules/order"
	"antar/internal/types"
)

type SQLStore struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *SQLStore {
	return &SQLStore{pool: pool}
}

// Claim assigns the driver iff the order is still ready and unassigned.
// Zero rows means another driver got there first (or the order moved on).
func (s *SQLStore) Claim(ctx context.Context, orderID, driverID types.ID) (*order.Order, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE orders
		SET driver_id = $1,
		    status = 'accepted',
		    status_version = status_version + 1,
		    accepted_at = NOW()
		WHERE id = $2 AND status = 'ready' AND driver_id IS NULL
		RETURNING `+order.Columns,
		string(driverID), string(orderID),
	)
	return scanClaimed(row)
}

// scanClaimed reads the claim's RETURNING row. ScanOrder reports a zero-row
// result as order.ErrNotFound; here that means the conditional write matched
// nothing, which is a lost claim race, not a missing order.
func scanClaimed(row pgx.Row) (*order.Order, error) {
	o, err := order.ScanOrder(row)
	if errors.Is(err, order.ErrNotFound) {
		return nil, ErrAlreadyClaimed
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *SQLStore) GetOrder(ctx context.Context, id types.ID) (*order.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+order.Columns+` FROM orders WHERE id = $1`, string(id))
	return order.ScanOrder(row)
}

// ListReadyByIDs re-filters the geo candidates against the database: only
// rows still ready and unassigned survive. Stale index entries drop out here.
func (s *SQLStore) ListReadyByIDs(ctx context.Context, ids []types.ID) ([]*order.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+order.Columns+`
		FROM orders
		WHERE id = ANY($1) AND status = 'ready' AND driver_id IS NULL`,
		raw,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

// HasActiveDelivery reports whether the driver already owns an in-flight
// order (accepted, pickup, or delivery).
func (s *SQLStore) HasActiveDelivery(ctx context.Context, driverID types.ID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM orders
			WHERE driver_id = $1 AND status IN ('accepted', 'pickup', 'delivery')
		)`,
		string(driverID),
	).Scan(&exists)
	return exists, err
}

// ListStaleReady returns unclaimed orders that went ready before the cutoff.
// Used by the stale-order watchdog.
func (s *SQLStore) ListStaleReady(ctx context.Context, readyBefore time.Time) ([]*order.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+order.Columns+`
		FROM orders
		WHERE status = 'ready' AND driver_id IS NULL AND ready_at < $1
		ORDER BY ready_at ASC`,
		readyBefore,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (s *SQLStore) AppendEvent(ctx context.Context, e *order.Event) error {
	var actorID *string
	if e.ActorID != nil {
		v := string(*e.ActorID)
		actorID = &v
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO order_status_events (order_id, from_status, to_status, actor_role, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.OrderID), string(e.FromStatus), string(e.ToStatus), e.ActorRole, actorID, e.CreatedAt,
	)
	return err
}

func collectOrders(rows pgx.Rows) ([]*order.Order, error) {
	var out []*order.Order
	for rows.Next() {
		o, err := order.ScanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

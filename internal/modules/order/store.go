// README: Order store backed by PostgreSQL; conditional writes only.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"antar/internal/modules/settlement"
	"antar/internal/types"
)

// Columns is the full order column list, shared with the dispatch store.
const Columns = `id, customer_id, merchant_id, driver_id, status, status_version,
       payment_method, subtotal, delivery_fee, service_fee, total_amount,
       pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
       created_at, ready_at, accepted_at, picked_up_at, delivered_at, completed_at, cancelled_at`

type SQLStore struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Create(ctx context.Context, o *Order) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO orders (
			id, customer_id, merchant_id, driver_id, status, status_version,
			payment_method, subtotal, delivery_fee, service_fee, total_amount,
			pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16
		)`,
		string(o.ID),
		string(o.CustomerID),
		string(o.MerchantID),
		idPtr(o.DriverID),
		string(o.Status),
		o.StatusVersion,
		string(o.PaymentMethod),
		o.Subtotal, o.DeliveryFee, o.ServiceFee, o.TotalAmount,
		o.Pickup.Lat, o.Pickup.Lng,
		o.Dropoff.Lat, o.Dropoff.Lng,
		o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+Columns+`
		FROM orders
		WHERE id = $1`, string(id),
	)
	return ScanOrder(row)
}

// UpdateStatus is a compare-and-swap on (status, status_version); zero rows
// affected means the caller raced a concurrent update and gets ErrConflict.
func (s *SQLStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE orders
		SET status = $1,
		    status_version = status_version + 1,
		    ready_at     = CASE WHEN $1 = 'ready'     THEN NOW() ELSE ready_at END,
		    picked_up_at = CASE WHEN $1 = 'pickup'    THEN NOW() ELSE picked_up_at END,
		    delivered_at = CASE WHEN $1 = 'delivery'  THEN NOW() ELSE delivered_at END,
		    cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END
		WHERE id = $2 AND status = $3 AND status_version = $4
		RETURNING `+Columns,
		string(to), string(id), string(from), version,
	)
	o, err := ScanOrder(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrConflict
	}
	return o, err
}

// Complete flips the order to completed and applies the settlement in one
// transaction. The settlements row is keyed unique by order_id, so a retry
// that somehow slips past the status CAS still cannot settle twice.
func (s *SQLStore) Complete(ctx context.Context, o *Order, set settlement.Settlement) (*Order, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin completion tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE orders
		SET status = 'completed',
		    status_version = status_version + 1,
		    completed_at = NOW()
		WHERE id = $1 AND status = $2 AND status_version = $3
		RETURNING `+Columns,
		string(o.ID), string(o.Status), o.StatusVersion,
	)
	updated, err := ScanOrder(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	if updated.DriverID == nil {
		return nil, ErrConsistency
	}
	driverID := *updated.DriverID

	tag, err := tx.Exec(ctx, `
		INSERT INTO settlements (
			id, order_id, driver_id, driver_earning, platform_fee,
			cod_owed_delta, credited_wallet, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (order_id) DO NOTHING`,
		uuid.NewString(), string(updated.ID), string(driverID),
		set.DriverEarning, set.PlatformFee, set.CODOwedDelta, set.CreditWallet,
	)
	if err != nil {
		return nil, fmt.Errorf("insert settlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// A settlement exists for an order that was not completed: the CAS
		// above won, so this record is half-applied. Do not touch it again.
		return nil, ErrConsistency
	}

	if set.CreditWallet && set.DriverEarning > 0 {
		var userID string
		err = tx.QueryRow(ctx, `
			WITH d AS (SELECT user_id FROM drivers WHERE id = $1)
			INSERT INTO wallets (user_id, balance)
			SELECT user_id, $2 FROM d
			ON CONFLICT (user_id) DO UPDATE
				SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()
			RETURNING user_id`,
			string(driverID), set.DriverEarning,
		).Scan(&userID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsistency
		}
		if err != nil {
			return nil, fmt.Errorf("credit driver wallet: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO wallet_ledger (user_id, amount, reason, ref_id)
			VALUES ($1, $2, 'order_settlement', $3)`,
			userID, set.DriverEarning, string(updated.ID),
		)
		if err != nil {
			return nil, fmt.Errorf("append settlement ledger entry: %w", err)
		}
	}

	if set.CODOwedDelta > 0 {
		tag, err := tx.Exec(ctx, `
			UPDATE drivers SET cod_owed = cod_owed + $1 WHERE id = $2`,
			set.CODOwedDelta, string(driverID),
		)
		if err != nil {
			return nil, fmt.Errorf("record cod float: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, ErrConsistency
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit completion tx: %w", err)
	}
	return updated, nil
}

func (s *SQLStore) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO order_status_events (
			order_id, from_status, to_status, actor_role, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.OrderID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorRole,
		idPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

// ScanOrder reads one full order row. Shared with the dispatch store, which
// selects the same column list.
func ScanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var driverID *string
	var readyAt, acceptedAt, pickedUpAt, deliveredAt, completedAt, cancelledAt *time.Time

	err := row.Scan(
		&o.ID, &o.CustomerID, &o.MerchantID, &driverID, &o.Status, &o.StatusVersion,
		&o.PaymentMethod, &o.Subtotal, &o.DeliveryFee, &o.ServiceFee, &o.TotalAmount,
		&o.Pickup.Lat, &o.Pickup.Lng, &o.Dropoff.Lat, &o.Dropoff.Lng,
		&o.CreatedAt, &readyAt, &acceptedAt, &pickedUpAt, &deliveredAt, &completedAt, &cancelledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if driverID != nil {
		d := types.ID(*driverID)
		o.DriverID = &d
	}
	o.ReadyAt = readyAt
	o.AcceptedAt = acceptedAt
	o.PickedUpAt = pickedUpAt
	o.DeliveredAt = deliveredAt
	o.CompletedAt = completedAt
	o.CancelledAt = cancelledAt
	return &o, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

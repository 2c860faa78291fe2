// README: Driver store backed by PostgreSQL.
package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"antar/internal/types"
)

const driverColumns = `id, user_id, status, is_active, vehicle_type, vehicle_plate,
       location_lat, location_lng, cod_owed, created_at, updated_at`

type SQLStore struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Get(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+driverColumns+`
		FROM drivers
		WHERE id = $1`, string(id),
	)
	return scanDriver(row)
}

func (s *SQLStore) GetByUserID(ctx context.Context, userID types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+driverColumns+`
		FROM drivers
		WHERE user_id = $1`, string(userID),
	)
	return scanDriver(row)
}

func (s *SQLStore) SetActive(ctx context.Context, id types.ID, active bool) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers SET is_active = $1, updated_at = NOW() WHERE id = $2`,
		active, string(id),
	)
	if err != nil {
		return fmt.Errorf("set driver availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) UpdateLocation(ctx context.Context, id types.ID, p types.Point) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers SET location_lat = $1, location_lng = $2, updated_at = NOW() WHERE id = $3`,
		p.Lat, p.Lng, string(id),
	)
	if err != nil {
		return fmt.Errorf("update driver location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) SetStatus(ctx context.Context, id types.ID, from, to ApprovalStatus) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		string(to), string(id), string(from),
	)
	if err != nil {
		return fmt.Errorf("set driver status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyReviewed
	}
	return nil
}

func scanDriver(row pgx.Row) (*Driver, error) {
	var d Driver
	err := row.Scan(
		&d.ID, &d.UserID, &d.Status, &d.IsActive, &d.VehicleType, &d.VehiclePlate,
		&d.Location.Lat, &d.Location.Lng, &d.CODOwed, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

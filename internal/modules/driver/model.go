// README: Driver profile, approval status, and COD float counter.
package driver

import (
	"time"

	"antar/internal/types"
)

type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

// Driver is the courier profile. ID is the driver principal used on orders;
// UserID is the underlying account that owns the wallet. CODOwed is the
// running cash float the driver owes the platform from COD deliveries.
type Driver struct {
	ID           types.ID
	UserID       types.ID
	Status       ApprovalStatus
	IsActive     bool
	VehicleType  string
	VehiclePlate string
	Location     types.Point
	CODOwed      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Available reports whether the driver may claim orders.
func (d *Driver) Available() bool {
	return d.Status == StatusApproved && d.IsActive
}

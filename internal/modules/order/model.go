// README: Order aggregate, payment methods, and status definitions.
package order

import (
	"time"

	"antar/internal/types"
)

type Status string

const (
	StatusNone      Status = "none"
	StatusPending   Status = "pending"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusAccepted  Status = "accepted"
	StatusPickup    Status = "pickup"
	StatusDelivery  Status = "delivery"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type PaymentMethod string

const (
	PaymentCOD      PaymentMethod = "cod"
	PaymentWallet   PaymentMethod = "wallet"
	PaymentTransfer PaymentMethod = "transfer"
)

type Order struct {
	ID            types.ID
	CustomerID    types.ID
	MerchantID    types.ID
	DriverID      *types.ID
	Status        Status
	StatusVersion int
	PaymentMethod PaymentMethod
	Subtotal      int64
	DeliveryFee   int64
	ServiceFee    int64
	TotalAmount   int64
	Pickup        types.Point
	Dropoff       types.Point
	CreatedAt     time.Time
	ReadyAt       *time.Time
	AcceptedAt    *time.Time
	PickedUpAt    *time.Time
	DeliveredAt   *time.Time
	CompletedAt   *time.Time
	CancelledAt   *time.Time
}

// Event is one append-only audit row per committed transition.
type Event struct {
	ID         int64
	OrderID    types.ID
	FromStatus Status
	ToStatus   Status
	ActorRole  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the order state flow as code. Cancellation
// is only reachable while no driver is assigned; once accepted the order can
// only move forward.
var AllowedTransitions = map[Status][]Status{
	StatusPending:   {StatusPreparing, StatusReady, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCancelled},
	StatusReady:     {StatusAccepted, StatusCancelled},
	StatusAccepted:  {StatusPickup},
	StatusPickup:    {StatusDelivery},
	StatusDelivery:  {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled
}

// DriverRequired reports whether the status implies an assigned driver
// (the driver_id iff status invariant).
func DriverRequired(s Status) bool {
	switch s {
	case StatusAccepted, StatusPickup, StatusDelivery, StatusCompleted:
		return true
	}
	return false
}

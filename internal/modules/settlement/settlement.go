// README: Settlement math for completed orders; pure computation, applied in the completion tx.
package settlement

import "errors"

var (
	ErrFeeExceedsDelivery = errors.New("service fee exceeds delivery fee")
	ErrNegativeFee        = errors.New("negative fee")
)

type Input struct {
	CashOnDelivery bool
	DeliveryFee    int64
	ServiceFee     int64
	TotalAmount    int64
}

// Settlement describes the money movement for one completed order.
// Exactly one of CreditWallet / CODOwedDelta applies:
//   - non-cash orders credit DriverEarning to the driver's wallet;
//   - COD orders leave the wallet untouched and grow the driver's COD float
//     (the driver holds TotalAmount in cash and owes the platform its fee).
type Settlement struct {
	DriverEarning int64
	PlatformFee   int64
	CODOwedDelta  int64
	CreditWallet  bool
}

func Compute(in Input) (Settlement, error) {
	if in.DeliveryFee < 0 || in.ServiceFee < 0 {
		return Settlement{}, ErrNegativeFee
	}
	if in.ServiceFee > in.DeliveryFee {
		return Settlement{}, ErrFeeExceedsDelivery
	}

	s := Settlement{
		DriverEarning: in.DeliveryFee - in.ServiceFee,
		PlatformFee:   in.ServiceFee,
	}
	if in.CashOnDelivery {
		s.CODOwedDelta = in.ServiceFee
	} else {
		s.CreditWallet = true
	}
	return s, nil
}

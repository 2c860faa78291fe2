// README: Wallet, signed ledger entries, and withdrawal request definitions.
package wallet

import (
	"time"

	"antar/internal/types"
)

// Wallet balances are derived state: the wallet_ledger is the source of
// truth and the audit job cross-checks the two.
type Wallet struct {
	UserID    types.ID
	Balance   int64
	UpdatedAt time.Time
}

// LedgerEntry amounts are signed: credits positive, debits negative.
type LedgerEntry struct {
	ID        int64
	UserID    types.ID
	Amount    int64
	Reason    string
	RefID     *types.ID
	CreatedAt time.Time
}

const (
	ReasonSettlement       = "order_settlement"
	ReasonWithdrawRequest  = "withdrawal_request"
	ReasonWithdrawRejected = "withdrawal_rejected"
)

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

type Withdrawal struct {
	ID              types.ID
	UserID          types.ID
	Amount          int64
	Status          WithdrawalStatus
	BankName        string
	BankAccount     string
	AccountHolder   string
	ProofURL        *string
	RejectionReason *string
	CreatedAt       time.Time
	ResolvedAt      *time.Time
}

// Anomaly is one wallet whose balance disagrees with its ledger sum.
type Anomaly struct {
	UserID    types.ID
	Balance   int64
	LedgerSum int64
}

// README: Wallet service; withdrawal request/resolution rules and notifications.
package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"antar/internal/notify"
	"antar/internal/types"
)

var (
	ErrNotFound            = errors.New("wallet not found")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyResolved     = errors.New("withdrawal already resolved")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrReasonRequired      = errors.New("rejection reason required")
	// ErrConsistency marks an anomaly the conditional writes should have made
	// impossible; callers surface it as an internal error.
	ErrConsistency = errors.New("wallet state inconsistent")
)

type Store interface {
	GetWallet(ctx context.Context, userID types.ID) (*Wallet, error)
	ListLedger(ctx context.Context, userID types.ID, limit int) ([]*LedgerEntry, error)
	// RequestWithdrawal debits the balance and records the pending withdrawal
	// atomically; the debit only applies while balance >= amount.
	RequestWithdrawal(ctx context.Context, w *Withdrawal) error
	GetWithdrawal(ctx context.Context, id types.ID) (*Withdrawal, error)
	ListWithdrawals(ctx context.Context, status WithdrawalStatus) ([]*Withdrawal, error)
	// ResolveWithdrawal flips pending to approved/rejected exactly once and,
	// on rejection, restores the held amount.
	ResolveWithdrawal(ctx context.Context, id types.ID, status WithdrawalStatus, proofURL, reason *string) (*Withdrawal, error)
	AuditWallets(ctx context.Context) ([]Anomaly, error)
}

type Service struct {
	store   Store
	emitter notify.Emitter
}

func NewService(store Store, emitter notify.Emitter) *Service {
	if emitter == nil {
		emitter = notify.Nop{}
	}
	return &Service{store: store, emitter: emitter}
}

// Balance returns the wallet, or a zero-balance wallet when the user has
// never been credited.
func (s *Service) Balance(ctx context.Context, userID types.ID) (*Wallet, error) {
	w, err := s.store.GetWallet(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return &Wallet{UserID: userID}, nil
	}
	return w, err
}

func (s *Service) Ledger(ctx context.Context, userID types.ID, limit int) ([]*LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListLedger(ctx, userID, limit)
}

type WithdrawCommand struct {
	Actor         types.Actor
	Amount        int64
	BankName      string
	BankAccount   string
	AccountHolder string
}

// RequestWithdrawal holds the amount immediately: the balance is debited up
// front so a user cannot queue overlapping withdrawals against the same funds.
func (s *Service) RequestWithdrawal(ctx context.Context, cmd WithdrawCommand) (*Withdrawal, error) {
	if cmd.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if cmd.BankName == "" || cmd.BankAccount == "" {
		return nil, ErrInvalidAmount
	}

	w := &Withdrawal{
		ID:            types.ID(uuid.NewString()),
		UserID:        cmd.Actor.ID,
		Amount:        cmd.Amount,
		Status:        WithdrawalPending,
		BankName:      cmd.BankName,
		BankAccount:   cmd.BankAccount,
		AccountHolder: cmd.AccountHolder,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.RequestWithdrawal(ctx, w); err != nil {
		return nil, err
	}

	s.emitter.Notify(w.UserID, notify.KindWithdrawal, map[string]any{
		"withdrawal_id": w.ID,
		"amount":        w.Amount,
		"status":        w.Status,
	})
	return w, nil
}

func (s *Service) Withdrawal(ctx context.Context, actor types.Actor, id types.ID) (*Withdrawal, error) {
	w, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Is(types.RoleAdmin) && w.UserID != actor.ID {
		return nil, ErrNotAuthorized
	}
	return w, nil
}

func (s *Service) PendingWithdrawals(ctx context.Context, actor types.Actor) ([]*Withdrawal, error) {
	if !actor.Is(types.RoleAdmin) {
		return nil, ErrNotAuthorized
	}
	return s.store.ListWithdrawals(ctx, WithdrawalPending)
}

type ResolveCommand struct {
	Actor        types.Actor
	WithdrawalID types.ID
	Approve      bool
	ProofURL     string
	Reason       string
}

// Resolve approves or rejects a pending withdrawal. Rejection restores the
// held amount; approval records the transfer proof. Either way the decision
// lands exactly once.
func (s *Service) Resolve(ctx context.Context, cmd ResolveCommand) (*Withdrawal, error) {
	if !cmd.Actor.Is(types.RoleAdmin) {
		return nil, ErrNotAuthorized
	}

	var (
		status WithdrawalStatus
		proof  *string
		reason *string
	)
	if cmd.Approve {
		status = WithdrawalApproved
		if cmd.ProofURL != "" {
			proof = &cmd.ProofURL
		}
	} else {
		if cmd.Reason == "" {
			return nil, ErrReasonRequired
		}
		status = WithdrawalRejected
		reason = &cmd.Reason
	}

	w, err := s.store.ResolveWithdrawal(ctx, cmd.WithdrawalID, status, proof, reason)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"withdrawal_id": w.ID,
		"amount":        w.Amount,
		"status":        w.Status,
	}
	if w.RejectionReason != nil {
		payload["reason"] = *w.RejectionReason
	}
	s.emitter.Notify(w.UserID, notify.KindWithdrawal, payload)
	return w, nil
}

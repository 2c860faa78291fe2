// README: Postgres wallet store; conditional debits and one-shot resolution.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"antar/internal/types"
)

const withdrawalColumns = `id, user_id, amount, status, bank_name, bank_account,
       account_holder, proof_url, rejection_reason, created_at, resolved_at`

type SQLStore struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *SQLStore {
	return &SQLStore{pool: pool}
}

func (s *SQLStore) GetWallet(ctx context.Context, userID types.ID) (*Wallet, error) {
	var w Wallet
	var uid string
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, balance, updated_at FROM wallets WHERE user_id = $1`,
		string(userID),
	).Scan(&uid, &w.Balance, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	w.UserID = types.ID(uid)
	return &w, nil
}

func (s *SQLStore) ListLedger(ctx context.Context, userID types.ID, limit int) ([]*LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, amount, reason, ref_id, created_at
		FROM wallet_ledger
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2`,
		string(userID), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var uid string
		var refID *string
		if err := rows.Scan(&e.ID, &uid, &e.Amount, &e.Reason, &refID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.UserID = types.ID(uid)
		if refID != nil {
			v := types.ID(*refID)
			e.RefID = &v
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// RequestWithdrawal runs the hold as one transaction: conditional debit,
// withdrawal row, ledger entry. The debit's WHERE clause is the overdraft
// guard; zero rows means either no wallet or not enough balance.
func (s *SQLStore) RequestWithdrawal(ctx context.Context, w *Withdrawal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE wallets
		SET balance = balance - $1, updated_at = NOW()
		WHERE user_id = $2 AND balance >= $1`,
		w.Amount, string(w.UserID),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM wallets WHERE user_id = $1)`,
			string(w.UserID),
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrInsufficientBalance
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO withdrawals (id, user_id, amount, status, bank_name, bank_account, account_holder, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(w.ID), string(w.UserID), w.Amount, string(w.Status),
		w.BankName, w.BankAccount, w.AccountHolder, w.CreatedAt,
	); err != nil {
		return err
	}

	refID := string(w.ID)
	if _, err := tx.Exec(ctx, `
		INSERT INTO wallet_ledger (user_id, amount, reason, ref_id)
		VALUES ($1, $2, $3, $4)`,
		string(w.UserID), -w.Amount, ReasonWithdrawRequest, refID,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *SQLStore) GetWithdrawal(ctx context.Context, id types.ID) (*Withdrawal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, string(id))
	w, err := scanWithdrawal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return w, err
}

func (s *SQLStore) ListWithdrawals(ctx context.Context, status WithdrawalStatus) ([]*Withdrawal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawals
		WHERE status = $1
		ORDER BY created_at ASC`,
		string(status),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ResolveWithdrawal flips the pending row exactly once. Rejection re-credits
// the wallet inside the same transaction, so the hold and its release can
// never be observed half-applied.
func (s *SQLStore) ResolveWithdrawal(ctx context.Context, id types.ID, status WithdrawalStatus, proofURL, reason *string) (*Withdrawal, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE withdrawals
		SET status = $2, proof_url = $3, rejection_reason = $4, resolved_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+withdrawalColumns,
		string(id), string(status), proofURL, reason,
	)
	w, err := scanWithdrawal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race or never existed; look again to tell which.
		if _, gerr := s.GetWithdrawal(ctx, id); errors.Is(gerr, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrAlreadyResolved
	}
	if err != nil {
		return nil, err
	}

	if status == WithdrawalRejected {
		tag, err := tx.Exec(ctx, `
			UPDATE wallets
			SET balance = balance + $1, updated_at = NOW()
			WHERE user_id = $2`,
			w.Amount, string(w.UserID),
		)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("%w: wallet missing for withdrawal %s", ErrConsistency, w.ID)
		}
		refID := string(w.ID)
		if _, err := tx.Exec(ctx, `
			INSERT INTO wallet_ledger (user_id, amount, reason, ref_id)
			VALUES ($1, $2, $3, $4)`,
			string(w.UserID), w.Amount, ReasonWithdrawRejected, refID,
		); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// AuditWallets reports wallets whose balance no longer equals the sum of
// their ledger entries.
func (s *SQLStore) AuditWallets(ctx context.Context) ([]Anomaly, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT w.user_id, w.balance, COALESCE(SUM(l.amount), 0) AS ledger_sum
		FROM wallets w
		LEFT JOIN wallet_ledger l ON l.user_id = w.user_id
		GROUP BY w.user_id, w.balance
		HAVING w.balance <> COALESCE(SUM(l.amount), 0)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Anomaly
	for rows.Next() {
		var a Anomaly
		var uid string
		if err := rows.Scan(&uid, &a.Balance, &a.LedgerSum); err != nil {
			return nil, err
		}
		a.UserID = types.ID(uid)
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanWithdrawal(row pgx.Row) (*Withdrawal, error) {
	var w Withdrawal
	var id, uid, status string
	var proofURL, reason *string
	var resolvedAt *time.Time
	err := row.Scan(&id, &uid, &w.Amount, &status, &w.BankName, &w.BankAccount,
		&w.AccountHolder, &proofURL, &reason, &w.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	w.ID = types.ID(id)
	w.UserID = types.ID(uid)
	w.Status = WithdrawalStatus(status)
	w.ProofURL = proofURL
	w.RejectionReason = reason
	w.ResolvedAt = resolvedAt
	return &w, nil
}

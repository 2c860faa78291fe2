// README: DB-backed store tests (run with -race against ANTAR_TEST_DSN).
package order

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"antar/internal/modules/settlement"
	"antar/internal/types"
)

func setupTestStore(t *testing.T) (*SQLStore, *pgxpool.Pool) {
	t.Helper()

	dsn := os.Getenv("ANTAR_TEST_DSN")
	if dsn == "" {
		t.Skip("ANTAR_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Exec(ctx, `TRUNCATE TABLE
		order_status_events, settlements, wallet_ledger, withdrawals, wallets, orders, drivers`); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}

	return NewStore(db), db
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(filepath.Join(root, "migrations", "0001_init.sql"))
	if err != nil {
		return err
	}
	for _, stmt := range splitSQL(stripSQLComments(string(content))) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}

func seedDriverRow(t *testing.T, db *pgxpool.Pool, id, userID string) {
	t.Helper()
	_, err := db.Exec(context.Background(), `
		INSERT INTO drivers (id, user_id, status, is_active)
		VALUES ($1, $2, 'approved', TRUE)`, id, userID)
	if err != nil {
		t.Fatalf("seed driver: %v", err)
	}
}

func seedOrderRow(t *testing.T, store *SQLStore, driverID *types.ID, status Status, version int) *Order {
	t.Helper()
	o := &Order{
		ID:            types.ID("o_" + string(status) + "_" + time.Now().Format("150405.000000000")),
		CustomerID:    "c1",
		MerchantID:    "m1",
		Status:        StatusPending,
		PaymentMethod: PaymentWallet,
		Subtotal:      50000,
		DeliveryFee:   10000,
		ServiceFee:    1000,
		TotalAmount:   60000,
		CreatedAt:     time.Now().UTC(),
	}
	if err := store.Create(context.Background(), o); err != nil {
		t.Fatalf("create order: %v", err)
	}
	_, err := store.db.Exec(context.Background(), `
		UPDATE orders SET status = $1, status_version = $2, driver_id = $3 WHERE id = $4`,
		string(status), version, idPtr(driverID), string(o.ID))
	if err != nil {
		t.Fatalf("seed order state: %v", err)
	}
	o.Status = status
	o.StatusVersion = version
	o.DriverID = driverID
	return o
}

func TestStoreUpdateStatusCAS(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	o := seedOrderRow(t, store, nil, StatusPending, 0)

	updated, err := store.UpdateStatus(ctx, o.ID, StatusPending, StatusPreparing, 0)
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	if updated.Status != StatusPreparing || updated.StatusVersion != 1 {
		t.Fatalf("got status=%s version=%d", updated.Status, updated.StatusVersion)
	}

	// Stale version loses.
	if _, err := store.UpdateStatus(ctx, o.ID, StatusPending, StatusReady, 0); err != ErrConflict {
		t.Fatalf("stale update err = %v, want ErrConflict", err)
	}
}

func TestStoreCompleteCreditsWalletOnce(t *testing.T) {
	store, db := setupTestStore(t)
	ctx := context.Background()

	seedDriverRow(t, db, "d1", "u1")
	driverID := types.ID("d1")
	o := seedOrderRow(t, store, &driverID, StatusDelivery, 4)

	set := settlement.Settlement{DriverEarning: 9000, PlatformFee: 1000, CreditWallet: true}

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Complete(ctx, o, set)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
		} else if err != ErrConflict {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("completions = %d, want exactly 1", success)
	}

	var balance int64
	if err := db.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = 'u1'`).Scan(&balance); err != nil {
		t.Fatalf("read wallet: %v", err)
	}
	if balance != 9000 {
		t.Fatalf("balance = %d, want 9000", balance)
	}

	var settlements int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM settlements WHERE order_id = $1`, string(o.ID)).Scan(&settlements); err != nil {
		t.Fatalf("count settlements: %v", err)
	}
	if settlements != 1 {
		t.Fatalf("settlement rows = %d, want 1", settlements)
	}
}

func TestStoreCompleteRecordsCODFloat(t *testing.T) {
	store, db := setupTestStore(t)
	ctx := context.Background()

	seedDriverRow(t, db, "d2", "u2")
	driverID := types.ID("d2")
	o := seedOrderRow(t, store, &driverID, StatusDelivery, 4)

	set := settlement.Settlement{DriverEarning: 9000, PlatformFee: 1000, CODOwedDelta: 1000}
	if _, err := store.Complete(ctx, o, set); err != nil {
		t.Fatalf("complete: %v", err)
	}

	var codOwed int64
	if err := db.QueryRow(ctx, `SELECT cod_owed FROM drivers WHERE id = 'd2'`).Scan(&codOwed); err != nil {
		t.Fatalf("read driver: %v", err)
	}
	if codOwed != 1000 {
		t.Fatalf("cod_owed = %d, want 1000", codOwed)
	}

	var walletRows int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM wallets WHERE user_id = 'u2'`).Scan(&walletRows); err != nil {
		t.Fatalf("count wallets: %v", err)
	}
	if walletRows != 0 {
		t.Fatal("COD completion must not touch the wallet")
	}
}

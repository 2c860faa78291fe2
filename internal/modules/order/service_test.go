// README: Lifecycle engine tests (flow, authorization, settlement, races).
package order

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"antar/internal/types"
)

var (
	actCustomer = types.Actor{ID: "c1", Role: types.RoleCustomer}
	actMerchant = types.Actor{ID: "m1", Role: types.RoleMerchant}
	actDriver   = types.Actor{ID: "d1", Role: types.RoleDriver}
	actAdmin    = types.Actor{ID: "adm", Role: types.RoleAdmin}
)

func newTestService() (*Service, *memStore) {
	st := newMemStore()
	return NewService(st, nil, nil), st
}

func mustCreateOrder(t *testing.T, svc *Service, pm PaymentMethod) *Order {
	t.Helper()
	o, err := svc.Create(context.Background(), CreateCommand{
		Actor:         actCustomer,
		MerchantID:    actMerchant.ID,
		PaymentMethod: pm,
		Subtotal:      50000,
		DeliveryFee:   10000,
		ServiceFee:    1000,
		Pickup:        types.Point{Lat: -6.2000, Lng: 106.8166},
		Dropoff:       types.Point{Lat: -6.2607, Lng: 106.7816},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func mustAdvance(t *testing.T, svc *Service, id types.ID, actor types.Actor, target Status) *Order {
	t.Helper()
	o, err := svc.Advance(context.Background(), AdvanceCommand{OrderID: id, Actor: actor, Target: target})
	if err != nil {
		t.Fatalf("advance to %s: %v", target, err)
	}
	return o
}

func assertStatus(t *testing.T, svc *Service, id types.ID, want Status) {
	t.Helper()
	o, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if o.Status != want {
		t.Fatalf("status = %s, want %s", o.Status, want)
	}
}

func pendingOrder(svc *Service, _ *memStore) types.ID {
	o, err := svc.Create(context.Background(), CreateCommand{
		Actor:         actCustomer,
		MerchantID:    actMerchant.ID,
		PaymentMethod: PaymentWallet,
		Subtotal:      30000,
		DeliveryFee:   9000,
		ServiceFee:    900,
	})
	if err != nil {
		panic(err)
	}
	return o.ID
}

func readyOrder(svc *Service, st *memStore) types.ID {
	id := pendingOrder(svc, st)
	_, err := svc.Advance(context.Background(), AdvanceCommand{OrderID: id, Actor: actMerchant, Target: StatusReady})
	if err != nil {
		panic(err)
	}
	return id
}

// failingEventStore refuses history writes. The lifecycle must keep moving:
// events are best effort once the transition has committed.
type failingEventStore struct{ *memStore }

func (failingEventStore) AppendEvent(context.Context, *Event) error {
	return errors.New("events table unavailable")
}

func TestLifecycleSurvivesEventWriteFailure(t *testing.T) {
	st := newMemStore()
	svc := NewService(failingEventStore{st}, nil, nil)

	o := mustCreateOrder(t, svc, PaymentWallet)
	assertStatus(t, svc, o.ID, StatusPending)

	mustAdvance(t, svc, o.ID, actMerchant, StatusPreparing)
	mustAdvance(t, svc, o.ID, actMerchant, StatusReady)
	assertStatus(t, svc, o.ID, StatusReady)

	if len(st.events) != 0 {
		t.Fatalf("expected no recorded events, got %d", len(st.events))
	}
}

func TestOrderFlowHappyPath(t *testing.T) {
	svc, st := newTestService()

	o := mustCreateOrder(t, svc, PaymentWallet)
	assertStatus(t, svc, o.ID, StatusPending)

	mustAdvance(t, svc, o.ID, actMerchant, StatusPreparing)
	mustAdvance(t, svc, o.ID, actMerchant, StatusReady)
	assertStatus(t, svc, o.ID, StatusReady)

	if !st.claim(o.ID, actDriver.ID) {
		t.Fatal("claim failed on ready order")
	}

	mustAdvance(t, svc, o.ID, actDriver, StatusPickup)
	mustAdvance(t, svc, o.ID, actDriver, StatusDelivery)
	done := mustAdvance(t, svc, o.ID, actDriver, StatusCompleted)

	if done.CompletedAt == nil || done.PickedUpAt == nil || done.DeliveredAt == nil || done.ReadyAt == nil {
		t.Fatal("expected all transition timestamps to be stamped")
	}
	if done.DriverID == nil || *done.DriverID != actDriver.ID {
		t.Fatalf("driver_id = %v, want %s", done.DriverID, actDriver.ID)
	}
	if n := st.settlements(o.ID); n != 1 {
		t.Fatalf("settlement applied %d times, want 1", n)
	}
}

// Scenario: wallet-paid order with delivery_fee=10000, service_fee=1000 →
// driver wallet credited exactly 9000, COD float untouched.
func TestCompletionSettlesWalletPayment(t *testing.T) {
	svc, st := newTestService()
	o := mustCreateOrder(t, svc, PaymentWallet)
	mustAdvance(t, svc, o.ID, actMerchant, StatusReady)
	st.claim(o.ID, actDriver.ID)
	mustAdvance(t, svc, o.ID, actDriver, StatusPickup)
	mustAdvance(t, svc, o.ID, actDriver, StatusDelivery)
	mustAdvance(t, svc, o.ID, actDriver, StatusCompleted)

	if got := st.walletBalance(actDriver.ID); got != 9000 {
		t.Fatalf("driver wallet = %d, want 9000", got)
	}
	if got := st.codOwedFor(actDriver.ID); got != 0 {
		t.Fatalf("cod_owed = %d, want 0", got)
	}
}

// Scenario: same order paid COD → wallet unchanged, cod_owed grows by the
// platform fee the driver now holds in cash.
func TestCompletionSettlesCOD(t *testing.T) {
	svc, st := newTestService()
	o := mustCreateOrder(t, svc, PaymentCOD)
	mustAdvance(t, svc, o.ID, actMerchant, StatusReady)
	st.claim(o.ID, actDriver.ID)
	mustAdvance(t, svc, o.ID, actDriver, StatusPickup)
	mustAdvance(t, svc, o.ID, actDriver, StatusDelivery)
	mustAdvance(t, svc, o.ID, actDriver, StatusCompleted)

	if got := st.walletBalance(actDriver.ID); got != 0 {
		t.Fatalf("driver wallet = %d, want 0", got)
	}
	if got := st.codOwedFor(actDriver.ID); got != 1000 {
		t.Fatalf("cod_owed = %d, want 1000", got)
	}
}

// A retried advance with the same target is a no-op returning the current
// order, never a second settlement.
func TestAdvanceIdempotentRetry(t *testing.T) {
	svc, st := newTestService()
	o := mustCreateOrder(t, svc, PaymentWallet)
	mustAdvance(t, svc, o.ID, actMerchant, StatusReady)
	st.claim(o.ID, actDriver.ID)
	mustAdvance(t, svc, o.ID, actDriver, StatusPickup)
	mustAdvance(t, svc, o.ID, actDriver, StatusDelivery)

	first := mustAdvance(t, svc, o.ID, actDriver, StatusCompleted)
	second := mustAdvance(t, svc, o.ID, actDriver, StatusCompleted)

	if second.Status != StatusCompleted || second.StatusVersion != first.StatusVersion {
		t.Fatalf("retry changed the order: %+v", second)
	}
	if n := st.settlements(o.ID); n != 1 {
		t.Fatalf("settlement applied %d times, want 1", n)
	}
	if got := st.walletBalance(actDriver.ID); got != 9000 {
		t.Fatalf("driver wallet = %d after retry, want 9000", got)
	}
}

func TestConcurrentCompleteSettlesOnce(t *testing.T) {
	svc, st := newTestService()
	o := mustCreateOrder(t, svc, PaymentWallet)
	mustAdvance(t, svc, o.ID, actMerchant, StatusReady)
	st.claim(o.ID, actDriver.ID)
	mustAdvance(t, svc, o.ID, actDriver, StatusPickup)
	mustAdvance(t, svc, o.ID, actDriver, StatusDelivery)

	const attempts = 8
	errs := make(chan error, attempts)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Advance(context.Background(), AdvanceCommand{
				OrderID: o.ID, Actor: actDriver, Target: StatusCompleted,
			})
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && !errors.Is(err, ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if n := st.settlements(o.ID); n != 1 {
		t.Fatalf("settlement applied %d times, want 1", n)
	}
	if got := st.walletBalance(actDriver.ID); got != 9000 {
		t.Fatalf("driver wallet = %d, want 9000", got)
	}
}

func TestAdvanceAuthorization(t *testing.T) {
	cases := []struct {
		name    string
		prepare func(svc *Service, st *memStore) types.ID
		actor   types.Actor
		target  Status
		wantErr error
	}{
		{
			name:    "customer cannot mark ready",
			prepare: pendingOrder,
			actor:   actCustomer,
			target:  StatusReady,
			wantErr: ErrNotAuthorized,
		},
		{
			name:    "other merchant cannot mark ready",
			prepare: pendingOrder,
			actor:   types.Actor{ID: "m2", Role: types.RoleMerchant},
			target:  StatusReady,
			wantErr: ErrNotAuthorized,
		},
		{
			name:    "driver cannot advance unclaimed order",
			prepare: readyOrder,
			actor:   actDriver,
			target:  StatusPickup,
			wantErr: ErrNotAuthorized,
		},
		{
			name: "unassigned driver cannot advance claimed order",
			prepare: func(svc *Service, st *memStore) types.ID {
				id := readyOrder(svc, st)
				st.claim(id, "d9")
				return id
			},
			actor:   actDriver,
			target:  StatusPickup,
			wantErr: ErrNotAuthorized,
		},
		{
			name: "customer cannot cancel after claim",
			prepare: func(svc *Service, st *memStore) types.ID {
				id := readyOrder(svc, st)
				st.claim(id, actDriver.ID)
				return id
			},
			actor:   actCustomer,
			target:  StatusCancelled,
			wantErr: ErrNotAuthorized,
		},
		{
			name:    "nobody advances into accepted directly",
			prepare: readyOrder,
			actor:   actDriver,
			target:  StatusAccepted,
			wantErr: ErrNotAuthorized,
		},
		{
			name:    "admin can cancel before claim",
			prepare: readyOrder,
			actor:   actAdmin,
			target:  StatusCancelled,
			wantErr: nil,
		},
		{
			name:    "customer can cancel pending",
			prepare: pendingOrder,
			actor:   actCustomer,
			target:  StatusCancelled,
			wantErr: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, st := newTestService()
			id := tc.prepare(svc, st)
			_, err := svc.Advance(context.Background(), AdvanceCommand{
				OrderID: id, Actor: tc.actor, Target: tc.target,
			})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestAdvanceInvalidTransition(t *testing.T) {
	svc, st := newTestService()
	o := mustCreateOrder(t, svc, PaymentWallet)
	mustAdvance(t, svc, o.ID, actMerchant, StatusReady)
	st.claim(o.ID, actDriver.ID)

	// skipping pickup
	_, err := svc.Advance(context.Background(), AdvanceCommand{OrderID: o.ID, Actor: actDriver, Target: StatusDelivery})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	// backward
	mustAdvance(t, svc, o.ID, actDriver, StatusPickup)
	mustAdvance(t, svc, o.ID, actDriver, StatusDelivery)
	_, err = svc.Advance(context.Background(), AdvanceCommand{OrderID: o.ID, Actor: actDriver, Target: StatusPickup})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestAdvanceNotFound(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Advance(context.Background(), AdvanceCommand{OrderID: "missing", Actor: actAdmin, Target: StatusCancelled})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	base := CreateCommand{
		Actor:         actCustomer,
		MerchantID:    actMerchant.ID,
		PaymentMethod: PaymentCOD,
		Subtotal:      20000,
		DeliveryFee:   8000,
		ServiceFee:    800,
	}

	cmd := base
	cmd.Actor = actDriver
	if _, err := svc.Create(ctx, cmd); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("driver create: err = %v, want ErrNotAuthorized", err)
	}

	cmd = base
	cmd.PaymentMethod = "cheque"
	if _, err := svc.Create(ctx, cmd); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("bad payment method: err = %v, want ErrBadRequest", err)
	}

	cmd = base
	cmd.ServiceFee = 9000
	if _, err := svc.Create(ctx, cmd); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("fee above delivery: err = %v, want ErrBadRequest", err)
	}

	cmd = base
	cmd.Subtotal = -1
	if _, err := svc.Create(ctx, cmd); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("negative subtotal: err = %v, want ErrBadRequest", err)
	}

	o, err := svc.Create(ctx, base)
	if err != nil {
		t.Fatalf("valid create: %v", err)
	}
	if o.TotalAmount != 28000 {
		t.Fatalf("total = %d, want 28000", o.TotalAmount)
	}
}

// Property: over random transition attempts, driver_id is set iff the order
// status implies an assigned driver, and the observed status never moves
// against the transition graph.
func TestDriverAssignmentInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	targets := []Status{StatusPreparing, StatusReady, StatusPickup, StatusDelivery, StatusCompleted, StatusCancelled}
	actors := []types.Actor{actCustomer, actMerchant, actDriver, actAdmin}

	for run := 0; run < 50; run++ {
		svc, st := newTestService()
		o := mustCreateOrder(t, svc, PaymentCOD)

		for step := 0; step < 40; step++ {
			if rng.Intn(4) == 0 {
				st.claim(o.ID, types.ID(fmt.Sprintf("d%d", rng.Intn(3)+1)))
			} else {
				target := targets[rng.Intn(len(targets))]
				actor := actors[rng.Intn(len(actors))]
				if actor.Role == types.RoleDriver {
					cur, _ := svc.Get(context.Background(), o.ID)
					if cur.DriverID != nil {
						actor = types.Actor{ID: *cur.DriverID, Role: types.RoleDriver}
					}
				}
				_, _ = svc.Advance(context.Background(), AdvanceCommand{OrderID: o.ID, Actor: actor, Target: target})
			}

			cur, err := svc.Get(context.Background(), o.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if DriverRequired(cur.Status) != (cur.DriverID != nil) {
				t.Fatalf("run %d step %d: status %s with driver_id %v violates invariant",
					run, step, cur.Status, cur.DriverID)
			}
			if IsTerminal(cur.Status) {
				break
			}
		}
	}
}

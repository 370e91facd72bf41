package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chowdash/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ManualTimeout = 60 * time.Millisecond
	cfg.SessionBudget = time.Hour
	return cfg
}

func pendingOrder(accountName string, total int64, start time.Time) models.Order {
	return models.Order{
		AccountName:        accountName,
		TotalAmount:        total,
		PaymentStatus:      models.PaymentPendingConfirmation,
		CountdownStartedAt: start,
		CreatedAt:          start,
	}
}

func runSession(t *testing.T, cfg Config, store Store, orderID primitive.ObjectID) (Outcome, error) {
	t.Helper()
	s := NewSession(cfg, store, zaptest.NewLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Run(ctx, orderID)
}

func TestScanMatchesExistingAlert(t *testing.T) {
	store := newMemStore()
	start := time.Now()
	order := store.putOrder(pendingOrder("Amaka Eze", 2000, start))
	alert := store.addAlert(models.PaymentAlert{
		Amount:     2000,
		SenderName: "eze amaka",
		ReceivedAt: start.Add(2 * time.Minute),
	})

	outcome, err := runSession(t, testConfig(), store, order.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != OutcomeSuccessful {
		t.Fatalf("outcome = %v, want successful", outcome)
	}

	got := store.alert(alert.ID)
	if got.Processed != models.AlertClaimed || got.ClaimedByOrderID != order.ID {
		t.Fatalf("alert not claimed by order: %+v", got)
	}
	final, _ := store.order(order.ID)
	if final.PaymentStatus != models.PaymentSuccessful || final.MatchedByAlertID != alert.ID {
		t.Fatalf("order not finalized: %+v", final)
	}
}

func TestWrongAmountBecomesRefundCandidate(t *testing.T) {
	store := newMemStore()
	start := time.Now()
	order := store.putOrder(pendingOrder("Amaka Eze", 2000, start))
	alert := store.addAlert(models.PaymentAlert{
		Amount:     1500,
		SenderName: "eze amaka",
		ReceivedAt: start.Add(2 * time.Minute),
	})

	outcome, err := runSession(t, testConfig(), store, order.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != OutcomeRefundRequired {
		t.Fatalf("outcome = %v, want refund_required", outcome)
	}
	final, _ := store.order(order.ID)
	if final.PaymentStatus != models.PaymentRefundRequired || final.RefundCandidateAlertID != alert.ID {
		t.Fatalf("order not marked for refund: %+v", final)
	}
	if !final.MatchedByAlertID.IsZero() {
		t.Fatalf("refund order must not also carry a success reference: %+v", final)
	}
}

func TestLiveAlertResolvesWaitingSession(t *testing.T) {
	store := newMemStore()
	start := time.Now()
	order := store.putOrder(pendingOrder("Amaka Eze", 2000, start))

	cfg := testConfig()
	cfg.ManualTimeout = 2 * time.Second

	done := make(chan struct{})
	var outcome Outcome
	var runErr error
	go func() {
		defer close(done)
		outcome, runErr = runSession(t, cfg, store, order.ID)
	}()

	// Let the session finish its scan and subscribe, then deliver the alert.
	time.Sleep(100 * time.Millisecond)
	store.addAlert(models.PaymentAlert{
		Amount:     2000,
		SenderName: "eze amaka",
		ReceivedAt: time.Now(),
	})

	<-done
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	if outcome != OutcomeSuccessful {
		t.Fatalf("outcome = %v, want successful", outcome)
	}
}

// One alert, many concurrently reconciling orders: exactly one session may
// claim it. The rest run into the manual-verification timeout.
func TestAtMostOneClaim(t *testing.T) {
	store := newMemStore()
	start := time.Now()
	alert := store.addAlert(models.PaymentAlert{
		Amount:     3500,
		SenderName: "okafor chidi",
		ReceivedAt: start,
	})

	const sessions = 8
	orderIDs := make([]primitive.ObjectID, sessions)
	for i := range orderIDs {
		order := store.putOrder(pendingOrder("Chidi Okafor", 3500, start))
		orderIDs[i] = order.ID
	}

	outcomes := make([]Outcome, sessions)
	errs := make([]error, sessions)
	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = runSession(t, testConfig(), store, orderIDs[i])
		}(i)
	}
	wg.Wait()

	var successes, manuals int
	for i := 0; i < sessions; i++ {
		if errs[i] != nil {
			t.Fatalf("session %d: %v", i, errs[i])
		}
		switch outcomes[i] {
		case OutcomeSuccessful:
			successes++
		case OutcomeManualRequired:
			manuals++
		default:
			t.Fatalf("session %d: unexpected outcome %v", i, outcomes[i])
		}
	}
	if successes != 1 {
		t.Fatalf("successes = %d, want exactly 1", successes)
	}
	if manuals != sessions-1 {
		t.Fatalf("manual_required = %d, want %d", manuals, sessions-1)
	}

	claimed := store.alert(alert.ID)
	if claimed.Processed != models.AlertClaimed {
		t.Fatalf("alert processed = %v, want claimed", claimed.Processed)
	}
	var holders int
	for _, id := range orderIDs {
		order, ok := store.order(id)
		if !ok {
			t.Fatalf("order %s missing", id.Hex())
		}
		if order.MatchedByAlertID == alert.ID {
			holders++
			if claimed.ClaimedByOrderID != order.ID {
				t.Fatalf("claim marker disagrees with order reference")
			}
		}
	}
	if holders != 1 {
		t.Fatalf("orders holding the alert = %d, want exactly 1", holders)
	}
}

// After the manual-verification timeout fires, a late matching alert must not
// drag the order back to successful.
func TestManualRequiredIsTerminal(t *testing.T) {
	store := newMemStore()
	start := time.Now()
	order := store.putOrder(pendingOrder("Amaka Eze", 2000, start))

	outcome, err := runSession(t, testConfig(), store, order.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != OutcomeManualRequired {
		t.Fatalf("outcome = %v, want manual_required", outcome)
	}

	late := store.addAlert(models.PaymentAlert{
		Amount:     2000,
		SenderName: "eze amaka",
		ReceivedAt: time.Now(),
	})

	final, _ := store.order(order.ID)
	if final.PaymentStatus != models.PaymentManualRequired {
		t.Fatalf("status = %v, want manual_required", final.PaymentStatus)
	}
	if store.alert(late.ID).Processed != models.AlertUnprocessed {
		t.Fatalf("late alert must stay unclaimed")
	}
}

func TestCancelBeforeAnyMatch(t *testing.T) {
	store := newMemStore()
	order := store.putOrder(pendingOrder("Amaka Eze", 2000, time.Now()))

	cfg := testConfig()
	cfg.ManualTimeout = time.Hour

	s := NewSession(cfg, store, zaptest.NewLogger(t))
	done := make(chan struct{})
	var outcome Outcome
	var runErr error
	go func() {
		defer close(done)
		outcome, runErr = s.Run(context.Background(), order.ID)
	}()

	time.Sleep(100 * time.Millisecond)
	s.Cancel()
	<-done

	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	if outcome != OutcomeCancelled {
		t.Fatalf("outcome = %v, want cancelled", outcome)
	}
	if !store.isArchived(order.ID) {
		t.Fatalf("cancelled order must be archived")
	}
	if _, live := store.order(order.ID); live {
		t.Fatalf("cancelled order must leave the live collection")
	}
}

// Cancellation landing while the initial scan is still in flight must not
// strand the order: the scan's context error is not surfaced, the order is
// archived as cancelled like any other cancellation.
func TestCancelDuringScanStillArchives(t *testing.T) {
	store := newMemStore()
	store.blockScan = true
	order := store.putOrder(pendingOrder("Amaka Eze", 2000, time.Now()))

	s := NewSession(testConfig(), store, zaptest.NewLogger(t))
	done := make(chan struct{})
	var outcome Outcome
	var runErr error
	go func() {
		defer close(done)
		outcome, runErr = s.Run(context.Background(), order.ID)
	}()

	time.Sleep(50 * time.Millisecond)
	s.Cancel()
	<-done

	if runErr != nil {
		t.Fatalf("Run returned error on user cancellation: %v", runErr)
	}
	if outcome != OutcomeCancelled {
		t.Fatalf("outcome = %v, want cancelled", outcome)
	}
	if !store.isArchived(order.ID) {
		t.Fatalf("cancelled order must be archived")
	}
	if _, live := store.order(order.ID); live {
		t.Fatalf("cancelled order must leave the live collection")
	}
}

// Cancellation racing a matching alert must end in exactly one of two clean
// states: archived with the alert untouched, or matched with no archive.
func TestCancelRaceNeverHalfway(t *testing.T) {
	for i := 0; i < 20; i++ {
		store := newMemStore()
		start := time.Now()
		order := store.putOrder(pendingOrder("Amaka Eze", 2000, start))

		cfg := testConfig()
		cfg.ManualTimeout = time.Hour

		s := NewSession(cfg, store, zaptest.NewLogger(t))
		done := make(chan struct{})
		go func() {
			defer close(done)
			s.Run(context.Background(), order.ID)
		}()

		time.Sleep(20 * time.Millisecond)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.addAlert(models.PaymentAlert{
				Amount:     2000,
				SenderName: "eze amaka",
				ReceivedAt: time.Now(),
			})
		}()
		go func() {
			defer wg.Done()
			s.Cancel()
		}()
		wg.Wait()
		<-done

		archived := store.isArchived(order.ID)
		live, exists := store.order(order.ID)
		matched := exists && live.PaymentStatus == models.PaymentSuccessful

		if archived == matched {
			t.Fatalf("iteration %d: archived=%v matched=%v, want exactly one", i, archived, matched)
		}
		if archived && exists {
			t.Fatalf("iteration %d: order both archived and live", i)
		}
	}
}

// End-to-end duplicate suppression: the second notification of the same
// transfer is swept as a duplicate and a later order cannot claim it.
func TestDuplicateAlertSwept(t *testing.T) {
	store := newMemStore()
	start := time.Now()
	order := store.putOrder(pendingOrder("Amaka Eze", 2000, start))
	first := store.addAlert(models.PaymentAlert{
		Amount:     2000,
		SenderName: "eze amaka",
		ReceivedAt: start.Add(2 * time.Minute),
	})
	second := store.addAlert(models.PaymentAlert{
		Amount:     2000,
		SenderName: "eze amaka",
		ReceivedAt: start.Add(3 * time.Minute),
	})

	outcome, err := runSession(t, testConfig(), store, order.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != OutcomeSuccessful {
		t.Fatalf("outcome = %v, want successful", outcome)
	}

	claimedCount := 0
	for _, id := range []primitive.ObjectID{first.ID, second.ID} {
		a := store.alert(id)
		if a.Processed != models.AlertClaimed {
			t.Fatalf("alert %s processed = %v, want claimed", id.Hex(), a.Processed)
		}
		if a.DuplicateOfAlertID.IsZero() {
			claimedCount++
		} else if a.ClaimedByOrderID != order.ID {
			t.Fatalf("duplicate claimed by wrong order")
		}
	}
	if claimedCount != 1 {
		t.Fatalf("primary claims = %d, want exactly 1", claimedCount)
	}

	// A second order for the same amount must not find anything to claim.
	other := store.putOrder(pendingOrder("Amaka Eze", 2000, start))
	outcome, err = runSession(t, testConfig(), store, other.ID)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if outcome != OutcomeManualRequired {
		t.Fatalf("second order outcome = %v, want manual_required", outcome)
	}
}

func TestStaleAlertMarkedNotApplicable(t *testing.T) {
	store := newMemStore()
	start := time.Now()
	order := store.putOrder(pendingOrder("Amaka Eze", 2000, start))
	stale := store.addAlert(models.PaymentAlert{
		Amount:     2000,
		SenderName: "eze amaka",
		ReceivedAt: start.Add(-40 * time.Minute),
	})

	outcome, err := runSession(t, testConfig(), store, order.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != OutcomeManualRequired {
		t.Fatalf("outcome = %v, want manual_required", outcome)
	}
	if store.alert(stale.ID).Processed != models.AlertNotApplicable {
		t.Fatalf("stale alert must be retired as not applicable")
	}
}

func TestExternalAdminResolutionUnwindsSession(t *testing.T) {
	store := newMemStore()
	order := store.putOrder(pendingOrder("Amaka Eze", 2000, time.Now()))

	cfg := testConfig()
	cfg.ManualTimeout = time.Hour

	done := make(chan struct{})
	var outcome Outcome
	var runErr error
	go func() {
		defer close(done)
		outcome, runErr = runSession(t, cfg, store, order.ID)
	}()

	time.Sleep(100 * time.Millisecond)
	store.adminResolve(order.ID, models.PaymentSuccessful)
	<-done

	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	if outcome != OutcomeSuccessful {
		t.Fatalf("outcome = %v, want successful", outcome)
	}
}

func TestScanFailureSurfacesAndLeavesOrderPending(t *testing.T) {
	store := newMemStore()
	store.scanErr = errors.New("connection reset")
	order := store.putOrder(pendingOrder("Amaka Eze", 2000, time.Now()))

	_, err := runSession(t, testConfig(), store, order.ID)
	if err == nil {
		t.Fatalf("expected scan failure to surface")
	}
	final, _ := store.order(order.ID)
	if final.PaymentStatus != models.PaymentPendingConfirmation {
		t.Fatalf("order must stay pending for retry, got %v", final.PaymentStatus)
	}
}

func TestContradictoryReferencesAreFatal(t *testing.T) {
	store := newMemStore()
	order := pendingOrder("Amaka Eze", 2000, time.Now())
	order.MatchedByAlertID = primitive.NewObjectID()
	order.RefundCandidateAlertID = primitive.NewObjectID()
	saved := store.putOrder(order)

	_, err := runSession(t, testConfig(), store, saved.ID)
	if !errors.Is(err, ErrContradictoryMatch) {
		t.Fatalf("err = %v, want ErrContradictoryMatch", err)
	}
}

func TestSessionBudgetExpiresAndArchives(t *testing.T) {
	store := newMemStore()
	order := store.putOrder(pendingOrder("Amaka Eze", 2000, time.Now()))

	cfg := testConfig()
	cfg.ManualTimeout = time.Hour
	cfg.SessionBudget = 60 * time.Millisecond

	outcome, err := runSession(t, cfg, store, order.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != OutcomeExpired {
		t.Fatalf("outcome = %v, want expired", outcome)
	}
	if !store.isArchived(order.ID) {
		t.Fatalf("expired order must be archived")
	}
}

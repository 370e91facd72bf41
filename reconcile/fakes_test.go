package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"chowdash/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memStore is an in-memory Store with the same first-writer-wins claim and
// snapshot-then-deltas watch semantics as the Mongo implementation. It is the
// concurrency surface the session tests exercise.
type memStore struct {
	mu       sync.Mutex
	alerts   map[primitive.ObjectID]*models.PaymentAlert
	orders   map[primitive.ObjectID]*models.Order
	archived map[primitive.ObjectID]models.ArchivedOrder

	alertSubs map[int]chan models.PaymentAlert
	orderSubs map[int]orderSub
	nextSub   int

	scanErr error

	// blockScan parks Unprocessed until the caller's context dies, to
	// exercise cancellation landing mid-setup.
	blockScan bool
}

type orderSub struct {
	orderID primitive.ObjectID
	ch      chan models.Order
}

func newMemStore() *memStore {
	return &memStore{
		alerts:    make(map[primitive.ObjectID]*models.PaymentAlert),
		orders:    make(map[primitive.ObjectID]*models.Order),
		archived:  make(map[primitive.ObjectID]models.ArchivedOrder),
		alertSubs: make(map[int]chan models.PaymentAlert),
		orderSubs: make(map[int]orderSub),
	}
}

func (m *memStore) putOrder(order models.Order) models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	cp := order
	m.orders[order.ID] = &cp
	return cp
}

// addAlert inserts an alert and publishes it to live subscribers.
func (m *memStore) addAlert(alert models.PaymentAlert) models.PaymentAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	if alert.ID.IsZero() {
		alert.ID = primitive.NewObjectID()
	}
	if alert.Processed == "" {
		alert.Processed = models.AlertUnprocessed
	}
	cp := alert
	m.alerts[alert.ID] = &cp
	for _, ch := range m.alertSubs {
		ch <- cp
	}
	return cp
}

// adminResolve simulates the admin override collaborator.
func (m *memStore) adminResolve(orderID primitive.ObjectID, status models.PaymentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return
	}
	order.PaymentStatus = status
	m.notifyOrderLocked(*order)
}

func (m *memStore) notifyOrderLocked(order models.Order) {
	for _, sub := range m.orderSubs {
		if sub.orderID == order.ID {
			sub.ch <- order
		}
	}
}

func (m *memStore) alert(id primitive.ObjectID) models.PaymentAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.alerts[id]
}

func (m *memStore) order(id primitive.ObjectID) (models.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return models.Order{}, false
	}
	return *order, true
}

func (m *memStore) isArchived(id primitive.ObjectID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.archived[id]
	return ok
}

func (m *memStore) Unprocessed(ctx context.Context) ([]models.PaymentAlert, error) {
	if m.blockScan {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	var out []models.PaymentAlert
	for _, a := range m.alerts {
		if a.Processed == models.AlertUnprocessed {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) UnprocessedByAmount(ctx context.Context, amount int64) ([]models.PaymentAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PaymentAlert
	for _, a := range m.alerts {
		if a.Processed == models.AlertUnprocessed && a.Amount == amount {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) Claim(ctx context.Context, alert models.PaymentAlert, order models.Order, verdict Verdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.alerts[alert.ID]
	if !ok {
		return errors.New("alert not found")
	}
	if current.Processed != models.AlertUnprocessed {
		return ErrAlreadyClaimed
	}
	liveOrder, ok := m.orders[order.ID]
	if !ok || liveOrder.PaymentStatus != models.PaymentPendingConfirmation {
		return ErrOrderNotPending
	}

	now := time.Now()
	current.Processed = models.AlertClaimed
	current.ClaimedByOrderID = order.ID
	current.ClaimedAt = now

	liveOrder.PaymentMatchedAt = now
	switch verdict {
	case VerdictSuccess:
		liveOrder.PaymentStatus = models.PaymentSuccessful
		liveOrder.MatchedByAlertID = alert.ID
	case VerdictRefund:
		liveOrder.PaymentStatus = models.PaymentRefundRequired
		liveOrder.RefundCandidateAlertID = alert.ID
	default:
		return errors.New("verdict is not claimable")
	}
	m.notifyOrderLocked(*liveOrder)
	return nil
}

func (m *memStore) MarkNotApplicable(ctx context.Context, alertID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[alertID]
	if ok && a.Processed == models.AlertUnprocessed {
		a.Processed = models.AlertNotApplicable
	}
	return nil
}

func (m *memStore) MarkDuplicate(ctx context.Context, alertID, claimedAlertID, orderID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[alertID]
	if ok && a.Processed == models.AlertUnprocessed {
		a.Processed = models.AlertClaimed
		a.ClaimedByOrderID = orderID
		a.DuplicateOfAlertID = claimedAlertID
		a.ClaimedAt = time.Now()
	}
	return nil
}

func (m *memStore) WatchAlerts(ctx context.Context) (AlertStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan models.PaymentAlert, 128)
	for _, a := range m.alerts {
		if a.Processed == models.AlertUnprocessed {
			ch <- *a
		}
	}
	id := m.nextSub
	m.nextSub++
	m.alertSubs[id] = ch
	return &memAlertStream{store: m, id: id, ch: ch}, nil
}

func (m *memStore) GetOrder(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return models.Order{}, errors.New("order not found")
	}
	return *order, nil
}

func (m *memStore) TransitionPayment(ctx context.Context, id primitive.ObjectID, to models.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok || order.PaymentStatus != models.PaymentPendingConfirmation {
		return ErrOrderNotPending
	}
	order.PaymentStatus = to
	m.notifyOrderLocked(*order)
	return nil
}

func (m *memStore) Archive(ctx context.Context, id primitive.ObjectID, reason models.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok || order.PaymentStatus != models.PaymentPendingConfirmation {
		return ErrOrderNotPending
	}
	cp := *order
	cp.PaymentStatus = reason
	m.archived[id] = models.ArchivedOrder{Order: cp, Reason: reason, ArchivedAt: time.Now()}
	delete(m.orders, id)
	return nil
}

func (m *memStore) WatchOrder(ctx context.Context, id primitive.ObjectID) (OrderStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan models.Order, 128)
	if order, ok := m.orders[id]; ok {
		ch <- *order
	}
	subID := m.nextSub
	m.nextSub++
	m.orderSubs[subID] = orderSub{orderID: id, ch: ch}
	return &memOrderStream{store: m, id: subID, ch: ch}, nil
}

type memAlertStream struct {
	store *memStore
	id    int
	ch    chan models.PaymentAlert
	once  sync.Once
}

func (s *memAlertStream) Alerts() <-chan models.PaymentAlert { return s.ch }
func (s *memAlertStream) Err() error                         { return nil }
func (s *memAlertStream) Close() {
	s.once.Do(func() {
		s.store.mu.Lock()
		delete(s.store.alertSubs, s.id)
		s.store.mu.Unlock()
		close(s.ch)
	})
}

type memOrderStream struct {
	store *memStore
	id    int
	ch    chan models.Order
	once  sync.Once
}

func (s *memOrderStream) Orders() <-chan models.Order { return s.ch }
func (s *memOrderStream) Err() error                  { return nil }
func (s *memOrderStream) Close() {
	s.once.Do(func() {
		s.store.mu.Lock()
		delete(s.store.orderSubs, s.id)
		s.store.mu.Unlock()
		close(s.ch)
	})
}

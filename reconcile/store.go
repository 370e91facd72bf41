package reconcile

import (
	"context"
	"errors"

	"chowdash/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrAlreadyClaimed is returned when an atomic claim loses the race:
	// another session claimed the alert first.
	ErrAlreadyClaimed = errors.New("payment alert already claimed")
	// ErrOrderNotPending is returned when an order left
	// pending_confirmation before the attempted mutation, e.g. an admin
	// resolved it or a cancellation won.
	ErrOrderNotPending = errors.New("order is not awaiting confirmation")
	// ErrContradictoryMatch flags an order carrying both a success and a
	// refund alert reference. The claim transaction makes this impossible;
	// if it is ever observed it is a data-integrity failure for an
	// administrator, never something to repair in code.
	ErrContradictoryMatch = errors.New("order holds contradictory match references")
)

// AlertStream delivers payment alerts: the current unprocessed set first,
// then every new or updated unprocessed alert, until Close.
type AlertStream interface {
	Alerts() <-chan models.PaymentAlert
	Close()
	Err() error
}

// OrderStream delivers the watched order document: its current state first,
// then every subsequent change, until Close.
type OrderStream interface {
	Orders() <-chan models.Order
	Close()
	Err() error
}

// Store is the document-store contract the reconciliation core runs against:
// point reads and conditional writes, one atomic claim transaction, filtered
// queries and live subscriptions.
type Store interface {
	// Unprocessed returns all alerts still open for claiming.
	Unprocessed(ctx context.Context) ([]models.PaymentAlert, error)
	// UnprocessedByAmount returns open alerts with exactly this amount,
	// used by the duplicate sweep.
	UnprocessedByAmount(ctx context.Context, amount int64) ([]models.PaymentAlert, error)
	// Claim atomically marks the alert claimed by the order and moves the
	// order out of pending_confirmation according to the verdict. The whole
	// operation is first-writer-wins: it fails with ErrAlreadyClaimed when
	// the alert was taken, and with ErrOrderNotPending when the order was
	// resolved elsewhere. Nothing is written in either failure case.
	Claim(ctx context.Context, alert models.PaymentAlert, order models.Order, verdict Verdict) error
	// MarkNotApplicable retires an alert that fell outside the matching
	// window. Only unprocessed alerts are touched.
	MarkNotApplicable(ctx context.Context, alertID primitive.ObjectID) error
	// MarkDuplicate claims an alert as a duplicate notification of an
	// already-claimed transfer. Only unprocessed alerts are touched.
	MarkDuplicate(ctx context.Context, alertID, claimedAlertID, orderID primitive.ObjectID) error
	// WatchAlerts opens a live subscription to unprocessed alerts.
	WatchAlerts(ctx context.Context) (AlertStream, error)

	GetOrder(ctx context.Context, id primitive.ObjectID) (models.Order, error)
	// TransitionPayment conditionally moves the order from
	// pending_confirmation to the given status, failing with
	// ErrOrderNotPending when the order already left that state.
	TransitionPayment(ctx context.Context, id primitive.ObjectID, to models.PaymentStatus) error
	// Archive stamps the order with the given terminal status and moves it
	// to the archive area, provided it is still pending_confirmation.
	Archive(ctx context.Context, id primitive.ObjectID, reason models.PaymentStatus) error
	// WatchOrder opens a live subscription to a single order document.
	WatchOrder(ctx context.Context, id primitive.ObjectID) (OrderStream, error)
}

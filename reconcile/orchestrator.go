package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chowdash/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Outcome is the terminal result of one reconciliation session.
type Outcome string

const (
	OutcomeSuccessful     Outcome = "successful"
	OutcomeRefundRequired Outcome = "refund_required"
	OutcomeManualRequired Outcome = "manual_required"
	OutcomeExpired        Outcome = "expired"
	OutcomeCancelled      Outcome = "cancelled"
	// OutcomeExternal means the order was resolved outside this session,
	// e.g. by an admin override observed through the order watch.
	OutcomeExternal Outcome = "externally_resolved"
)

// Session owns one order's payment confirmation attempt, from the customer's
// "I've paid" action to a terminal payment status. A session scans the open
// alerts once, then listens for new alerts and for out-of-band changes to its
// own order, bounded by the manual-verification timeout and the overall
// session budget. Whichever trigger fires first wins; teardown happens
// exactly once.
type Session struct {
	id      uuid.UUID
	cfg     Config
	store   Store
	matcher *Matcher
	logger  *zap.Logger

	mu            sync.Mutex
	cancelRun     context.CancelFunc
	userCancelled bool
}

// NewSession creates a session for one confirmation attempt.
func NewSession(cfg Config, store Store, logger *zap.Logger) *Session {
	id := uuid.New()
	return &Session{
		id:      id,
		cfg:     cfg,
		store:   store,
		matcher: NewMatcher(cfg, logger),
		logger:  logger.With(zap.String("session", id.String())),
	}
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID { return s.id }

// Cancel aborts the session on behalf of the customer (closing the payment
// dialog). The running session archives the order as cancelled unless a
// match already committed, in which case the match stands.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.userCancelled = true
	cancel := s.cancelRun
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run drives the session to a terminal outcome. Store read failures before
// any subscription is open are returned to the caller so the customer can
// retry; the order stays pending_confirmation and no duplicate is created.
// The exception is a failure caused by Cancel tearing the context down
// mid-setup: that still archives the order as cancelled, so a customer who
// closed the dialog during the initial scan is never left with a live order
// nobody is watching.
func (s *Session) Run(ctx context.Context, orderID primitive.ObjectID) (Outcome, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancelRun = cancel
	alreadyCancelled := s.userCancelled
	s.mu.Unlock()
	if alreadyCancelled {
		return s.finishCancelled(orderID)
	}

	order, err := s.store.GetOrder(runCtx, orderID)
	if err != nil {
		if s.cancelledByUser() {
			return s.finishCancelled(orderID)
		}
		return "", fmt.Errorf("reading order: %w", err)
	}
	if err := checkIntegrity(&order); err != nil {
		s.logger.Error("order holds contradictory match references",
			zap.String("order", orderID.Hex()),
			zap.String("matchedByAlertId", order.MatchedByAlertID.Hex()),
			zap.String("refundCandidateAlertId", order.RefundCandidateAlertID.Hex()))
		return "", err
	}
	if order.PaymentStatus.Terminal() {
		return s.finish(outcomeForStatus(order.PaymentStatus)), nil
	}

	// One-shot pass over the alerts that already arrived.
	open, err := s.store.Unprocessed(runCtx)
	if err != nil {
		if s.cancelledByUser() {
			return s.finishCancelled(orderID)
		}
		return "", fmt.Errorf("scanning alerts: %w", err)
	}
	for i := range open {
		if outcome, done := s.tryMatch(runCtx, &order, &open[i]); done {
			return outcome, nil
		}
	}

	alertStream, err := s.store.WatchAlerts(runCtx)
	if err != nil {
		if s.cancelledByUser() {
			return s.finishCancelled(orderID)
		}
		return "", fmt.Errorf("subscribing to alerts: %w", err)
	}
	defer alertStream.Close()

	orderStream, err := s.store.WatchOrder(runCtx, orderID)
	if err != nil {
		if s.cancelledByUser() {
			return s.finishCancelled(orderID)
		}
		return "", fmt.Errorf("subscribing to order: %w", err)
	}
	defer orderStream.Close()

	manual := time.NewTimer(s.cfg.ManualTimeout)
	defer manual.Stop()
	budget := time.NewTimer(s.cfg.SessionBudget)
	defer budget.Stop()

	alertsCh := alertStream.Alerts()
	ordersCh := orderStream.Orders()

	for {
		select {
		case alert, ok := <-alertsCh:
			if !ok {
				s.logger.Warn("alert stream ended", zap.Error(alertStream.Err()))
				alertsCh = nil
				continue
			}
			if outcome, done := s.tryMatch(runCtx, &order, &alert); done {
				return outcome, nil
			}

		case updated, ok := <-ordersCh:
			if !ok {
				s.logger.Warn("order stream ended", zap.Error(orderStream.Err()))
				ordersCh = nil
				continue
			}
			if err := checkIntegrity(&updated); err != nil {
				s.logger.Error("order holds contradictory match references",
					zap.String("order", orderID.Hex()))
				return "", err
			}
			if updated.PaymentStatus.Terminal() {
				s.logger.Info("order resolved out of band",
					zap.String("paymentStatus", string(updated.PaymentStatus)))
				return s.finish(outcomeForStatus(updated.PaymentStatus)), nil
			}

		case <-manual.C:
			err := s.store.TransitionPayment(runCtx, orderID, models.PaymentManualRequired)
			switch {
			case err == nil:
				return s.finish(OutcomeManualRequired), nil
			case errors.Is(err, ErrOrderNotPending):
				return s.resolveExternally(runCtx, orderID)
			default:
				return "", fmt.Errorf("moving order to manual verification: %w", err)
			}

		case <-budget.C:
			err := s.store.Archive(runCtx, orderID, models.PaymentExpired)
			switch {
			case err == nil:
				return s.finish(OutcomeExpired), nil
			case errors.Is(err, ErrOrderNotPending):
				return s.resolveExternally(runCtx, orderID)
			default:
				return "", fmt.Errorf("expiring order: %w", err)
			}

		case <-runCtx.Done():
			s.mu.Lock()
			user := s.userCancelled
			s.mu.Unlock()
			if !user {
				return "", runCtx.Err()
			}
			return s.finishCancelled(orderID)
		}
	}
}

// tryMatch classifies one alert and, when it is a candidate, attempts the
// atomic claim. The second return value reports whether the session reached
// a terminal outcome. A lost claim race is not retried: the authoritative
// order state is re-read instead.
func (s *Session) tryMatch(ctx context.Context, order *models.Order, alert *models.PaymentAlert) (Outcome, bool) {
	verdict := s.matcher.Classify(order, alert)
	switch verdict {
	case VerdictOutsideWindow:
		if err := s.store.MarkNotApplicable(ctx, alert.ID); err != nil {
			s.logger.Warn("could not retire stale alert",
				zap.String("alert", alert.ID.Hex()), zap.Error(err))
		}
		return "", false
	case VerdictNone:
		return "", false
	}

	err := s.store.Claim(ctx, *alert, *order, verdict)
	switch {
	case err == nil:

	case errors.Is(err, ErrAlreadyClaimed):
		s.logger.Info("alert claimed by another order",
			zap.String("alert", alert.ID.Hex()))
		return s.checkExternal(ctx, order.ID)

	case errors.Is(err, ErrOrderNotPending):
		outcome, _ := s.resolveExternally(ctx, order.ID)
		return outcome, true

	default:
		s.logger.Error("claim transaction failed",
			zap.String("alert", alert.ID.Hex()), zap.Error(err))
		return s.checkExternal(ctx, order.ID)
	}

	s.sweepDuplicates(ctx, order.ID, alert)

	if verdict == VerdictSuccess {
		return s.finish(OutcomeSuccessful), true
	}
	return s.finish(OutcomeRefundRequired), true
}

// sweepDuplicates marks remaining same-amount alerts that look like repeat
// notifications of the claimed transfer, so no later order can claim them.
// Best effort: a failed mark is logged, not fatal.
func (s *Session) sweepDuplicates(ctx context.Context, orderID primitive.ObjectID, claimed *models.PaymentAlert) {
	candidates, err := s.store.UnprocessedByAmount(ctx, claimed.Amount)
	if err != nil {
		s.logger.Warn("duplicate sweep query failed", zap.Error(err))
		return
	}
	for i := range candidates {
		candidate := &candidates[i]
		if candidate.ID == claimed.ID || !s.matcher.IsDuplicate(claimed, candidate) {
			continue
		}
		if err := s.store.MarkDuplicate(ctx, candidate.ID, claimed.ID, orderID); err != nil {
			s.logger.Warn("could not mark duplicate alert",
				zap.String("alert", candidate.ID.Hex()), zap.Error(err))
			continue
		}
		s.logger.Info("duplicate alert swept",
			zap.String("alert", candidate.ID.Hex()),
			zap.String("duplicateOf", claimed.ID.Hex()))
	}
}

// checkExternal re-reads the order after a lost race. Terminal state means
// someone else finished the job; anything else keeps the session waiting.
func (s *Session) checkExternal(ctx context.Context, orderID primitive.ObjectID) (Outcome, bool) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		s.logger.Warn("re-reading order after lost race", zap.Error(err))
		return "", false
	}
	if order.PaymentStatus.Terminal() {
		return s.finish(outcomeForStatus(order.PaymentStatus)), true
	}
	return "", false
}

// resolveExternally reports the order's authoritative state when this
// session's own transition lost to another writer.
func (s *Session) resolveExternally(ctx context.Context, orderID primitive.ObjectID) (Outcome, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		// The order may have been archived out from under us.
		s.logger.Warn("order unreadable after lost transition", zap.Error(err))
		return s.finish(OutcomeExternal), nil
	}
	return s.finish(outcomeForStatus(order.PaymentStatus)), nil
}

// finishCancelled archives the order as cancelled, unless a claim has
// already committed, in which case the match stands and is reported. Runs on
// a fresh context because the session context is already torn down.
func (s *Session) finishCancelled(orderID primitive.ObjectID) (Outcome, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.store.Archive(ctx, orderID, models.PaymentCancelled)
	switch {
	case err == nil:
		return s.finish(OutcomeCancelled), nil
	case errors.Is(err, ErrOrderNotPending):
		return s.resolveExternally(ctx, orderID)
	default:
		return "", fmt.Errorf("archiving cancelled order: %w", err)
	}
}

func (s *Session) cancelledByUser() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userCancelled
}

func (s *Session) finish(outcome Outcome) Outcome {
	outcomesTotal.WithLabelValues(string(outcome)).Inc()
	s.logger.Info("reconciliation finished", zap.String("outcome", string(outcome)))
	return outcome
}

func checkIntegrity(order *models.Order) error {
	if !order.MatchedByAlertID.IsZero() && !order.RefundCandidateAlertID.IsZero() {
		return ErrContradictoryMatch
	}
	return nil
}

func outcomeForStatus(status models.PaymentStatus) Outcome {
	switch status {
	case models.PaymentSuccessful:
		return OutcomeSuccessful
	case models.PaymentRefundRequired:
		return OutcomeRefundRequired
	case models.PaymentManualRequired:
		return OutcomeManualRequired
	case models.PaymentExpired:
		return OutcomeExpired
	case models.PaymentCancelled:
		return OutcomeCancelled
	default:
		return OutcomeExternal
	}
}

package reconcile

import "time"

// Config holds the reconciliation policy knobs. The durations are policy,
// not invariants: deployments tune them without touching the matching logic.
type Config struct {
	// MatchWindow is how far an alert's timestamp may sit from the order's
	// countdown start and still be considered the same transfer.
	MatchWindow time.Duration
	// ManualTimeout is how long a session waits for a match before handing
	// the order to manual verification.
	ManualTimeout time.Duration
	// SessionBudget is the total lifetime of a confirmation attempt. An
	// order still unresolved when it elapses is expired and archived.
	SessionBudget time.Duration
	// AmountTolerance absorbs currency rounding between the declared total
	// and the alert amount, in whole naira.
	AmountTolerance int64
	// DuplicateWindow is the timestamp proximity under which a same-amount
	// alert is swept as a duplicate notification of a claimed transfer.
	DuplicateWindow time.Duration
}

// DefaultConfig returns the production policy.
func DefaultConfig() Config {
	return Config{
		MatchWindow:     30 * time.Minute,
		ManualTimeout:   5 * time.Minute,
		SessionBudget:   30 * time.Minute,
		AmountTolerance: 1,
		DuplicateWindow: 5 * time.Minute,
	}
}

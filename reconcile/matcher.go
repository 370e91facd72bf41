package reconcile

import (
	"strings"
	"unicode"

	"chowdash/models"

	"go.uber.org/zap"
)

// Verdict is the Matcher's classification of one alert against one order.
type Verdict int

const (
	// VerdictNone means the alert is unrelated to the order.
	VerdictNone Verdict = iota
	// VerdictSuccess means payer name, time window and amount all match.
	VerdictSuccess
	// VerdictRefund means the payer matches inside the window but the
	// amount does not: money arrived and has to be sent back.
	VerdictRefund
	// VerdictOutsideWindow means the alert is temporally implausible for
	// this order and should be marked not applicable.
	VerdictOutsideWindow
)

func (v Verdict) String() string {
	switch v {
	case VerdictSuccess:
		return "success"
	case VerdictRefund:
		return "refund"
	case VerdictOutsideWindow:
		return "outside_window"
	default:
		return "none"
	}
}

// Matcher decides whether a payment alert corresponds to an order's declared
// bank transfer.
type Matcher struct {
	cfg    Config
	logger *zap.Logger
}

// NewMatcher creates a Matcher with the given policy.
func NewMatcher(cfg Config, logger *zap.Logger) *Matcher {
	return &Matcher{cfg: cfg, logger: logger}
}

// NormalizeName lowercases a payer name, collapses internal whitespace and
// trims it, so that bank-notification spellings compare loosely.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// namesMatch tolerates partial, reordered and abbreviated sender names from
// bank notifications: either normalized string containing the other counts,
// and so does one name's word set being contained in the other's (compared
// without punctuation, so "John A. Doe" still matches "doe john a").
func namesMatch(declared, sender string) bool {
	a := NormalizeName(declared)
	b := NormalizeName(sender)
	if a == "" || b == "" {
		return false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	ta := nameTokens(a)
	tb := nameTokens(b)
	return tokensSubset(ta, tb) || tokensSubset(tb, ta)
}

// nameTokens splits a normalized name into words stripped of punctuation.
func nameTokens(s string) []string {
	var tokens []string
	for _, field := range strings.Fields(s) {
		token := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, field)
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

func tokensSubset(sub, super []string) bool {
	if len(sub) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(super))
	for _, t := range super {
		set[t] = struct{}{}
	}
	for _, t := range sub {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

// Classify applies the matching rule to one alert. An earlier gateway-based
// build of this flow also compared account number and bank name as alternate
// signals; this implementation deliberately follows the manual-transfer flow,
// which matches on name, time window and amount only.
func (m *Matcher) Classify(order *models.Order, alert *models.PaymentAlert) Verdict {
	delta := alert.ReceivedAt.Sub(order.CountdownStartedAt)
	if delta < 0 {
		delta = -delta
	}
	if delta > m.cfg.MatchWindow {
		return VerdictOutsideWindow
	}

	sender := alert.SenderName
	if sender == "" {
		sender = alert.Narration
	}
	if !namesMatch(order.AccountName, sender) {
		return VerdictNone
	}

	diff := alert.Amount - order.TotalAmount
	if diff < 0 {
		diff = -diff
	}
	if diff <= m.cfg.AmountTolerance {
		return VerdictSuccess
	}
	return VerdictRefund
}

// IsDuplicate reports whether candidate looks like another notification of
// the same transfer as the claimed alert. This is a best-effort heuristic:
// same amount plus any of identical narration, identical sender, or a
// timestamp within the duplicate window.
func (m *Matcher) IsDuplicate(claimed, candidate *models.PaymentAlert) bool {
	if candidate.Amount != claimed.Amount {
		return false
	}
	if claimed.Narration != "" && candidate.Narration == claimed.Narration {
		return true
	}
	if NormalizeName(candidate.SenderName) == NormalizeName(claimed.SenderName) &&
		NormalizeName(claimed.SenderName) != "" {
		return true
	}
	delta := candidate.ReceivedAt.Sub(claimed.ReceivedAt)
	if delta < 0 {
		delta = -delta
	}
	return delta <= m.cfg.DuplicateWindow
}

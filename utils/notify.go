package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"chowdash/models"

	"go.uber.org/zap"
)

// Notifier pushes confirmed orders to merchant webhook endpoints so the
// restaurant can start preparing food. Delivery is best effort: a dead
// endpoint is logged and skipped, never retried here.
type Notifier struct {
	client *http.Client
	logger *zap.Logger
}

func NewNotifier(logger *zap.Logger) *Notifier {
	return &Notifier{
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// NotifyMerchant posts the order to the restaurant's webhook URL in the
// background. A restaurant without a webhook is silently skipped.
func (n *Notifier) NotifyMerchant(webhookURL string, order models.Order) {
	if webhookURL == "" {
		return
	}
	go func() {
		body, err := json.Marshal(order)
		if err != nil {
			n.logger.Error("failed to encode order for webhook", zap.Error(err))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
		if err != nil {
			n.logger.Error("failed to build webhook request", zap.Error(err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			n.logger.Warn("merchant webhook unreachable",
				zap.String("url", webhookURL),
				zap.String("orderId", order.ID.Hex()),
				zap.Error(err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			n.logger.Warn("merchant webhook rejected order",
				zap.String("url", webhookURL),
				zap.Int("status", resp.StatusCode))
		}
	}()
}

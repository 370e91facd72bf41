package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"chowdash/models"

	"github.com/IBM/sarama"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// bankAlertMessage is the wire format the bank integration publishes to Kafka.
type bankAlertMessage struct {
	Amount        int64  `json:"amount"`
	SenderName    string `json:"sender_name"`
	AccountNumber string `json:"account_number"`
	BankName      string `json:"bank_name"`
	Narration     string `json:"narration"`
	ReceivedAt    string `json:"received_at"`
}

func InitConsumer(logger *zap.Logger) (sarama.Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true

	brokers := []string{getEnv("KAFKA_BROKER", "localhost:9092")}

	consumer, err := sarama.NewConsumer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Info("Kafka consumer initialized")
	return consumer, nil
}

// StartConsumer drains the bank alert topic into the payment_alerts
// collection, where reconciliation sessions pick alerts up through change
// streams. It blocks until ctx is cancelled.
func StartConsumer(ctx context.Context, consumer sarama.Consumer, db *mongo.Database, logger *zap.Logger) error {
	topic := getEnv("KAFKA_TOPIC", "bank_alerts")
	partitionConsumer, err := consumer.ConsumePartition(topic, 0, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("failed to consume partition: %w", err)
	}
	defer partitionConsumer.Close()

	alerts := db.Collection("payment_alerts")
	logger.Info("Kafka consumer started", zap.String("topic", topic))

	for {
		select {
		case message := <-partitionConsumer.Messages():
			if err := handleMessage(ctx, message, alerts, logger); err != nil {
				logger.Error("Failed to handle message", zap.Error(err))
			}
		case err := <-partitionConsumer.Errors():
			logger.Error("Kafka consumer error", zap.Error(err))
		case <-ctx.Done():
			logger.Info("Kafka consumer stopping")
			return nil
		}
	}
}

func handleMessage(ctx context.Context, message *sarama.ConsumerMessage, alerts *mongo.Collection, logger *zap.Logger) error {
	var msg bankAlertMessage
	if err := json.Unmarshal(message.Value, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal alert: %w", err)
	}
	if msg.Amount <= 0 {
		return fmt.Errorf("invalid amount %d in alert", msg.Amount)
	}

	receivedAt := message.Timestamp
	if msg.ReceivedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, msg.ReceivedAt); err == nil {
			receivedAt = parsed
		}
	}

	alert := models.PaymentAlert{
		Amount:        msg.Amount,
		SenderName:    msg.SenderName,
		AccountNumber: msg.AccountNumber,
		BankName:      msg.BankName,
		Narration:     msg.Narration,
		ReceivedAt:    receivedAt,
		Processed:     models.AlertUnprocessed,
	}

	insertCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := alerts.InsertOne(insertCtx, alert); err != nil {
		return fmt.Errorf("failed to store alert: %w", err)
	}

	logger.Info("Bank alert ingested",
		zap.Int64("amount", alert.Amount),
		zap.String("sender", alert.SenderName),
	)
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

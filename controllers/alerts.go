package controllers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"chowdash/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// AlertController ingests bank transfer notifications over HTTP and lets
// admins inspect the alert stream. The Kafka consumer in ingest covers the
// streaming path; this webhook covers integrations that can only POST.
type AlertController struct {
	Collection *mongo.Collection
	Logger     *zap.Logger
}

// NewAlertController creates a new AlertController
func NewAlertController(client *mongo.Client, dbName string, logger *zap.Logger) *AlertController {
	return &AlertController{
		Collection: client.Database(dbName).Collection("payment_alerts"),
		Logger:     logger,
	}
}

// IngestAlert accepts one bank alert from the notification integration. The
// caller authenticates with a shared secret header, not a user JWT.
func (ac *AlertController) IngestAlert(w http.ResponseWriter, r *http.Request) {
	secret := os.Getenv("ALERT_WEBHOOK_SECRET")
	provided := r.Header.Get("X-Webhook-Secret")
	if secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(provided)) != 1 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var body struct {
		Amount        int64     `json:"amount"`
		SenderName    string    `json:"senderName"`
		AccountNumber string    `json:"accountNumber"`
		BankName      string    `json:"bankName"`
		Narration     string    `json:"narration"`
		ReceivedAt    time.Time `json:"receivedAt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}
	if body.Amount <= 0 {
		http.Error(w, "Amount must be positive", http.StatusBadRequest)
		return
	}
	if body.ReceivedAt.IsZero() {
		body.ReceivedAt = time.Now()
	}

	alert := models.PaymentAlert{
		Amount:        body.Amount,
		SenderName:    body.SenderName,
		AccountNumber: body.AccountNumber,
		BankName:      body.BankName,
		Narration:     body.Narration,
		ReceivedAt:    body.ReceivedAt,
		Processed:     models.AlertUnprocessed,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := ac.Collection.InsertOne(ctx, alert)
	if err != nil {
		http.Error(w, "Error storing alert", http.StatusInternalServerError)
		return
	}

	ac.Logger.Info("bank alert ingested via webhook",
		zap.Int64("amount", alert.Amount),
		zap.String("sender", alert.SenderName))

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// ListAlerts retrieves alerts for the admin dashboard, optionally filtered by
// processed state
func (ac *AlertController) ListAlerts(w http.ResponseWriter, r *http.Request) {
	filter := bson.M{}
	if processed := r.URL.Query().Get("processed"); processed != "" {
		filter["processed"] = processed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cursor, err := ac.Collection.Find(ctx, filter)
	if err != nil {
		http.Error(w, "Error fetching alerts", http.StatusInternalServerError)
		return
	}
	defer cursor.Close(ctx)

	var alerts []models.PaymentAlert
	for cursor.Next(ctx) {
		var alert models.PaymentAlert
		cursor.Decode(&alert)
		alerts = append(alerts, alert)
	}
	if err := cursor.Err(); err != nil {
		http.Error(w, "Error reading alerts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(alerts)
}

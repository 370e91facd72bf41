package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"chowdash/models"
	"chowdash/utils"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	errAlertUnavailable   = errors.New("alert already claimed or not found")
	errOrderNotReviewable = errors.New("order is not awaiting manual review")
)

// AdminController resolves orders that reconciliation could not settle
// automatically: approving or declining manual reviews and closing refunds.
type AdminController struct {
	Orders       *mongo.Collection
	Alerts       *mongo.Collection
	Charges      *mongo.Collection
	EmailService *utils.EmailService
	Logger       *zap.Logger
}

// NewAdminController creates a new AdminController
func NewAdminController(client *mongo.Client, dbName string, emailService *utils.EmailService, logger *zap.Logger) *AdminController {
	db := client.Database(dbName)
	return &AdminController{
		Orders:       db.Collection("orders"),
		Alerts:       db.Collection("payment_alerts"),
		Charges:      db.Collection("charges"),
		EmailService: emailService,
		Logger:       logger,
	}
}

// ListPendingReviews retrieves orders waiting on an admin decision
func (ac *AdminController) ListPendingReviews(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cursor, err := ac.Orders.Find(ctx, bson.M{"paymentStatus": bson.M{
		"$in": []models.PaymentStatus{models.PaymentManualRequired, models.PaymentRefundRequired},
	}})
	if err != nil {
		http.Error(w, "Error fetching orders", http.StatusInternalServerError)
		return
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	for cursor.Next(ctx) {
		var order models.Order
		cursor.Decode(&order)
		orders = append(orders, order)
	}
	if err := cursor.Err(); err != nil {
		http.Error(w, "Error reading orders", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(orders)
}

// ApproveOrder confirms a manually reviewed payment. The admin may attach the
// alert they verified by hand; that alert is then claimed for this order.
func (ac *AdminController) ApproveOrder(w http.ResponseWriter, r *http.Request) {
	params := mux.Vars(r)
	orderID, err := primitive.ObjectIDFromHex(params["id"])
	if err != nil {
		http.Error(w, "Invalid order ID", http.StatusBadRequest)
		return
	}

	var body struct {
		AlertID string `json:"alertId"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	update := bson.M{
		"paymentStatus":    models.PaymentSuccessful,
		"paymentMatchedAt": time.Now(),
	}

	var alertID primitive.ObjectID
	if body.AlertID != "" {
		alertID, err = primitive.ObjectIDFromHex(body.AlertID)
		if err != nil {
			http.Error(w, "Invalid alert ID", http.StatusBadRequest)
			return
		}
		update["matchedByAlertId"] = alertID
	}

	// Alert claim and order finalization commit together or not at all,
	// same as the automatic claim path.
	sess, err := ac.Orders.Database().Client().StartSession()
	if err != nil {
		http.Error(w, "Error approving order", http.StatusInternalServerError)
		return
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if !alertID.IsZero() {
			result, err := ac.Alerts.UpdateOne(sc, bson.M{
				"_id":       alertID,
				"processed": models.AlertUnprocessed,
			}, bson.M{"$set": bson.M{
				"processed":        models.AlertClaimed,
				"claimedByOrderId": orderID,
				"claimedAt":        time.Now(),
			}})
			if err != nil {
				return nil, err
			}
			if result.MatchedCount == 0 {
				return nil, errAlertUnavailable
			}
		}

		result, err := ac.Orders.UpdateOne(sc, bson.M{
			"_id":           orderID,
			"paymentStatus": models.PaymentManualRequired,
		}, bson.M{"$set": update})
		if err != nil {
			return nil, err
		}
		if result.MatchedCount == 0 {
			return nil, errOrderNotReviewable
		}
		return nil, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, errAlertUnavailable):
		http.Error(w, "Alert already claimed or not found", http.StatusConflict)
		return
	case errors.Is(err, errOrderNotReviewable):
		http.Error(w, "Order is not awaiting manual review", http.StatusConflict)
		return
	default:
		http.Error(w, "Error approving order", http.StatusInternalServerError)
		return
	}

	ac.emailOrder(ctx, orderID, func(order models.Order) error {
		return ac.EmailService.SendPaymentConfirmedEmail(order.CustomerEmail, order)
	})

	ac.Logger.Info("order manually approved", zap.String("orderId", orderID.Hex()))
	json.NewEncoder(w).Encode("Order approved")
}

// DeclineOrder rejects a manually reviewed payment claim
func (ac *AdminController) DeclineOrder(w http.ResponseWriter, r *http.Request) {
	params := mux.Vars(r)
	orderID, err := primitive.ObjectIDFromHex(params["id"])
	if err != nil {
		http.Error(w, "Invalid order ID", http.StatusBadRequest)
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := ac.Orders.UpdateOne(ctx, bson.M{
		"_id":           orderID,
		"paymentStatus": models.PaymentManualRequired,
	}, bson.M{"$set": bson.M{
		"paymentStatus":      models.PaymentDeclined,
		"adminDeclineReason": body.Reason,
	}})
	if err != nil {
		http.Error(w, "Error declining order", http.StatusInternalServerError)
		return
	}
	if result.MatchedCount == 0 {
		http.Error(w, "Order is not awaiting manual review", http.StatusConflict)
		return
	}

	ac.Logger.Info("order manually declined",
		zap.String("orderId", orderID.Hex()),
		zap.String("reason", body.Reason))
	json.NewEncoder(w).Encode("Order declined")
}

// MarkRefunded closes a refund_required order after the money was returned
func (ac *AdminController) MarkRefunded(w http.ResponseWriter, r *http.Request) {
	params := mux.Vars(r)
	orderID, err := primitive.ObjectIDFromHex(params["id"])
	if err != nil {
		http.Error(w, "Invalid order ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := ac.Orders.UpdateOne(ctx, bson.M{
		"_id":           orderID,
		"paymentStatus": models.PaymentRefundRequired,
	}, bson.M{"$set": bson.M{
		"paymentStatus": models.PaymentRefunded,
	}})
	if err != nil {
		http.Error(w, "Error updating order", http.StatusInternalServerError)
		return
	}
	if result.MatchedCount == 0 {
		http.Error(w, "Order is not awaiting a refund", http.StatusConflict)
		return
	}

	ac.Logger.Info("order marked refunded", zap.String("orderId", orderID.Hex()))
	json.NewEncoder(w).Encode("Order marked as refunded")
}

// UpdateCharges sets the platform-wide checkout charges
func (ac *AdminController) UpdateCharges(w http.ResponseWriter, r *http.Request) {
	var charges models.Charges
	if err := json.NewDecoder(r.Body).Decode(&charges); err != nil {
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}
	if charges.DeliveryCharge < 0 || charges.PackCharge < 0 || charges.FeePermille < 0 {
		http.Error(w, "Charges must not be negative", http.StatusBadRequest)
		return
	}
	charges.ID = chargesDocID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	_, err := ac.Charges.ReplaceOne(ctx, bson.M{"_id": chargesDocID}, charges, opts)
	if err != nil {
		http.Error(w, "Error updating charges", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode("Charges updated")
}

func (ac *AdminController) emailOrder(ctx context.Context, orderID primitive.ObjectID, send func(models.Order) error) {
	var order models.Order
	if err := ac.Orders.FindOne(ctx, bson.M{"_id": orderID}).Decode(&order); err != nil {
		ac.Logger.Warn("order vanished before email", zap.String("orderId", orderID.Hex()))
		return
	}
	if err := send(order); err != nil {
		ac.Logger.Warn("failed to send email", zap.Error(err))
	}
}

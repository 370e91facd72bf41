package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"chowdash/middleware"
	"chowdash/models"
	"chowdash/reconcile"
	"chowdash/utils"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const chargesDocID = "platform"

// OrderController creates orders from carts and drives their payment
// reconciliation sessions.
type OrderController struct {
	Orders      *mongo.Collection
	Carts       *mongo.Collection
	FoodItems   *mongo.Collection
	Restaurants *mongo.Collection
	Charges     *mongo.Collection
	Users       *mongo.Collection

	Store        reconcile.Store
	Config       reconcile.Config
	EmailService *utils.EmailService
	Notifier     *utils.Notifier
	Logger       *zap.Logger

	mu       sync.Mutex
	sessions map[primitive.ObjectID]*reconcile.Session
}

// NewOrderController creates a new OrderController
func NewOrderController(client *mongo.Client, dbName string, store reconcile.Store, cfg reconcile.Config, emailService *utils.EmailService, notifier *utils.Notifier, logger *zap.Logger) *OrderController {
	db := client.Database(dbName)
	return &OrderController{
		Orders:       db.Collection("orders"),
		Carts:        db.Collection("carts"),
		FoodItems:    db.Collection("food_items"),
		Restaurants:  db.Collection("restaurants"),
		Charges:      db.Collection("charges"),
		Users:        db.Collection("users"),
		Store:        store,
		Config:       cfg,
		EmailService: emailService,
		Notifier:     notifier,
		Logger:       logger,
		sessions:     make(map[primitive.ObjectID]*reconcile.Session),
	}
}

// computeCharges derives the charge lines for a cart subtotal. The fee is
// permille of the item total plus fixed charges, rounded half up to a whole
// naira.
func computeCharges(itemTotal int64, charges models.Charges) (delivery, pack, fee, total int64) {
	delivery = charges.DeliveryCharge
	pack = charges.PackCharge
	subtotal := itemTotal + delivery + pack
	fee = (subtotal*charges.FeePermille + 500) / 1000
	total = subtotal + fee
	return delivery, pack, fee, total
}

func (oc *OrderController) platformCharges(ctx context.Context) models.Charges {
	charges := models.Charges{
		DeliveryCharge: 300,
		PackCharge:     200,
		FeePermille:    15,
	}
	err := oc.Charges.FindOne(ctx, bson.M{"_id": chargesDocID}).Decode(&charges)
	if err != nil && err != mongo.ErrNoDocuments {
		oc.Logger.Warn("failed to load platform charges, using defaults", zap.Error(err))
	}
	return charges
}

// Checkout turns the customer's cart into a pending order and starts a
// reconciliation session watching for the declared bank transfer.
func (oc *OrderController) Checkout(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(middleware.UserContextKey).(*utils.Claims)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	customerID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var declared struct {
		BankName      string `json:"bankName"`
		AccountName   string `json:"accountName"`
		AccountNumber string `json:"accountNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&declared); err != nil {
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}
	if declared.AccountName == "" {
		http.Error(w, "Account name is required to match your transfer", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var customer models.Customer
	if err := oc.Users.FindOne(ctx, bson.M{"_id": customerID}).Decode(&customer); err != nil {
		http.Error(w, "Account not found", http.StatusUnauthorized)
		return
	}

	var cart models.Cart
	if err := oc.Carts.FindOne(ctx, bson.M{"customerId": customerID}).Decode(&cart); err != nil {
		http.Error(w, "Cart is empty", http.StatusBadRequest)
		return
	}
	if len(cart.Items) == 0 {
		http.Error(w, "Cart is empty", http.StatusBadRequest)
		return
	}

	// Reprice every line against the live menu
	var orderItems []models.OrderItem
	var itemTotal int64
	for _, cartItem := range cart.Items {
		var food models.FoodItem
		if err := oc.FoodItems.FindOne(ctx, bson.M{"_id": cartItem.FoodItemID}).Decode(&food); err != nil {
			http.Error(w, "A cart item is no longer on the menu", http.StatusConflict)
			return
		}
		if !food.Available {
			http.Error(w, "A cart item is no longer available", http.StatusConflict)
			return
		}
		orderItems = append(orderItems, models.OrderItem{
			Name:     food.Name,
			Price:    food.Price,
			Quantity: cartItem.Quantity,
		})
		itemTotal += food.Price * int64(cartItem.Quantity)
	}

	charges := oc.platformCharges(ctx)
	delivery, pack, fee, total := computeCharges(itemTotal, charges)

	now := time.Now()
	order := models.Order{
		CustomerID:         customerID,
		CustomerName:       customer.FullName,
		CustomerUsername:   customer.Username,
		CustomerEmail:      customer.Email,
		CustomerPhone:      customer.Phone,
		CustomerRoom:       customer.RoomNumber,
		RestaurantName:     cart.RestaurantName,
		Items:              orderItems,
		ItemTotal:          itemTotal,
		DeliveryCharge:     delivery,
		PackCharge:         pack,
		Fee:                fee,
		TotalAmount:        total,
		BankName:           declared.BankName,
		AccountName:        declared.AccountName,
		AccountNumber:      declared.AccountNumber,
		PaymentStatus:      models.PaymentPendingConfirmation,
		OrderStatus:        "pending_assignment",
		CreatedAt:          now,
		CountdownStartedAt: now,
	}

	result, err := oc.Orders.InsertOne(ctx, order)
	if err != nil {
		http.Error(w, "Error creating order", http.StatusInternalServerError)
		return
	}
	order.ID = result.InsertedID.(primitive.ObjectID)

	if _, err := oc.Carts.DeleteOne(ctx, bson.M{"_id": cart.ID}); err != nil {
		oc.Logger.Warn("failed to clear cart after checkout", zap.Error(err))
	}

	oc.startSession(order)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(order)
}

// startSession launches the reconciliation session for an order and handles
// its terminal outcome in the background.
func (oc *OrderController) startSession(order models.Order) {
	session := reconcile.NewSession(oc.Config, oc.Store, oc.Logger)

	oc.mu.Lock()
	oc.sessions[order.ID] = session
	oc.mu.Unlock()

	go func() {
		defer func() {
			oc.mu.Lock()
			delete(oc.sessions, order.ID)
			oc.mu.Unlock()
		}()

		outcome, err := session.Run(context.Background(), order.ID)
		if err != nil {
			oc.Logger.Error("reconciliation session failed",
				zap.String("orderId", order.ID.Hex()),
				zap.Error(err))
			return
		}
		oc.handleOutcome(order, outcome)
	}()
}

func (oc *OrderController) handleOutcome(order models.Order, outcome reconcile.Outcome) {
	oc.Logger.Info("reconciliation session finished",
		zap.String("orderId", order.ID.Hex()),
		zap.String("outcome", string(outcome)))

	switch outcome {
	case reconcile.OutcomeSuccessful:
		if err := oc.EmailService.SendPaymentConfirmedEmail(order.CustomerEmail, order); err != nil {
			oc.Logger.Warn("failed to send confirmation email", zap.Error(err))
		}
		oc.notifyRestaurant(order)
	case reconcile.OutcomeRefundRequired:
		if err := oc.EmailService.SendRefundNoticeEmail(order.CustomerEmail, order); err != nil {
			oc.Logger.Warn("failed to send refund email", zap.Error(err))
		}
	case reconcile.OutcomeManualRequired:
		if err := oc.EmailService.SendManualReviewEmail(order.CustomerEmail, order); err != nil {
			oc.Logger.Warn("failed to send review email", zap.Error(err))
		}
	}
}

func (oc *OrderController) notifyRestaurant(order models.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var restaurant models.Restaurant
	err := oc.Restaurants.FindOne(ctx, bson.M{"name": order.RestaurantName}).Decode(&restaurant)
	if err != nil {
		oc.Logger.Warn("restaurant not found for webhook",
			zap.String("restaurant", order.RestaurantName))
		return
	}
	oc.Notifier.NotifyMerchant(restaurant.WebhookURL, order)
}

// CancelOrder stops a pending order's reconciliation session. Orders whose
// session already finished can no longer be cancelled here.
func (oc *OrderController) CancelOrder(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(middleware.UserContextKey).(*utils.Claims)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	params := mux.Vars(r)
	orderID, err := primitive.ObjectIDFromHex(params["id"])
	if err != nil {
		http.Error(w, "Invalid order ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var order models.Order
	if err := oc.Orders.FindOne(ctx, bson.M{"_id": orderID}).Decode(&order); err != nil {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}
	if order.CustomerID.Hex() != claims.UserID && claims.Role != "admin" {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	oc.mu.Lock()
	session, ok := oc.sessions[orderID]
	oc.mu.Unlock()
	if !ok {
		http.Error(w, "Order is no longer cancellable", http.StatusConflict)
		return
	}

	session.Cancel()
	json.NewEncoder(w).Encode("Order cancellation requested")
}

// GetOrders retrieves the authenticated customer's orders, newest first
func (oc *OrderController) GetOrders(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(middleware.UserContextKey).(*utils.Claims)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	customerID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cursor, err := oc.Orders.Find(ctx, bson.M{"customerId": customerID})
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

// GetOrderByID retrieves one order, owner or admin only
func (oc *OrderController) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(middleware.UserContextKey).(*utils.Claims)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	params := mux.Vars(r)
	orderID, err := primitive.ObjectIDFromHex(params["id"])
	if err != nil {
		http.Error(w, "Invalid order ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var order models.Order
	if err := oc.Orders.FindOne(ctx, bson.M{"_id": orderID}).Decode(&order); err != nil {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}
	if order.CustomerID.Hex() != claims.UserID && claims.Role != "admin" {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(order)
}

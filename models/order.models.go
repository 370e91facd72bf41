package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PaymentStatus is the reconciliation state of an order's declared payment.
type PaymentStatus string

const (
	PaymentPendingConfirmation PaymentStatus = "pending_confirmation"
	PaymentSuccessful          PaymentStatus = "successful"
	PaymentRefundRequired      PaymentStatus = "refund_required"
	PaymentManualRequired      PaymentStatus = "manual_required"
	PaymentDeclined            PaymentStatus = "declined"
	PaymentRefunded            PaymentStatus = "refunded"
	PaymentExpired             PaymentStatus = "expired"
	PaymentCancelled           PaymentStatus = "cancelled"
)

// Terminal reports whether a payment status can no longer change through
// automatic matching. manual_required and refund_required still await an
// admin action but are terminal for the reconciliation session.
func (s PaymentStatus) Terminal() bool {
	return s != PaymentPendingConfirmation && s != ""
}

// OrderItem is one line of an order. Prices are whole naira.
type OrderItem struct {
	Name     string `bson:"name" json:"name"`
	Price    int64  `bson:"price" json:"price"`
	Quantity int    `bson:"qty" json:"qty"`
}

// Order represents one checkout attempt by a customer, including the bank
// details the customer declared when reporting a manual transfer.
type Order struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	CustomerID         primitive.ObjectID `bson:"customerId" json:"customerId"`
	CustomerName       string             `bson:"customerName" json:"customerName"`
	CustomerUsername   string             `bson:"customerUsername" json:"customerUsername"`
	CustomerEmail      string             `bson:"customerEmail" json:"customerEmail"`
	CustomerPhone      string             `bson:"customerPhone,omitempty" json:"customerPhone,omitempty"`
	CustomerRoom       string             `bson:"customerRoom,omitempty" json:"customerRoom,omitempty"`
	RestaurantName     string             `bson:"restaurantName" json:"restaurantName"`
	Items              []OrderItem        `bson:"items" json:"items"`
	ItemTotal          int64              `bson:"itemTotal" json:"itemTotal"`
	DeliveryCharge     int64              `bson:"deliveryCharge" json:"deliveryCharge"`
	PackCharge         int64              `bson:"packCharge" json:"packCharge"`
	Fee                int64              `bson:"fee" json:"fee"`
	TotalAmount        int64              `bson:"totalAmount" json:"totalAmount"`
	BankName           string             `bson:"customerBankName,omitempty" json:"customerBankName,omitempty"`
	AccountName        string             `bson:"customerAccountName" json:"customerAccountName"`
	AccountNumber      string             `bson:"customerAccountNumber,omitempty" json:"customerAccountNumber,omitempty"`
	Narration          string             `bson:"narration,omitempty" json:"narration,omitempty"`
	PaymentStatus      PaymentStatus      `bson:"paymentStatus" json:"paymentStatus"`
	OrderStatus        string             `bson:"orderStatus" json:"orderStatus"` // e.g. "pending_assignment"
	CreatedAt          time.Time          `bson:"createdAt" json:"createdAt"`
	CountdownStartedAt time.Time          `bson:"countdownStartedAt" json:"countdownStartedAt"`
	// At most one of the two references below may be set; which one it is
	// must agree with PaymentStatus.
	MatchedByAlertID       primitive.ObjectID `bson:"matchedByAlertId,omitempty" json:"matchedByAlertId,omitempty"`
	RefundCandidateAlertID primitive.ObjectID `bson:"refundCandidateAlertId,omitempty" json:"refundCandidateAlertId,omitempty"`
	PaymentMatchedAt       time.Time          `bson:"paymentMatchedAt,omitempty" json:"paymentMatchedAt,omitempty"`
	AdminDeclineReason     string             `bson:"adminDeclineReason,omitempty" json:"adminDeclineReason,omitempty"`
}

// ArchivedOrder wraps an order moved out of the live collection after it
// expired or was cancelled before any match.
type ArchivedOrder struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Order      Order              `bson:"order" json:"order"`
	Reason     PaymentStatus      `bson:"reason" json:"reason"`
	ArchivedAt time.Time          `bson:"archivedAt" json:"archivedAt"`
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AlertProcessed is the claim marker on a payment alert.
type AlertProcessed string

const (
	AlertUnprocessed   AlertProcessed = "unprocessed"
	AlertClaimed       AlertProcessed = "claimed"
	AlertNotApplicable AlertProcessed = "not_applicable"
)

// PaymentAlert is one detected incoming bank transfer, written by the
// out-of-band notification parser. An alert is mutated exactly once: either
// claimed by an order or marked not applicable when it falls outside every
// matching window.
type PaymentAlert struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Amount             int64              `bson:"amount" json:"amount"`
	SenderName         string             `bson:"senderName" json:"senderName"`
	AccountNumber      string             `bson:"accountNumber,omitempty" json:"accountNumber,omitempty"`
	BankName           string             `bson:"bankName,omitempty" json:"bankName,omitempty"`
	Narration          string             `bson:"narration,omitempty" json:"narration,omitempty"`
	ReceivedAt         time.Time          `bson:"receivedAt" json:"receivedAt"`
	Processed          AlertProcessed     `bson:"processed" json:"processed"`
	ClaimedByOrderID   primitive.ObjectID `bson:"claimedByOrderId,omitempty" json:"claimedByOrderId,omitempty"`
	DuplicateOfAlertID primitive.ObjectID `bson:"duplicateOfAlertId,omitempty" json:"duplicateOfAlertId,omitempty"`
	ClaimedAt          time.Time          `bson:"claimedAt,omitempty" json:"claimedAt,omitempty"`
}

package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FoodItem is one entry on a restaurant's menu.
type FoodItem struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name           string             `bson:"name" json:"name"`
	Category       string             `bson:"category" json:"category"`
	Price          int64              `bson:"price" json:"price"`
	RestaurantName string             `bson:"restaurantName" json:"restaurantName"`
	Available      bool               `bson:"available" json:"available"`
}

// Restaurant holds merchant details, including the webhook endpoint pinged
// when a paid order lands.
type Restaurant struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name       string             `bson:"name" json:"name"`
	Hostel     string             `bson:"hostel,omitempty" json:"hostel,omitempty"`
	WebhookURL string             `bson:"webhookUrl,omitempty" json:"webhookUrl,omitempty"`
}

// Charges are the platform-wide checkout charges, editable by an admin.
type Charges struct {
	ID             string `bson:"_id,omitempty" json:"id,omitempty"`
	DeliveryCharge int64  `bson:"deliveryCharge" json:"deliveryCharge"`
	PackCharge     int64  `bson:"packCharge" json:"packCharge"`
	// FeePermille is the service fee in tenths of a percent (15 = 1.5%).
	FeePermille int64 `bson:"feePermille" json:"feePermille"`
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Announcement is a broadcast message shown on a portal dashboard.
type Announcement struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Title     string             `bson:"title" json:"title"`
	Body      string             `bson:"body" json:"body"`
	Role      string             `bson:"role" json:"role"` // "customers", "merchants" or "all"
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

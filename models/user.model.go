package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Customer represents a customer account. Hostel and room are the delivery
// destination on campus.
type Customer struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	FullName          string             `bson:"fullname" json:"fullname"`
	Username          string             `bson:"username" json:"username"`
	Email             string             `bson:"email" json:"email"`
	Phone             string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Password          string             `bson:"password,omitempty" json:"-"`
	Hostel            string             `bson:"hostel,omitempty" json:"hostel,omitempty"`
	RoomNumber        string             `bson:"roomNumber,omitempty" json:"roomNumber,omitempty"`
	Role              string             `bson:"role" json:"role"` // "customer", "merchant" or "admin"
	IsVerified        bool               `bson:"isVerified" json:"isVerified"`
	VerificationToken string             `bson:"verificationToken,omitempty" json:"-"`
}

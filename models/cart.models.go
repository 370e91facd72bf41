package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CartItem references a food item placed in the cart.
type CartItem struct {
	FoodItemID primitive.ObjectID `bson:"foodItemId" json:"foodItemId"`
	Quantity   int                `bson:"qty" json:"qty"`
}

// Cart is a customer's cart. All items must come from one restaurant.
type Cart struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	CustomerID     primitive.ObjectID `bson:"customerId" json:"customerId"`
	RestaurantName string             `bson:"restaurantName" json:"restaurantName"`
	Items          []CartItem         `bson:"items" json:"items"`
}

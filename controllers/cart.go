package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"chowdash/middleware"
	"chowdash/models"
	"chowdash/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// CartController handles cart-related requests
type CartController struct {
	Collection *mongo.Collection
	FoodItems  *mongo.Collection
}

// NewCartController creates a new CartController
func NewCartController(client *mongo.Client, dbName string) *CartController {
	db := client.Database(dbName)
	return &CartController{
		Collection: db.Collection("carts"),
		FoodItems:  db.Collection("food_items"),
	}
}

func (cc *CartController) customerID(r *http.Request) (primitive.ObjectID, bool) {
	claims, ok := r.Context().Value(middleware.UserContextKey).(*utils.Claims)
	if !ok {
		return primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}

// AddToCart adds a food item to the customer's cart. A cart can only hold
// items from one restaurant; adding from a second restaurant is rejected.
func (cc *CartController) AddToCart(w http.ResponseWriter, r *http.Request) {
	customerID, ok := cc.customerID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var item models.CartItem
	err := json.NewDecoder(r.Body).Decode(&item)
	if err != nil || item.FoodItemID.IsZero() {
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var food models.FoodItem
	err = cc.FoodItems.FindOne(ctx, bson.M{"_id": item.FoodItemID}).Decode(&food)
	if err != nil {
		http.Error(w, "Food item not found", http.StatusNotFound)
		return
	}
	if !food.Available {
		http.Error(w, "Food item is not available", http.StatusBadRequest)
		return
	}

	// Check if cart exists
	var cart models.Cart
	err = cc.Collection.FindOne(ctx, bson.M{"customerId": customerID}).Decode(&cart)
	if err != nil {
		// Create new cart
		cart = models.Cart{
			CustomerID:     customerID,
			RestaurantName: food.RestaurantName,
			Items:          []models.CartItem{item},
		}
		_, err := cc.Collection.InsertOne(ctx, cart)
		if err != nil {
			http.Error(w, "Error creating cart", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode("Item added to cart")
		return
	}

	if cart.RestaurantName != food.RestaurantName {
		http.Error(w, "Cart already holds items from another restaurant", http.StatusConflict)
		return
	}

	// Update existing cart
	updated := false
	for i, existingItem := range cart.Items {
		if existingItem.FoodItemID == item.FoodItemID {
			cart.Items[i].Quantity += item.Quantity
			updated = true
			break
		}
	}
	if !updated {
		cart.Items = append(cart.Items, item)
	}

	_, err = cc.Collection.UpdateOne(ctx, bson.M{"_id": cart.ID}, bson.M{
		"$set": bson.M{"items": cart.Items},
	})
	if err != nil {
		http.Error(w, "Error updating cart", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode("Item added to cart")
}

// GetCart retrieves the customer's cart
func (cc *CartController) GetCart(w http.ResponseWriter, r *http.Request) {
	customerID, ok := cc.customerID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var cart models.Cart
	err := cc.Collection.FindOne(ctx, bson.M{"customerId": customerID}).Decode(&cart)
	if err != nil {
		http.Error(w, "Cart is empty", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cart)
}

// RemoveFromCart removes one food item from the cart
func (cc *CartController) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	customerID, ok := cc.customerID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var body struct {
		FoodItemID primitive.ObjectID `json:"foodItemId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var cart models.Cart
	err := cc.Collection.FindOne(ctx, bson.M{"customerId": customerID}).Decode(&cart)
	if err != nil {
		http.Error(w, "Cart not found", http.StatusNotFound)
		return
	}

	items := cart.Items[:0]
	for _, item := range cart.Items {
		if item.FoodItemID != body.FoodItemID {
			items = append(items, item)
		}
	}

	if len(items) == 0 {
		// Last item gone, drop the cart so the next add picks a restaurant fresh
		_, err = cc.Collection.DeleteOne(ctx, bson.M{"_id": cart.ID})
	} else {
		_, err = cc.Collection.UpdateOne(ctx, bson.M{"_id": cart.ID}, bson.M{
			"$set": bson.M{"items": items},
		})
	}
	if err != nil {
		http.Error(w, "Error updating cart", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode("Item removed from cart")
}

package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"chowdash/cache"
	"chowdash/models"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const menuCacheTTL = 5 * time.Minute

// MenuController handles restaurant and menu requests
type MenuController struct {
	Restaurants *mongo.Collection
	FoodItems   *mongo.Collection
	Redis       *redis.Client
	Logger      *zap.Logger
}

// NewMenuController creates a new MenuController. rdb may be nil, in which
// case menu reads always hit Mongo.
func NewMenuController(client *mongo.Client, dbName string, rdb *redis.Client, logger *zap.Logger) *MenuController {
	db := client.Database(dbName)
	return &MenuController{
		Restaurants: db.Collection("restaurants"),
		FoodItems:   db.Collection("food_items"),
		Redis:       rdb,
		Logger:      logger,
	}
}

// GetRestaurants retrieves all restaurants
func (mc *MenuController) GetRestaurants(w http.ResponseWriter, r *http.Request) {
	var restaurants []models.Restaurant
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cursor, err := mc.Restaurants.Find(ctx, bson.M{})
	if err != nil {
		http.Error(w, "Error fetching restaurants", http.StatusInternalServerError)
		return
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var restaurant models.Restaurant
		cursor.Decode(&restaurant)
		restaurants = append(restaurants, restaurant)
	}

	if err := cursor.Err(); err != nil {
		http.Error(w, "Error reading restaurants", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(restaurants)
}

// GetMenu retrieves the menu of one restaurant, served from Redis when warm
func (mc *MenuController) GetMenu(w http.ResponseWriter, r *http.Request) {
	params := mux.Vars(r)
	restaurant := params["restaurant"]
	if restaurant == "" {
		http.Error(w, "Restaurant name missing", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if mc.Redis != nil {
		if data, err := cache.GetMenu(ctx, mc.Redis, restaurant); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Write(data)
			return
		}
	}

	var items []models.FoodItem
	cursor, err := mc.FoodItems.Find(ctx, bson.M{"restaurantName": restaurant, "available": true})
	if err != nil {
		http.Error(w, "Error fetching menu", http.StatusInternalServerError)
		return
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var item models.FoodItem
		cursor.Decode(&item)
		items = append(items, item)
	}

	if err := cursor.Err(); err != nil {
		http.Error(w, "Error reading menu", http.StatusInternalServerError)
		return
	}

	if mc.Redis != nil {
		if err := cache.SetMenu(ctx, mc.Redis, restaurant, items, menuCacheTTL); err != nil {
			mc.Logger.Warn("failed to cache menu", zap.String("restaurant", restaurant), zap.Error(err))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

// CreateRestaurant registers a new restaurant (Admin only)
func (mc *MenuController) CreateRestaurant(w http.ResponseWriter, r *http.Request) {
	var restaurant models.Restaurant
	err := json.NewDecoder(r.Body).Decode(&restaurant)
	if err != nil || restaurant.Name == "" {
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := mc.Restaurants.InsertOne(ctx, restaurant)
	if err != nil {
		http.Error(w, "Error creating restaurant", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// CreateFoodItem adds a menu entry (Admin only)
func (mc *MenuController) CreateFoodItem(w http.ResponseWriter, r *http.Request) {
	var item models.FoodItem
	err := json.NewDecoder(r.Body).Decode(&item)
	if err != nil || item.Name == "" || item.RestaurantName == "" {
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}
	if item.Price <= 0 {
		http.Error(w, "Price must be positive", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := mc.FoodItems.InsertOne(ctx, item)
	if err != nil {
		http.Error(w, "Error creating food item", http.StatusInternalServerError)
		return
	}

	mc.invalidateMenu(ctx, item.RestaurantName)

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// UpdateFoodItem updates a menu entry (Admin only)
func (mc *MenuController) UpdateFoodItem(w http.ResponseWriter, r *http.Request) {
	params := mux.Vars(r)
	id, err := primitive.ObjectIDFromHex(params["id"])
	if err != nil {
		http.Error(w, "Invalid food item ID", http.StatusBadRequest)
		return
	}

	var item models.FoodItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := mc.FoodItems.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"name":      item.Name,
			"category":  item.Category,
			"price":     item.Price,
			"available": item.Available,
		},
	})
	if err != nil {
		http.Error(w, "Error updating food item", http.StatusInternalServerError)
		return
	}
	if result.MatchedCount == 0 {
		http.Error(w, "Food item not found", http.StatusNotFound)
		return
	}

	mc.invalidateMenu(ctx, item.RestaurantName)
	json.NewEncoder(w).Encode("Food item updated")
}

// DeleteFoodItem removes a menu entry (Admin only)
func (mc *MenuController) DeleteFoodItem(w http.ResponseWriter, r *http.Request) {
	params := mux.Vars(r)
	id, err := primitive.ObjectIDFromHex(params["id"])
	if err != nil {
		http.Error(w, "Invalid food item ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var item models.FoodItem
	err = mc.FoodItems.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&item)
	if err != nil {
		http.Error(w, "Food item not found", http.StatusNotFound)
		return
	}

	mc.invalidateMenu(ctx, item.RestaurantName)
	json.NewEncoder(w).Encode("Food item deleted")
}

func (mc *MenuController) invalidateMenu(ctx context.Context, restaurant string) {
	if mc.Redis == nil || restaurant == "" {
		return
	}
	if err := cache.DeleteMenu(ctx, mc.Redis, restaurant); err != nil {
		mc.Logger.Warn("failed to invalidate menu cache", zap.String("restaurant", restaurant), zap.Error(err))
	}
}

package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"chowdash/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AnnouncementController serves dashboard announcements
type AnnouncementController struct {
	Collection *mongo.Collection
}

// NewAnnouncementController creates a new AnnouncementController
func NewAnnouncementController(client *mongo.Client, dbName string) *AnnouncementController {
	return &AnnouncementController{
		Collection: client.Database(dbName).Collection("announcements"),
	}
}

// GetAnnouncements retrieves announcements for a role
func (nc *AnnouncementController) GetAnnouncements(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	filter := bson.M{}
	if role != "" {
		filter["role"] = bson.M{"$in": []string{role, "all"}}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cursor, err := nc.Collection.Find(ctx, filter)
	if err != nil {
		http.Error(w, "Error fetching announcements", http.StatusInternalServerError)
		return
	}
	defer cursor.Close(ctx)

	var announcements []models.Announcement
	for cursor.Next(ctx) {
		var announcement models.Announcement
		cursor.Decode(&announcement)
		announcements = append(announcements, announcement)
	}
	if err := cursor.Err(); err != nil {
		http.Error(w, "Error reading announcements", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(announcements)
}

// CreateAnnouncement publishes an announcement (Admin only)
func (nc *AnnouncementController) CreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	var announcement models.Announcement
	if err := json.NewDecoder(r.Body).Decode(&announcement); err != nil || announcement.Title == "" {
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}
	if announcement.Role == "" {
		announcement.Role = "all"
	}
	announcement.CreatedAt = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := nc.Collection.InsertOne(ctx, announcement)
	if err != nil {
		http.Error(w, "Error creating announcement", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"chowdash/middleware"
	"chowdash/models"
	"chowdash/utils"

	"github.com/dgrijalva/jwt-go"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"
)

// CustomerController handles account-related requests
type CustomerController struct {
	Collection   *mongo.Collection
	EmailService *utils.EmailService
}

// NewCustomerController creates a new CustomerController with EmailService
func NewCustomerController(client *mongo.Client, dbName string, emailService *utils.EmailService) *CustomerController {
	collection := client.Database(dbName).Collection("users")
	return &CustomerController{
		Collection:   collection,
		EmailService: emailService,
	}
}

// Register handles customer registration
func (cc *CustomerController) Register(w http.ResponseWriter, r *http.Request) {
	var customer models.Customer
	err := json.NewDecoder(r.Body).Decode(&customer)
	if err != nil {
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}
	if customer.Email == "" || customer.Password == "" || customer.Username == "" {
		http.Error(w, "Email, username and password are required", http.StatusBadRequest)
		return
	}

	// Check if the account already exists
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	count, err := cc.Collection.CountDocuments(ctx, bson.M{"$or": []bson.M{
		{"email": customer.Email},
		{"username": customer.Username},
	}})
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if count > 0 {
		http.Error(w, "Account already exists", http.StatusBadRequest)
		return
	}

	// Hash the password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(customer.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}
	customer.Password = string(hashedPassword)
	if customer.Role != "merchant" {
		customer.Role = "customer" // Default role
	}
	customer.IsVerified = false

	// Generate verification token
	verificationToken, err := utils.GenerateJWT("", customer.Email, customer.Role)
	if err != nil {
		http.Error(w, "Error generating verification token", http.StatusInternalServerError)
		return
	}
	customer.VerificationToken = verificationToken

	_, err = cc.Collection.InsertOne(ctx, customer)
	if err != nil {
		http.Error(w, "Error creating account", http.StatusInternalServerError)
		return
	}

	// Send verification email
	err = cc.EmailService.SendVerificationEmail(customer.Email, verificationToken)
	if err != nil {
		http.Error(w, "Error sending verification email", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode("Account registered successfully. Please check your email to verify your account.")
}

// VerifyEmail handles email verification
func (cc *CustomerController) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Verification token missing", http.StatusBadRequest)
		return
	}

	claims := &utils.Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return utils.JwtKey, nil
	})

	if err != nil {
		http.Error(w, "Invalid token", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var customer models.Customer
	err = cc.Collection.FindOne(ctx, bson.M{"verificationToken": token}).Decode(&customer)
	if err != nil {
		http.Error(w, "Account not found or already verified", http.StatusBadRequest)
		return
	}

	_, err = cc.Collection.UpdateOne(ctx, bson.M{"_id": customer.ID}, bson.M{
		"$set": bson.M{
			"isVerified":        true,
			"verificationToken": "",
		},
	})
	if err != nil {
		http.Error(w, "Error updating verification status", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode("Email verified successfully. You can now log in.")
}

// Login handles customer authentication
func (cc *CustomerController) Login(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	err := json.NewDecoder(r.Body).Decode(&creds)
	if err != nil {
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var customer models.Customer
	err = cc.Collection.FindOne(ctx, bson.M{"email": creds.Email}).Decode(&customer)
	if err != nil {
		http.Error(w, "Account not found", http.StatusUnauthorized)
		return
	}

	if !customer.IsVerified {
		http.Error(w, "Email not verified", http.StatusUnauthorized)
		return
	}

	err = bcrypt.CompareHashAndPassword([]byte(customer.Password), []byte(creds.Password))
	if err != nil {
		http.Error(w, "Invalid password", http.StatusUnauthorized)
		return
	}

	token, err := utils.GenerateJWT(customer.ID.Hex(), customer.Email, customer.Role)
	if err != nil {
		http.Error(w, "Error generating token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// GetProfile retrieves the authenticated customer's profile
func (cc *CustomerController) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(middleware.UserContextKey).(*utils.Claims)
	if !ok {
		http.Error(w, "Could not parse user from context", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var customer models.Customer
	err := cc.Collection.FindOne(ctx, bson.M{"email": claims.Email}).Decode(&customer)
	if err != nil {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}

	customer.Password = ""
	customer.VerificationToken = ""
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(customer)
}

// UpdateProfile lets a customer change their delivery details
func (cc *CustomerController) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(middleware.UserContextKey).(*utils.Claims)
	if !ok {
		http.Error(w, "Could not parse user from context", http.StatusUnauthorized)
		return
	}

	var update struct {
		Phone      string `json:"phone"`
		Hostel     string `json:"hostel"`
		RoomNumber string `json:"roomNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := cc.Collection.UpdateOne(ctx, bson.M{"email": claims.Email}, bson.M{
		"$set": bson.M{
			"phone":      update.Phone,
			"hostel":     update.Hostel,
			"roomNumber": update.RoomNumber,
		},
	})
	if err != nil {
		http.Error(w, "Error updating profile", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode("Profile updated")
}

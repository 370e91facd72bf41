// routes/routes.go
package routes

import (
	"chowdash/controllers"
	"chowdash/middleware"

	"github.com/gorilla/mux"
)

// RegisterRoutes sets up all the routes for the application
func RegisterRoutes(
	router *mux.Router,
	customerController *controllers.CustomerController,
	menuController *controllers.MenuController,
	cartController *controllers.CartController,
	orderController *controllers.OrderController,
	adminController *controllers.AdminController,
	alertController *controllers.AlertController,
	announcementController *controllers.AnnouncementController,
) {
	// Public routes
	router.HandleFunc("/register", customerController.Register).Methods("POST")
	router.HandleFunc("/login", customerController.Login).Methods("POST")
	router.HandleFunc("/verify-email", customerController.VerifyEmail).Methods("GET")
	router.HandleFunc("/restaurants", menuController.GetRestaurants).Methods("GET")
	router.HandleFunc("/restaurants/{restaurant}/menu", menuController.GetMenu).Methods("GET")
	router.HandleFunc("/announcements", announcementController.GetAnnouncements).Methods("GET")

	// Bank integration webhook, authenticated by shared secret
	router.HandleFunc("/webhooks/bank-alerts", alertController.IngestAlert).Methods("POST")

	// Protected routes
	protected := router.PathPrefix("/").Subrouter()
	protected.Use(middleware.AuthMiddleware)
	protected.HandleFunc("/profile", customerController.GetProfile).Methods("GET")
	protected.HandleFunc("/profile", customerController.UpdateProfile).Methods("PUT")

	// Cart routes
	protected.HandleFunc("/cart", cartController.AddToCart).Methods("POST")
	protected.HandleFunc("/cart", cartController.GetCart).Methods("GET")
	protected.HandleFunc("/cart", cartController.RemoveFromCart).Methods("DELETE")

	// Order routes
	protected.HandleFunc("/checkout", orderController.Checkout).Methods("POST")
	protected.HandleFunc("/orders", orderController.GetOrders).Methods("GET")
	protected.HandleFunc("/orders/{id}", orderController.GetOrderByID).Methods("GET")
	protected.HandleFunc("/orders/{id}/cancel", orderController.CancelOrder).Methods("POST")

	// Admin routes
	admin := router.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.AuthMiddleware)
	admin.Use(middleware.AdminMiddleware)
	admin.HandleFunc("/reviews", adminController.ListPendingReviews).Methods("GET")
	admin.HandleFunc("/orders/{id}/approve", adminController.ApproveOrder).Methods("POST")
	admin.HandleFunc("/orders/{id}/decline", adminController.DeclineOrder).Methods("POST")
	admin.HandleFunc("/orders/{id}/refund", adminController.MarkRefunded).Methods("POST")
	admin.HandleFunc("/charges", adminController.UpdateCharges).Methods("PUT")
	admin.HandleFunc("/alerts", alertController.ListAlerts).Methods("GET")
	admin.HandleFunc("/restaurants", menuController.CreateRestaurant).Methods("POST")
	admin.HandleFunc("/food-items", menuController.CreateFoodItem).Methods("POST")
	admin.HandleFunc("/food-items/{id}", menuController.UpdateFoodItem).Methods("PUT")
	admin.HandleFunc("/food-items/{id}", menuController.DeleteFoodItem).Methods("DELETE")
	admin.HandleFunc("/announcements", announcementController.CreateAnnouncement).Methods("POST")
}

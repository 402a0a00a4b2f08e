package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/bistro-api/middleware"
	"github.com/kendall-kelly/bistro-api/models"
)

// RegisterRoutes mounts the API under v1. auth validates the bearer token and
// sets the token subject; every route except the public menu sits behind it.
func RegisterRoutes(v1 *gin.RouterGroup, auth gin.HandlerFunc) {
	// Public menu
	v1.GET("/products", ListProducts)
	v1.GET("/products/:id", GetProduct)

	authed := v1.Group("", auth)
	{
		// Profile creation runs before the user exists, so it skips LoadCurrentUser
		authed.POST("/users", CreateUser)
	}

	member := authed.Group("", middleware.LoadCurrentUser())
	{
		member.GET("/users/me", GetMyProfile)
		member.PUT("/users/me", UpdateMyProfile)

		member.POST("/orders/quote", QuoteOrder)
		member.POST("/orders", CreateOrder)
		member.GET("/orders", ListOrders)
		member.GET("/orders/number/:number", GetOrderByNumber)
		member.GET("/orders/:id", GetOrder)
		member.GET("/orders/:id/history", GetOrderHistory)
		member.POST("/orders/:id/cancel", CancelOrder)
		member.POST("/orders/:id/delay/approve", ApproveDelay)
		member.POST("/orders/:id/delay/reject", RejectDelay)
		member.GET("/orders/:id/payments", ListOrderPayments)
		member.POST("/orders/:id/payments", RecordPayment)

		member.GET("/fidelity/customers/:customerId/balance", GetFidelityBalance)
		member.GET("/fidelity/customers/:customerId/transactions", GetFidelityTransactions)
		member.GET("/fidelity/rules", ListEarningRules)
	}

	staff := member.Group("", middleware.RequireRole(models.RoleStaff, models.RoleAdmin))
	{
		staff.POST("/orders/:id/transition", TransitionOrder)
		staff.POST("/orders/:id/delay", ReportDelay)

		staff.GET("/kitchen/queue", GetKitchenQueue)
		staff.PUT("/kitchen/orders/:id/focus", FocusOrder)
		staff.DELETE("/kitchen/orders/:id/focus", ClearOrderFocus)

		staff.POST("/payments/:id/confirm", ConfirmPayment)
		staff.POST("/payments/:id/fail", FailPayment)
		staff.POST("/payments/:id/refund", RefundPayment)

		staff.POST("/products", CreateProduct)
		staff.PUT("/products/:id", UpdateProduct)
		staff.DELETE("/products/:id", DeleteProduct)
		staff.POST("/products/:id/image", UploadProductImage)
		staff.DELETE("/products/:id/image", DeleteProductImage)
	}

	admin := member.Group("", middleware.RequireRole(models.RoleAdmin))
	{
		admin.DELETE("/orders/:id", ArchiveOrder)

		admin.POST("/fidelity/customers/:customerId/adjust", AdjustFidelityPoints)
		admin.POST("/fidelity/rules", CreateEarningRule)

		admin.GET("/customers/:customerId/discount-rules", ListCustomerRules)
		admin.POST("/customers/:customerId/discount-rules", CreateCustomerRule)
		admin.DELETE("/discount-rules/:id", DeactivateCustomerRule)

		admin.GET("/promo-codes", ListPromoCodes)
		admin.POST("/promo-codes", CreatePromoCode)
		admin.DELETE("/promo-codes/:code", DeactivatePromoCode)
	}
}

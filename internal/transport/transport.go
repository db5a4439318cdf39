package transport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ds124wfegd/car-rental/internal/transport/middleware"
)

type Handlers struct {
	Cars         *CarHandler
	Reservations *ReservationHandler
	Operations   *OperationsHandler
	Webhook      *WebhookHandler
}

func InitRoutes(h Handlers, requestTimeout time.Duration) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())
	router.Use(middleware.Timeout(requestTimeout))

	api := router.Group("/api/v1")
	{
		// Provider callbacks authenticate with their own token.
		api.POST("/payments/webhook", h.Webhook.PaymentCallback)

		cars := api.Group("/cars")
		{
			cars.GET("/available", h.Cars.AvailableCars)
			cars.GET("/:id/check", h.Cars.CheckCar)
		}

		reservations := api.Group("/reservations", middleware.Actor())
		{
			reservations.POST("", h.Reservations.CreateReservation)
			reservations.GET("/my", h.Reservations.MyReservations)
			reservations.GET("/:id", h.Reservations.GetReservation)
			reservations.GET("/:id/status", h.Reservations.GetStatus)
			reservations.POST("/:id/payment", h.Reservations.ConfirmPayment)
			reservations.GET("/:id/payment", h.Reservations.GetPayment)
			reservations.DELETE("/:id", h.Reservations.CancelReservation)
		}

		operations := api.Group("/operations", middleware.Actor(), middleware.AdminOnly())
		{
			operations.GET("/today", h.Operations.Today)
			operations.GET("/summary", h.Operations.Summary)
		}

		admin := api.Group("/admin", middleware.Actor(), middleware.AdminOnly())
		{
			admin.POST("/reservations/:id/approve", h.Reservations.ApprovePayment)
			admin.POST("/reservations/:id/checkin", h.Operations.Checkin)
			admin.POST("/reservations/:id/checkout", h.Operations.Checkout)
			admin.POST("/expiry/sweep", h.Operations.SweepExpired)
			admin.GET("/tasks/failed", h.Operations.FailedTasks)
			admin.POST("/tasks/failed/:id/requeue", h.Operations.RequeueTask)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	return router
}

package routes

import (
	"net/http"

	"github.com/ArowuTest/raffle-engine/internal/config"
	"github.com/ArowuTest/raffle-engine/internal/handlers"
	"github.com/ArowuTest/raffle-engine/internal/middleware"
	"github.com/ArowuTest/raffle-engine/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HandlerDependencies holds the handlers wired into the router
type HandlerDependencies struct {
	AuthHandler   *handlers.AuthHandler
	RaffleHandler *handlers.RaffleHandler
	Tokens        *jwt.TokenService
}

// SetupRouter sets up the router
func SetupRouter(cfg *config.Config, deps HandlerDependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware())

	public := router.Group("/api/v1")
	{
		public.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		public.GET("/metrics", gin.WrapH(promhttp.Handler()))

		auth := public.Group("/auth")
		{
			auth.POST("/login", deps.AuthHandler.Login)
		}

		public.GET("/raffles", deps.RaffleHandler.ListRaffles)
		public.GET("/raffles/:id", deps.RaffleHandler.GetRaffle)
	}

	protected := router.Group("/api/v1")
	protected.Use(middleware.JWTAuthMiddleware(deps.Tokens))
	{
		raffles := protected.Group("/raffles")
		{
			raffles.POST("", deps.RaffleHandler.CreateRaffle)
			raffles.POST("/:id/process", deps.RaffleHandler.ProcessDeposits)
			raffles.POST("/:id/lease/release", deps.RaffleHandler.ReleaseLease)
		}
	}

	return router
}

package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"claude-relay/controller"
	"claude-relay/middleware"
)

// SetRouter registers all routes on the server.
func SetRouter(server *gin.Engine) {
	setRelayRouter(server)
	setApiRouter(server)
}

// setRelayRouter wires the client-facing Anthropic-compatible surface.
func setRelayRouter(server *gin.Engine) {
	v1 := server.Group("/v1")
	v1.Use(middleware.GatewayAuth())
	{
		v1.POST("/messages", controller.RelayMessages)
		v1.GET("/models", controller.ListModels)
	}
}

// setApiRouter wires the management surface used by operators and dashboards.
func setApiRouter(server *gin.Engine) {
	api := server.Group("/api")
	api.Use(cors.Default())
	{
		api.GET("/status", controller.GetStatus)

		account := api.Group("/account")
		account.Use(middleware.AdminAuth())
		{
			account.GET("", controller.GetAccounts)
			account.POST("", controller.AddAccount)
			account.PUT("/:id", controller.UpdateAccount)
			account.DELETE("/:id", controller.DeleteAccount)
			account.POST("/:id/reset", controller.ResetAccountErrors)
		}
	}
}

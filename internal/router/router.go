package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/call-service/internal/handler"
	"github.com/psds-microservice/call-service/pkg/constants"
)

// New builds the HTTP router.
func New(
	callHandler *handler.CallHandler,
	signalWS *handler.SignalWSHandler,
	health *handler.HealthHandler,
) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(constants.PathHealth, health.Health)
	r.GET(constants.PathReady, health.Ready)

	// REST calls
	calls := r.Group("/calls")
	{
		calls.POST("", callHandler.CreateCall)
		calls.GET("/:id", callHandler.GetCall)
		calls.DELETE("/:id", callHandler.HangupCall)
	}

	// WebSocket: presence notices and session-scoped signaling
	r.GET(constants.PathWSPresence, signalWS.ServePresence)
	r.GET(constants.PathWSCall, signalWS.ServeCall)

	return r
}

package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"ocppgateway/backend/services/ocpp-gateway/internal/http/handlers"
	"ocppgateway/backend/services/ocpp-gateway/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	ChargePoints  *handlers.ChargePointHandlers
	Commands      *handlers.CommandHandlers
	HealthHandler http.HandlerFunc
	OCPPHandler   http.HandlerFunc
	Logger        *zap.Logger
}

// NewRouter wires the control API and the station WebSocket endpoint.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, middleware.RequestLogger(deps.Logger), middleware.Recoverer(deps.Logger))

	r.Get("/health", deps.HealthHandler)

	r.HandleFunc("/ocpp/*", deps.OCPPHandler)

	r.Get("/charge-points", deps.ChargePoints.List)
	r.Route("/charge-points/{chargePointId}", func(r chi.Router) {
		r.Get("/", deps.ChargePoints.Get)
		r.Get("/connectors", deps.ChargePoints.Connectors)
		r.Get("/transactions", deps.ChargePoints.Transactions)
		r.Get("/transactions/{transactionId}", deps.ChargePoints.Transaction)
		r.Get("/transactions/{transactionId}/meters", deps.ChargePoints.Meters)
		r.Post("/trigger-meter", deps.Commands.TriggerMeter)
	})

	r.Post("/remote-start", deps.Commands.RemoteStart)
	r.Post("/remote-stop", deps.Commands.RemoteStop)

	return r
}

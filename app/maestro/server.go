package maestro

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/arcline/maestro/app/maestro/controller"
	"github.com/arcline/maestro/pkg/utils"
)

// NewServer attaches the HTTP status surface to the app.
func NewServer(app *App) error {
	ctler := controller.NewController(app.Service, app.Temporal, app.Logger)
	router := ctler.NewRouter()

	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := utils.Env("ADDR", ":3000")

	app.Server = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	app.Logger.Info("Starting server", zap.String("addr", addr))

	return nil
}

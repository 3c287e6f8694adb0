package query

import (
	"net/http"
	"time"

	"github.com/canopy-network/ammx/app/query/controller"
	"github.com/canopy-network/ammx/app/query/types"
	"github.com/canopy-network/ammx/pkg/utils"
	"go.uber.org/zap"
)

// NewServer builds the API server on ADDR (":3001" by default) behind the CORS middleware.
func NewServer(app *types.App) error {
	router, err := controller.NewController(app).NewRouter()
	if err != nil {
		return err
	}

	app.Server = &http.Server{
		Addr:              utils.Env("ADDR", ":3001"),
		Handler:           controller.WithCORS(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	app.Logger.Info("Starting server", zap.String("addr", app.Server.Addr))
	return nil
}

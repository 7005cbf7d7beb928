package logger

import (
	"os"

	"go.uber.org/zap"
)

// New builds the service logger. APP_ENV=production switches to the JSON
// production config; anything else gets the development console encoder.
func New() (*zap.Logger, error) {
	if os.Getenv("APP_ENV") == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

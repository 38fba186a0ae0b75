package main

import (
	stdLog "log"
	"time"

	"github.com/Astemirdum/library-circulation/circulation/app"
	"github.com/Astemirdum/library-circulation/circulation/config"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// @title Library circulation API
// @version 1.0
// @description Copies, reservations, loans and overdue billing.
// @BasePath /api/v1
func main() {
	if err := godotenv.Load(); err != nil {
		stdLog.Println("no .env file, using the environment: ", err)
	}
	cfg := config.NewConfig(
		config.WithLogLevel(zapcore.DebugLevel),
		config.WithWriteTimeout(time.Minute),
	)

	app.Run(cfg)
}

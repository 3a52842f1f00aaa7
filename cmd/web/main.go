package main

import (
	"github.com/joho/godotenv"

	"nimbus_backend/internal/app"
	"nimbus_backend/internal/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, relying on process environment")
	}
	app.Run()
}

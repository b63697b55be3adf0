package main

import (
	"os"

	"later/cmd/handlers"
	"later/internal/logger"
)

func main() {
	logger.Init()
	if err := handlers.Execute(); err != nil {
		os.Exit(1)
	}
}

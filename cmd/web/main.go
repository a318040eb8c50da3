package main

import (
	"log"

	"github.com/Patvscode/ARA6D/internal/app"
	"github.com/Patvscode/ARA6D/internal/config"
)

func main() {
	log.Println("starting ARA6D web server (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal("ara6d_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	log.Println("Note: calibration requires the feedback producer to be running")

	if err := app.RunWeb(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

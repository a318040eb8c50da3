package main

import (
	"log"

	"github.com/Patvscode/ARA6D/internal/app"
	"github.com/Patvscode/ARA6D/internal/config"
)

func main() {
	log.Println("starting ARA6D feedback producer")

	// Load configuration
	if err := config.InitGlobal("ara6d_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunFeedbackProducer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Patvscode/ARA6D/internal/config"
	"github.com/Patvscode/ARA6D/internal/feedback"
)

// RunConsole subscribes to the feedback topic and prints a joint status line
// at the configured interval until interrupted.
func RunConsole() error {
	cfg := config.Get()

	var latest feedback.Latest

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicFeedback, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var snap feedback.Snapshot
		if err := json.Unmarshal(msg.Payload(), &snap); err != nil {
			log.Printf("console: snapshot unmarshal error: %v", err)
			return
		}
		latest.Store(&snap)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicFeedback)

	ticker := time.NewTicker(time.Duration(cfg.ConsoleLogInterval) * time.Millisecond)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			snap := latest.Load()
			if snap == nil {
				fmt.Println("[ARM ] waiting for feedback...")
				continue
			}
			printSnapshot(snap)

		case <-sigCh:
			log.Println("console: shutting down")
			client.Disconnect(250)
			return nil
		}
	}
}

// printSnapshot renders one status line per joint, in name order.
func printSnapshot(snap *feedback.Snapshot) {
	names := make([]string, 0, len(snap.Joints))
	for name := range snap.Joints {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		j := snap.Joints[name]
		switch {
		case !j.HasData:
			fmt.Printf("[%-3s]  no data\n", name)
		case !j.Online:
			fmt.Printf("[%-3s]  OFFLINE  last=%7.2f°\n", name, j.Filtered)
		default:
			fmt.Printf("[%-3s]  %7.2f°  raw=%6.0f  cal=%7.2f°\n",
				name, j.Filtered, j.Raw, j.Calibrated)
		}
	}
}

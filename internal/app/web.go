package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/Patvscode/ARA6D/internal/config"
	"github.com/Patvscode/ARA6D/internal/feedback"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from this same process, so same-origin
	// checks add nothing on the bench network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RunWeb serves the joint dashboard: a JSON endpoint and a websocket stream
// fed from the feedback topic, plus a calibrate endpoint that forwards
// requests to the producer over MQTT.
func RunWeb() error {
	cfg := config.Get()

	var latest feedback.Latest

	// 1) Connect to MQTT broker
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDWeb)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	// 2) Subscribe to the feedback topic and keep the latest snapshot
	token := client.Subscribe(cfg.TopicFeedback, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var snap feedback.Snapshot
		if err := json.Unmarshal(msg.Payload(), &snap); err != nil {
			log.Printf("web: snapshot unmarshal error: %v", err)
			return
		}
		latest.Store(&snap)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: subscribed to %s", cfg.TopicFeedback)

	// 3) JSON API endpoint: latest joint snapshot
	http.HandleFunc("/api/joints", func(w http.ResponseWriter, r *http.Request) {
		snap := latest.Load()
		if snap == nil {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	// 4) Websocket stream: pushes each fresh snapshot to the browser
	http.HandleFunc("/ws/joints", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		var lastSent time.Time
		for range ticker.C {
			snap := latest.Load()
			if snap == nil || snap.Time.Equal(lastSent) {
				continue
			}
			if err := conn.WriteJSON(snap); err != nil {
				// Browser went away
				return
			}
			lastSent = snap.Time
		}
	})

	// 5) Calibrate endpoint: POST /api/calibrate?joint=J1
	http.HandleFunc("/api/calibrate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		joint := r.URL.Query().Get("joint")
		if joint == "" {
			http.Error(w, "joint query parameter is required", http.StatusBadRequest)
			return
		}

		token := client.Publish(cfg.TopicCalibrate, 0, false, joint)
		token.Wait()
		if token.Error() != nil {
			log.Printf("web: calibrate publish error: %v", token.Error())
			http.Error(w, "failed to forward calibration request", http.StatusBadGateway)
			return
		}
		log.Printf("web: forwarded calibration request for %s", joint)
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintf(w, "calibration of %s requested\n", joint)
	})

	// 6) Static files from ./web as the root
	fs := http.FileServer(http.Dir("web"))
	http.Handle("/", fs)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}

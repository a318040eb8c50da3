package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Patvscode/ARA6D/internal/config"
	"github.com/Patvscode/ARA6D/internal/feedback"
	"github.com/Patvscode/ARA6D/internal/sensors"
)

// evaluateInterval paces the liveness checks and retained re-publishes while
// the encoder link is silent.
const evaluateInterval = 100 * time.Millisecond

// RunFeedbackProducer reads encoder frames from the configured source, runs
// them through the feedback aggregator, and publishes joint snapshots as
// retained JSON to the feedback topic. Calibration requests arrive over MQTT
// as a joint name on the calibrate topic.
func RunFeedbackProducer() error {
	cfg := config.Get()
	channels, params := cfg.Topology()

	agg, err := feedback.NewAggregator(channels, params, cfg.RawScale)
	if err != nil {
		return fmt.Errorf("build aggregator: %w", err)
	}

	// Calibration offsets survive restarts; a missing file just means the
	// arm has never been zeroed.
	if err := agg.LoadCalibration(cfg.CalibrationFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("feedback: no calibration file at %s, starting with raw zero", cfg.CalibrationFile)
		} else {
			return fmt.Errorf("load calibration: %w", err)
		}
	} else {
		log.Printf("feedback: loaded calibration from %s", cfg.CalibrationFile)
	}

	src, err := openSource(cfg, channels)
	if err != nil {
		return err
	}
	defer src.Close()

	// ---- Connect to MQTT broker ----
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDFeedback)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("feedback: connected to MQTT broker at %s", cfg.MQTTBroker)

	// Calibration commands funnel into the sampling loop so all aggregator
	// access stays on one goroutine.
	calReq := make(chan string, 8)
	calToken := client.Subscribe(cfg.TopicCalibrate, 0, func(_ mqtt.Client, msg mqtt.Message) {
		joint := strings.TrimSpace(string(msg.Payload()))
		if joint == "" {
			return
		}
		select {
		case calReq <- joint:
		default:
			log.Printf("feedback: calibration request for %s dropped, queue full", joint)
		}
	})
	calToken.Wait()
	if calToken.Error() != nil {
		return calToken.Error()
	}
	log.Printf("feedback: subscribed to %s", cfg.TopicCalibrate)

	// Reader goroutine feeds raw chunks to the sampling loop.
	chunks := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			chunk, err := src.Next()
			if err != nil {
				readErr <- err
				return
			}
			chunks <- chunk
		}
	}()

	ticker := time.NewTicker(evaluateInterval)
	defer ticker.Stop()

	var latest feedback.Latest
	lastDropped := 0

	for {
		var snap *feedback.Snapshot

		select {
		case chunk := <-chunks:
			snap = agg.Sample(chunk, time.Now())

		case <-ticker.C:
			// Keeps timeout detection running through silence.
			snap = agg.Sample(nil, time.Now())

		case joint := <-calReq:
			if err := agg.CalibrateJoint(joint); err != nil {
				log.Printf("feedback: calibrate %s: %v", joint, err)
				continue
			}
			if err := agg.SaveCalibration(cfg.CalibrationFile); err != nil {
				log.Printf("feedback: save calibration: %v", err)
			}
			log.Printf("feedback: calibrated %s, current position is the new zero", joint)
			snap = agg.Sample(nil, time.Now())

		case err := <-readErr:
			return fmt.Errorf("encoder source: %w", err)
		}

		latest.Store(snap)

		if d := agg.DroppedFrames(); d != lastDropped {
			log.Printf("feedback: %d malformed frames dropped so far", d)
			lastDropped = d
		}

		payload, err := json.Marshal(snap)
		if err != nil {
			log.Printf("feedback: snapshot marshal error: %v", err)
			continue
		}
		token := client.Publish(cfg.TopicFeedback, 0, true, payload)
		token.Wait()
		if token.Error() != nil {
			log.Printf("feedback: publish error: %v", token.Error())
		}
	}
}

// openSource builds the frame source selected by FEEDBACK_SOURCE.
func openSource(cfg *config.Config, channels []feedback.Channel) (sensors.FrameSource, error) {
	interval := time.Duration(cfg.I2CSampleIntervalMS) * time.Millisecond

	switch cfg.FeedbackSource {
	case config.SourceSerial:
		src, err := sensors.NewSerialSource(cfg.EncoderSerialPort, uint(cfg.EncoderBaudRate))
		if err != nil {
			return nil, fmt.Errorf("open encoder serial port: %w", err)
		}
		log.Printf("feedback: reading encoder frames from %s at %d baud", cfg.EncoderSerialPort, cfg.EncoderBaudRate)
		return src, nil

	case config.SourceI2C:
		src, err := sensors.NewAS5600Source(cfg.I2CBus, cfg.MuxI2CAddr, channels, interval)
		if err != nil {
			return nil, fmt.Errorf("open AS5600 chain: %w", err)
		}
		log.Printf("feedback: sampling AS5600 chain behind mux 0x%02X every %s", cfg.MuxI2CAddr, interval)
		return src, nil

	case config.SourceMock:
		log.Println("feedback: using mock encoder source")
		return sensors.NewMockSource(channels, interval), nil

	default:
		return nil, fmt.Errorf("unknown feedback source %q", cfg.FeedbackSource)
	}
}

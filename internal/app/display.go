package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/Patvscode/ARA6D/internal/config"
	"github.com/Patvscode/ARA6D/internal/feedback"
)

// RunDisplay drives the arm's SSD1306 status screen: joint angles in two
// columns, refreshed from the feedback topic.
func RunDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	// ssd1306.NewI2C hardcodes I2C address 0x3C; cfg.DisplayI2CAddr cannot be
	// passed through this API.
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := showSplash(dev); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	var latest feedback.Latest

	// Connect to MQTT
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDDisplay)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicFeedback, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var snap feedback.Snapshot
		if err := json.Unmarshal(msg.Payload(), &snap); err != nil {
			log.Printf("display: snapshot unmarshal error: %v", err)
			return
		}
		latest.Store(&snap)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicFeedback)

	// Joint layout follows the configured topology so the screen order is
	// stable even though the snapshot map is not.
	names := make([]string, len(cfg.EncoderChannels))
	for i, spec := range cfg.EncoderChannels {
		names[i] = spec.Name
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for range ticker.C {
		if err := updateJointDisplay(dev, names, latest.Load()); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}

	return nil
}

func newDrawer() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

// updateJointDisplay renders up to eight joints in two columns of four.
func updateJointDisplay(dev *ssd1306.Dev, names []string, snap *feedback.Snapshot) error {
	img, drawer := newDrawer()

	if snap == nil {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("ARA6D arm"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
		return dev.Draw(dev.Bounds(), img, image.Point{})
	}

	for i, name := range names {
		if i >= 8 {
			break
		}
		x := (i / 4) * 64
		y := 13 * (i%4 + 1)

		j, ok := snap.Joints[name]
		var cell string
		switch {
		case !ok || !j.HasData:
			cell = fmt.Sprintf("%s  ---", name)
		case !j.Online:
			cell = fmt.Sprintf("%s !%4.0f", name, j.Filtered)
		default:
			cell = fmt.Sprintf("%s %5.1f", name, j.Filtered)
		}

		drawer.Dot = fixed.P(x, y)
		drawer.DrawBytes([]byte(cell))
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

func showSplash(dev *ssd1306.Dev) error {
	img, drawer := newDrawer()

	drawer.Dot = fixed.P(25, 26)
	drawer.DrawBytes([]byte("ARA6D"))

	drawer.Dot = fixed.P(5, 43)
	drawer.DrawBytes([]byte("joint feedback"))

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

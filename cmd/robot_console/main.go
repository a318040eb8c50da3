package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Patvscode/ARA6D/internal/config"
	"github.com/Patvscode/ARA6D/internal/gcode"
)

// Interactive operator console: move joints J1..J6 from a text menu. Talks
// to Moonraker directly through the gcode package.
func main() {
	if err := config.InitGlobal("ara6d_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()

	client := gcode.NewMoonrakerClient(cfg.MoonrakerHost, cfg.MoonrakerPort, cfg.MoonrakerAPIKey)
	in := bufio.NewReader(os.Stdin)

	for {
		fmt.Println("=== ARA6D Console ===")
		fmt.Println("1) Move joints (J1..J6)")
		fmt.Println("2) Send raw G-code")
		fmt.Println("q) Quit")

		switch choice := prompt(in, "Select an option: "); strings.ToLower(choice) {
		case "1":
			moveJointsInteractive(in, client, cfg.GCodeFeedRate)
		case "2":
			sendRawInteractive(in, client)
		case "q", "quit", "exit":
			fmt.Println("Exiting.")
			return
		default:
			fmt.Println("Unknown option, please choose again.")
			fmt.Println()
		}
	}
}

// moveJointsInteractive collects per-joint offsets and sends one move.
func moveJointsInteractive(in *bufio.Reader, client *gcode.MoonrakerClient, defaultFeed float64) {
	fmt.Println()
	fmt.Println("=== Joint Move ===")
	fmt.Println("Enter the amount to move each joint. Leave a field empty to skip it.")
	fmt.Println()

	var move gcode.Move
	for joint := 1; joint <= 6; joint++ {
		value, ok := promptFloat(in, fmt.Sprintf("J%d", joint))
		if !ok {
			continue
		}
		if err := move.SetJoint(joint, value); err != nil {
			fmt.Printf("  ! %v\n", err)
		}
	}

	if len(move.Axes) == 0 {
		fmt.Println("No joints specified, nothing to do.")
		fmt.Println()
		return
	}

	move.Relative = promptYesNo(in, "Use relative move (G91/G90)?", true)
	move.FakeHomeFirst = promptYesNo(in, "Send FAKE_HOME before move?", true)
	move.Feed = defaultFeed
	if feed, ok := promptFloat(in, fmt.Sprintf("Feed rate (mm/min, default %g)", defaultFeed)); ok {
		move.Feed = feed
	}

	commands, err := move.Commands()
	if err != nil {
		fmt.Printf("  ! %v\n", err)
		return
	}

	fmt.Println()
	fmt.Println("About to send:")
	for _, cmd := range commands {
		fmt.Println("  " + cmd)
	}
	if !promptYesNo(in, "Proceed with this move?", true) {
		fmt.Println("Move cancelled.")
		fmt.Println()
		return
	}

	sendScript(client, commands)
}

func sendRawInteractive(in *bufio.Reader, client *gcode.MoonrakerClient) {
	line := prompt(in, "G-code line: ")
	if line == "" {
		fmt.Println("Nothing to send.")
		fmt.Println()
		return
	}
	sendScript(client, []string{line})
}

func sendScript(client *gcode.MoonrakerClient, commands []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.SendScript(ctx, commands); err != nil {
		fmt.Printf("\n! Error sending G-code: %v\n\n", err)
		return
	}
	fmt.Println()
	fmt.Println("Move command sent.")
	fmt.Println()
}

func prompt(in *bufio.Reader, label string) string {
	fmt.Print(label)
	line, err := in.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}

// promptFloat asks for a number; blank input means "skip".
func promptFloat(in *bufio.Reader, label string) (float64, bool) {
	for {
		raw := prompt(in, label+" (blank for none): ")
		if raw == "" {
			return 0, false
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fmt.Println("  ! Please enter a number or leave blank.")
			continue
		}
		return value, true
	}
}

func promptYesNo(in *bufio.Reader, label string, def bool) bool {
	suffix := " [Y/n]: "
	if !def {
		suffix = " [y/N]: "
	}
	for {
		switch strings.ToLower(prompt(in, label+suffix)) {
		case "":
			return def
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		fmt.Println("  ! Please answer y or n (or press Enter for default).")
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/Patvscode/ARA6D/internal/gcode"
)

var (
	host   = flag.String("host", "localhost", "Moonraker host")
	port   = flag.Int("port", 7125, "Moonraker port")
	apiKey = flag.String("api-key", "", "Moonraker API key (optional)")

	serialPort = flag.String("serial-port", "", "send over this serial port instead of Moonraker")
	baud       = flag.Uint("baud", 115200, "controller serial baud rate")
	lineEnding = flag.String("line-ending", "lf", "serial line ending: lf, cr or crlf")
	wait       = flag.Duration("wait", 100*time.Millisecond, "pause between serial commands")

	command = flag.String("command", "", "raw G-code to send instead of a joint move (';' separates lines)")

	feed         = flag.Float64("feed", 400, "feed rate in mm/min")
	relative     = flag.Bool("relative", false, "treat values as offsets (G91/G90 wrapped)")
	fakeHome     = flag.Bool("fake-home-first", false, "prepend FAKE_HOME so Klipper accepts the move")
	dryRun       = flag.Bool("dry-run", false, "print the G-code instead of sending it")
	verbose      = flag.Bool("verbose", false, "echo serial traffic")
)

// jointFlags and axisFlags register a value flag per joint and axis; only
// the ones actually passed on the command line end up in the move.
var (
	jointFlags = map[string]*float64{}
	axisFlags  = map[string]*float64{}
)

func init() {
	for j := 1; j <= 6; j++ {
		name := "j" + strconv.Itoa(j)
		jointFlags[name] = flag.Float64(name, 0, fmt.Sprintf("target for joint J%d", j))
	}
	for _, axis := range []string{"x", "y", "z", "a", "b", "c"} {
		axisFlags[axis] = flag.Float64(axis, 0, "target for axis "+strings.ToUpper(axis))
	}
}

func main() {
	flag.Parse()

	commands, err := buildCommands()
	if err != nil {
		log.Fatalf("joint_sender: %v", err)
	}

	if *dryRun {
		for _, cmd := range commands {
			fmt.Println(cmd)
		}
		return
	}

	if *serialPort != "" {
		if err := sendSerial(commands); err != nil {
			log.Fatalf("joint_sender: %v", err)
		}
		return
	}

	client := gcode.NewMoonrakerClient(*host, *port, *apiKey)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.SendScript(ctx, commands); err != nil {
		log.Fatalf("joint_sender: %v", err)
	}
	log.Printf("sent %d command(s) to %s", len(commands), client.BaseURL)
}

// buildCommands turns the flags into G-code: either the raw --command lines
// or a single move assembled from the joint/axis flags that were set.
func buildCommands() ([]string, error) {
	if *command != "" {
		var commands []string
		for _, line := range strings.Split(*command, ";") {
			if line = strings.TrimSpace(line); line != "" {
				commands = append(commands, line)
			}
		}
		if len(commands) == 0 {
			return nil, fmt.Errorf("--command contained no G-code")
		}
		return commands, nil
	}

	move := gcode.Move{
		Feed:          *feed,
		Relative:      *relative,
		FakeHomeFirst: *fakeHome,
	}

	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		if v, ok := axisFlags[f.Name]; ok {
			move.SetAxis(gcode.Axis(strings.ToUpper(f.Name)), *v)
		}
		if v, ok := jointFlags[f.Name]; ok {
			joint, _ := strconv.Atoi(strings.TrimPrefix(f.Name, "j"))
			if err := move.SetJoint(joint, *v); err != nil && flagErr == nil {
				flagErr = err
			}
		}
	})
	if flagErr != nil {
		return nil, flagErr
	}

	return move.Commands()
}

func sendSerial(commands []string) error {
	ending, ok := gcode.LineEndings[*lineEnding]
	if !ok {
		return fmt.Errorf("unknown line ending %q (use lf, cr or crlf)", *lineEnding)
	}

	sender, err := gcode.NewSerialSender(*serialPort, *baud)
	if err != nil {
		return err
	}
	defer sender.Close()

	sender.LineEnding = ending
	sender.Wait = *wait
	sender.Verbose = *verbose
	return sender.Send(commands)
}

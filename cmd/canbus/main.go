package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	canbus "github.com/samsamfire/gocanbus"
	"github.com/samsamfire/gocanbus/internal/version"
	"github.com/samsamfire/gocanbus/pkg/can"
	"github.com/samsamfire/gocanbus/pkg/can/pcan"
	"github.com/samsamfire/gocanbus/pkg/config"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const DEFAULT_CAN_INTERFACE = "pcan"
const DEFAULT_CAN_CHANNEL = "PCAN_USBBUS1"

// Repeatable key=value flag
type params map[string]any

func (p params) String() string {
	return fmt.Sprint(map[string]any(p))
}

func (p params) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok || key == "" {
		return fmt.Errorf("expecting key=value, got %q", value)
	}
	p[key] = val
	return nil
}

func main() {
	canInterface := flag.String("i", "", "interface e.g. pcan,serialcan,socketcan,virtual,loopback (default "+DEFAULT_CAN_INTERFACE+")")
	channel := flag.String("c", "", "channel e.g. PCAN_USBBUS1,/dev/ttyUSB0,can0,localhost:18000 (default "+DEFAULT_CAN_CHANNEL+")")
	bitrate := flag.Int("b", 0, "bitrate in bit/s")
	section := flag.String("config", "", "section of the configuration file to use, e.g. default")
	extra := params{}
	flag.Var(extra, "p", "backend parameter key=value, can be repeated")
	send := flag.String("send", "", "frame to send, e.g. 123#DEADBEEF or 1ABCDEF0#R")
	dump := flag.Duration("dump", 0, "print received frames for the given duration, -1s until interrupted")
	status := flag.Bool("status", false, "print the status of a pcan channel")
	list := flag.Bool("list", false, "list known interfaces")
	logFile := flag.String("log", "", "write logs to a rotating file instead of stderr")
	verbose := flag.Bool("v", false, "debug logs")
	showVersion := flag.Bool("version", false, "print version")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Long())
		return
	}
	if *list {
		for _, name := range can.Interfaces() {
			locator, _ := can.Lookup(name)
			_, err := can.Resolve(name)
			fmt.Printf("%-12s %-50s linked=%v\n", name, locator, err == nil)
		}
		return
	}

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	if *logFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   *logFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		defer rotating.Close()
		log.SetOutput(rotating)
	}

	busConfig, err := loadConfig(*section, *canInterface, *channel, *bitrate, extra)
	if err != nil {
		log.Fatal(err)
	}
	bus, err := canbus.NewFromBusConfig(busConfig)
	if err != nil {
		log.Fatalf("failed to create %v bus on %v : %v", busConfig.Interface, busConfig.Channel, err)
	}
	err = can.Use(bus, func(bus can.Bus) error {
		return run(bus, *status, *send, *dump)
	})
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

// loadConfig merges the configuration file, if any, with the command line
func loadConfig(section string, canInterface string, channel string, bitrate int, extra params) (*config.BusConfig, error) {
	busConfig := &config.BusConfig{Params: map[string]any{}}
	if section != "" || canInterface == "" {
		loaded, err := config.LoadDefault(section)
		if err != nil {
			return nil, err
		}
		busConfig = loaded
	}
	if canInterface != "" {
		busConfig.Interface = canInterface
	}
	if channel != "" {
		busConfig.Channel = channel
	}
	if bitrate != 0 {
		busConfig.Bitrate = bitrate
	}
	if busConfig.Interface == "" {
		busConfig.Interface = DEFAULT_CAN_INTERFACE
	}
	if busConfig.Channel == "" && busConfig.Interface == DEFAULT_CAN_INTERFACE {
		busConfig.Channel = DEFAULT_CAN_CHANNEL
	}
	for k, v := range extra {
		busConfig.Params[k] = v
	}
	return busConfig, nil
}

func run(bus can.Bus, status bool, send string, dump time.Duration) error {
	if status {
		pcanBus, ok := bus.(*pcan.Bus)
		if !ok {
			return errors.New("status is only available on pcan interfaces")
		}
		code, err := pcanBus.Status()
		if err != nil {
			return err
		}
		fmt.Printf("status 0x%X : %v\n", uint32(code), pcanBus.ErrorText(code))
	}
	if send != "" {
		frame, err := parseFrame(send)
		if err != nil {
			return err
		}
		if err := bus.Send(frame, time.Second); err != nil {
			return err
		}
		fmt.Printf("sent %v\n", frame)
	}
	if dump != 0 {
		return dumpFrames(bus, dump)
	}
	return nil
}

func dumpFrames(bus can.Bus, duration time.Duration) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)
	deadline := time.Now().Add(duration)
	for duration < 0 || time.Now().Before(deadline) {
		select {
		case <-interrupt:
			return nil
		default:
		}
		frame, err := bus.Recv(100 * time.Millisecond)
		if errors.Is(err, can.ErrTimeout) {
			continue
		}
		if err != nil {
			return err
		}
		fmt.Printf("%v  %v\n", time.Now().Format("15:04:05.000"), frame)
	}
	return nil
}

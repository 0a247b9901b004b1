// Command dishwasher runs the dishwasher controller: it reads the sensors,
// sequences the wash programs, drives the relays and reports its state to
// the console and MQTT.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/dishwasher/internal/automat"
	"github.com/sweeney/dishwasher/internal/component"
	"github.com/sweeney/dishwasher/internal/config"
	"github.com/sweeney/dishwasher/internal/dishwasher"
	"github.com/sweeney/dishwasher/internal/display"
	"github.com/sweeney/dishwasher/internal/event"
	"github.com/sweeney/dishwasher/internal/gpio"
	"github.com/sweeney/dishwasher/internal/input"
	"github.com/sweeney/dishwasher/internal/logging"
	"github.com/sweeney/dishwasher/internal/logic"
	"github.com/sweeney/dishwasher/internal/mqtt"
	"github.com/sweeney/dishwasher/internal/output"
	"github.com/sweeney/dishwasher/internal/staticerror"
	"github.com/sweeney/dishwasher/internal/status"
	"github.com/sweeney/dishwasher/internal/telemetry"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	simulate := flag.Bool("simulate", false, "Simulate the appliance instead of using GPIO")
	timeFactor := flag.Int("time-factor", 0, "Timer speed-up factor (0 keeps the configured value)")
	printInputs := flag.Bool("print-inputs", false, "Print the sensor inputs and exit")

	flag.Parse()

	if err := run(*configPath, *simulate, *timeFactor, *printInputs); err != nil {
		logging.Default().Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, simulate bool, timeFactor int, printInputs bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if simulate {
		cfg.Input.Simulate = true
	}
	if timeFactor > 0 {
		cfg.Runtime.TimeFactor = timeFactor
	}
	hardware := cfg.GPIO.Enabled && !cfg.Input.Simulate

	log := logging.New(cfg.Logging, version)

	var deps deps
	if hardware || printInputs {
		reader, err := gpio.NewRealReader(cfg.GPIO.Chip, cfg.GPIO.Inputs)
		if err != nil {
			return fmt.Errorf("init gpio inputs: %w", err)
		}
		defer reader.Close()
		deps.reader = reader
	}

	// Print inputs mode
	if printInputs {
		in, err := deps.reader.Read()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		fmt.Println(formatInputs(in))
		return nil
	}

	if hardware {
		pins := cfg.GPIO.Outputs.Pins()
		writer, err := gpio.NewRealWriter(cfg.GPIO.Chip, pins[:])
		if err != nil {
			return fmt.Errorf("init gpio outputs: %w", err)
		}
		defer writer.Close()
		deps.writer = writer
	} else {
		deps.console = os.Stdout
	}

	var publisher *mqtt.RealPublisher
	if cfg.MQTT.Enabled {
		publisher, err = mqtt.NewRealPublisher(cfg.MQTT, log)
		if err != nil {
			// The appliance must keep working without the broker.
			log.Warn("mqtt disabled", "error", err)
		} else {
			defer publisher.Close()
			deps.publisher = publisher
		}
	}

	a, err := assemble(cfg, deps, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	quit := make(chan struct{})
	a.start(ctx)
	if publisher != nil {
		if err := publisher.OnCommand(a.hub.Inject); err != nil {
			log.Warn("command topic unavailable", "error", err)
		}
	}
	if !hardware {
		go func() {
			if err := readKeys(os.Stdin, a.hub.Inject); err != nil {
				log.Warn("keyboard", "error", err)
				return
			}
			close(quit)
		}()
	}

	log.Info("started",
		"version", version,
		"simulated", !hardware,
		"time_factor", cfg.Runtime.TimeFactor,
		"mqtt", deps.publisher != nil,
	)

	reason := waitForShutdown(sigCh, quit)
	log.Info("shutting down", "reason", reason)
	a.stop(reason)
	return nil
}

// deps are the outside-world collaborators. Nil fields select the
// simulated or disabled variant.
type deps struct {
	reader    gpio.Reader
	writer    gpio.Writer
	publisher mqtt.Publisher
	console   io.Writer
	runtime   component.Options // base options; tests set Clock
}

// app is the assembled controller.
type app struct {
	hub        *dishwasher.Hub
	tracker    *status.Tracker
	telemetry  *telemetry.Telemetry
	timeFactor int32
}

func assemble(cfg *config.Config, d deps, log *logging.Logger) (*app, error) {
	opts := d.runtime
	opts.QueueSize = cfg.Runtime.QueueSize
	opts.TimerCapacity = cfg.Runtime.TimerCapacity
	opts.Watchdog = cfg.Runtime.Watchdog
	opts.Logger = log

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:      cfg.Input.Poll.Milliseconds(),
		DebounceMs:  cfg.Input.Debounce.Milliseconds(),
		HeartbeatMs: cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		Simulated:   d.reader == nil,
	})

	a := &app{
		hub:        dishwasher.New(log),
		tracker:    tracker,
		timeFactor: int32(cfg.Runtime.TimeFactor),
	}

	members := []dishwasher.Member{
		input.New(cfg, d.reader, opts),
		logic.New(cfg, opts),
		automat.New(cfg, opts),
		output.New(d.writer, opts),
		staticerror.New(cfg, opts),
		display.New(tracker, d.console, opts),
	}
	if d.publisher != nil {
		a.telemetry = telemetry.New(d.publisher, tracker, cfg.MQTT.Heartbeat, opts)
		members = append(members, a.telemetry)
	}
	for _, m := range members {
		if err := a.hub.Add(m); err != nil {
			return nil, fmt.Errorf("add component: %w", err)
		}
	}
	return a, nil
}

func (a *app) start(ctx context.Context) {
	a.hub.Start(ctx)
	if a.timeFactor != 1 {
		a.hub.SetTimeFactor(a.timeFactor)
	}
	if a.telemetry != nil {
		a.telemetry.PublishStartup()
	}
}

func (a *app) stop(reason string) {
	if a.telemetry != nil {
		a.telemetry.PublishShutdown(reason)
	}
	a.hub.Stop()
}

// waitForShutdown blocks until a signal arrives or quit is closed and
// returns the shutdown reason.
func waitForShutdown(sig <-chan os.Signal, quit <-chan struct{}) string {
	select {
	case s := <-sig:
		return signalName(s)
	case <-quit:
		return "QUIT"
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// readKeys injects a KeyPressed event for every character read from r.
// It returns nil when the quit key is read and an error otherwise.
func readKeys(r io.Reader, inject func(event.Event)) error {
	br := bufio.NewReader(r)
	for {
		key, _, err := br.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("input closed before %q", input.KeyQuit)
			}
			return fmt.Errorf("read keys: %w", err)
		}
		switch key {
		case input.KeyQuit:
			return nil
		case '\n', '\r', ' ', '\t':
			continue
		}
		inject(event.New(event.KeyPressed, key))
	}
}

func formatInputs(in gpio.Inputs) string {
	return fmt.Sprintf("door: %s, salt: %s, spray contact: %s, leak: %s",
		onOff(in.DoorClosed, "CLOSED", "OPEN"),
		onOff(in.Salt, "OK", "EMPTY"),
		onOff(in.SprayContact, "ON", "OFF"),
		onOff(in.Leak, "LEAK", "DRY"),
	)
}

func onOff(v bool, on, off string) string {
	if v {
		return on
	}
	return off
}

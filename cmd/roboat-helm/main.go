// Command roboat-helm runs the vessel's subsystem controllers on one polling
// loop and publishes their state to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/roboat-helm/internal/config"
	"github.com/sweeney/roboat-helm/internal/fsm"
	"github.com/sweeney/roboat-helm/internal/mqtt"
	"github.com/sweeney/roboat-helm/internal/status"
	"github.com/sweeney/roboat-helm/internal/web"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (built-in defaults if empty)")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", `HTTP status address (overrides config, "off" disables)`)
	printConfig := flag.Bool("print-config", false, "Print the effective configuration and exit")

	flag.Parse()

	cfg, err := loadConfig(*configPath, *broker, *httpAddr)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if *printConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			log.Fatalf("fatal: marshal config: %v", err)
		}
		os.Stdout.Write(out)
		return
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(path, broker, httpAddr string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if broker != "" {
		cfg.MQTT.Broker = broker
	}
	switch httpAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = httpAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cfg *config.Config) error {
	h, release, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer release()
	h.recordCaptainLines()

	publisher := mqtt.NewRealPublisher(cfg.MQTT)
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:      cfg.Timing.Tick.Milliseconds(),
		ReportMs:    cfg.Timing.Report.Milliseconds(),
		HeartbeatMs: cfg.Timing.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
		LogDir:      cfg.Log.Dir,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	h.updateTracker(tracker)

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	log.Printf("started: tick=%v report=%v broker=%s heartbeat=%v",
		cfg.Timing.Tick, cfg.Timing.Report, cfg.MQTT.Broker, cfg.Timing.Heartbeat)

	ticker := time.NewTicker(cfg.Timing.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	boot := time.Now()
	clock := func() fsm.Micros { return fsm.MicrosOf(time.Since(boot)) }

	return runLoop(h, publisher, publisher, tracker, cfg.Timing, clock, time.Now, ticker.C, sigCh)
}

// loop carries the report and heartbeat schedule between ticks.
type loop struct {
	h          *helm
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	timing     config.Timing
	wall       func() time.Time

	started       bool
	lastReport    fsm.Micros
	lastHeartbeat fsm.Micros
	logBlocked    bool
}

func runLoop(h *helm, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, timing config.Timing, clock func() fsm.Micros, wall func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	l := &loop{
		h:          h,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		timing:     timing,
		wall:       wall,
	}
	h.onTransition(l.transition)

	for {
		select {
		case s := <-sig:
			l.shutdown(s)
			return nil

		case <-tick:
			l.step(clock())
		}
	}
}

func (l *loop) transition(tr fsm.Transition) {
	if err := l.publisher.PublishTransition(l.wall(), tr); err != nil {
		log.Printf("publish error: %v", err)
		// Don't crash on publish failure
	}
	if l.tracker != nil {
		l.tracker.RecordTransition(tr)
	}
}

func (l *loop) step(now fsm.Micros) {
	l.h.advance(now)

	if !l.started {
		l.started = true
		l.lastHeartbeat = now
		l.report(now)
	} else if now-l.lastReport >= fsm.MicrosOf(l.timing.Report) {
		l.report(now)
	}

	if hb := fsm.MicrosOf(l.timing.Heartbeat); hb > 0 && now-l.lastHeartbeat >= hb {
		l.lastHeartbeat = now
		l.heartbeat(now)
	}

	// Update status tracker for HTTP consumers
	if l.tracker != nil {
		l.h.updateTracker(l.tracker)
		if l.mqttStatus != nil {
			l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
		}
	}
}

// report publishes every subsystem's record and appends one row to the SD log.
func (l *loop) report(now fsm.Micros) {
	l.lastReport = now
	ts := l.wall()
	lines := l.h.lines()
	for _, rl := range lines {
		if err := l.publisher.PublishLine(ts, rl.Machine, rl.Line); err != nil {
			log.Printf("publish error: %v", err)
		}
	}

	err := l.h.log.Writeln(row(lines))
	switch {
	case err != nil && !l.logBlocked:
		log.Printf("log: rows not recorded: %v", err)
		l.logBlocked = true
	case err == nil && l.logBlocked:
		log.Printf("log: recording rows again")
		l.logBlocked = false
	}
}

func (l *loop) heartbeat(now fsm.Micros) {
	log.Printf("heartbeat: uptime=%v", now.Duration().Truncate(time.Second))

	hbEvent := mqtt.SystemEvent{
		Timestamp: l.wall(),
		Event:     "HEARTBEAT",
	}
	if l.tracker != nil {
		if l.mqttStatus != nil {
			l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
		}
		// Refresh network info for heartbeat
		if net := readNetworkInfo(); net != nil {
			l.tracker.SetNetwork(net)
		}
		l.h.updateTracker(l.tracker)
		hbEvent.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "HEARTBEAT", "")
	}
	if err := l.publisher.PublishSystem(hbEvent); err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
}

func (l *loop) shutdown(s os.Signal) {
	log.Printf("received %v, shutting down", s)
	signalName := "UNKNOWN"
	if s == syscall.SIGINT {
		signalName = "SIGINT"
	} else if s == syscall.SIGTERM {
		signalName = "SIGTERM"
	}
	event := mqtt.SystemEvent{
		Timestamp: l.wall(),
		Event:     "SHUTDOWN",
		Reason:    signalName,
		Retained:  true,
	}
	if l.tracker != nil {
		if l.mqttStatus != nil {
			l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
		}
		snap := l.tracker.Snapshot()
		event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

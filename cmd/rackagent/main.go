// Command rackagent runs one rack device against the broker. Without real
// hardware attached it runs in sim mode, where the lock and LEDs print to
// stdout and the tag reader and ranger are driven from stdin:
//
//	tag <value>    scan a card or bike tag
//	dist <cm>      set the ranger reading
//	drop           make the ranger fail its reads
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alecthomas/kong"

	"github.com/smartpedals/rackshare-backend/agent"
	"github.com/smartpedals/rackshare-backend/internal/mqtt"
)

var cli = struct {
	BrokerURL string `name:"broker-url" env:"BROKER_URL" default:"tcp://localhost:1883"`
	RackID    string `name:"rack-id" env:"RACK_ID" required:""`

	PollInterval      time.Duration `name:"poll-interval" env:"POLL_INTERVAL" default:"50ms"`
	HeartbeatInterval time.Duration `name:"heartbeat-interval" env:"HEARTBEAT_INTERVAL" default:"30s"`

	AuthTimeout   time.Duration `name:"auth-timeout" env:"AUTH_TIMEOUT" default:"1s"`
	FlowTimeout   time.Duration `name:"flow-timeout" env:"FLOW_TIMEOUT" default:"30s"`
	RelockTimeout time.Duration `name:"relock-timeout" env:"RELOCK_TIMEOUT" default:"30s"`

	NearCM float64 `name:"near-cm" env:"NEAR_CM" default:"3.0"`
	FarCM  float64 `name:"far-cm" env:"FAR_CM" default:"11.0"`

	StrictUserMatch bool `name:"strict-user-match" env:"STRICT_USER_MATCH"`
}{}

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("unexpected error: %v", err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	kong.Parse(&cli)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	channel, err := mqtt.NewClient(cli.BrokerURL, "rack-"+cli.RackID, logger)
	if err != nil {
		return err
	}
	defer channel.Close()

	cfg := agent.Config{
		RackID:            cli.RackID,
		PollInterval:      cli.PollInterval,
		HeartbeatInterval: cli.HeartbeatInterval,
		Timeouts: agent.Timeouts{
			AuthResponse:  cli.AuthTimeout,
			Placement:     cli.FlowTimeout,
			Removal:       cli.FlowTimeout,
			RelockConfirm: cli.RelockTimeout,
		},
		NearCM:          cli.NearCM,
		FarCM:           cli.FarCM,
		StrictUserMatch: cli.StrictUserMatch,
	}

	lock := &simLock{}
	sensor := &simSensor{cm: cli.FarCM + 10, ok: true}
	tags := &simTagReader{}
	go readConsole(ctx, sensor, tags)

	a := agent.New(cfg, lock, sensor, tags, simIndicator{}, channel, logger)
	return a.Run(ctx)
}

// readConsole feeds the sim hardware from stdin, one command per line.
func readConsole(ctx context.Context, sensor *simSensor, tags *simTagReader) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "tag":
			if len(fields) == 2 {
				tags.scan(fields[1])
			}
		case "dist":
			if len(fields) == 2 {
				if cm, err := strconv.ParseFloat(fields[1], 64); err == nil {
					sensor.set(cm, true)
				}
			}
		case "drop":
			sensor.set(0, false)
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}

type simLock struct{}

func (simLock) SetLocked(locked bool) {
	if locked {
		fmt.Println("[lock] engaged")
		return
	}
	fmt.Println("[lock] released")
}

type simSensor struct {
	mu sync.Mutex
	cm float64
	ok bool
}

func (s *simSensor) set(cm float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cm, s.ok = cm, ok
}

func (s *simSensor) ReadDistance() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cm, s.ok
}

type simTagReader struct {
	mu      sync.Mutex
	pending string
}

func (t *simTagReader) scan(tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = tag
}

func (t *simTagReader) ReadTag() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	tag := t.pending
	t.pending = ""
	return tag
}

type simIndicator struct{}

func (simIndicator) ShowLocked()   { fmt.Println("[led] red") }
func (simIndicator) ShowUnlocked() { fmt.Println("[led] green") }
func (simIndicator) ShowGuide()    { fmt.Println("[led] green blink") }

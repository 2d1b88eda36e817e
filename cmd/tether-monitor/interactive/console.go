// Package interactive provides the interactive command-line interface
// for tether-monitor.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tether-alarm/tether-go/pkg/alarm"
	"github.com/tether-alarm/tether-go/pkg/connection"
	"github.com/tether-alarm/tether-go/pkg/zone"
)

// Session is the part of the alarm coordinator the console drives.
// *alarm.Coordinator implements it.
type Session interface {
	Connect(ctx context.Context, p connection.Peripheral) error
	Disconnect(ctx context.Context) error
	Reconnect(ctx context.Context) error
	TestAlarm(ctx context.Context) error
	StopAlarm(ctx context.Context) error
	Tracker() *connection.Tracker
	Thresholds() connection.Thresholds
	LastOutcome() alarm.Outcome
}

// Options wire a Console.
type Options struct {
	Session Session

	// Zones is edited by the zone commands. Required.
	Zones *zone.Manager

	// Location supplies the position for "zone add" without coordinates.
	// Optional.
	Location alarm.LocationProvider

	// Resolve turns an address into a peripheral handle. Required.
	Resolve func(ctx context.Context, address string) (connection.Peripheral, error)

	// Devices lists paired devices for the "devices" command. Optional.
	Devices func(ctx context.Context) ([]string, error)

	// OnConnect is called after a successful connect, e.g. to remember the
	// device. Optional.
	OnConnect func(p connection.Peripheral)

	// DefaultAddress is used by "connect" without arguments.
	DefaultAddress string
}

// Console is the interactive command loop.
type Console struct {
	opts Options
	out  io.Writer
	rl   *readline.Instance
}

// New creates a console reading from the terminal.
func New(opts Options) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tether> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{opts: opts, out: rl.Stdout(), rl: rl}, nil
}

// NewWithWriter creates a console without a terminal. Lines are fed
// through Execute.
func NewWithWriter(opts Options, out io.Writer) *Console {
	return &Console{opts: opts, out: out}
}

// Stdout returns a writer that coordinates with the prompt. Use it for log
// output.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// Run reads commands until quit, EOF or ctx ends.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	if c.rl == nil {
		return
	}
	defer c.rl.Close()

	c.printHelp()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if c.Execute(ctx, line) {
			cancel()
			return
		}
	}
}

// Execute runs one command line. It reports true when the user asked to
// quit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "status", "s":
		c.cmdStatus()

	case "connect", "c":
		c.cmdConnect(ctx, args)

	case "disconnect", "d":
		c.report("Disconnected", c.opts.Session.Disconnect(ctx))

	case "reconnect", "r":
		fmt.Fprintln(c.out, "Reconnecting...")
		c.report("Reconnected", c.opts.Session.Reconnect(ctx))

	case "test":
		c.report("Test alarm sounding (use 'stop' to silence)", c.opts.Session.TestAlarm(ctx))

	case "stop":
		c.report("Alarm stopped", c.opts.Session.StopAlarm(ctx))

	case "devices":
		c.cmdDevices(ctx)

	case "zones", "z":
		c.cmdZones()

	case "zone":
		c.cmdZone(ctx, args)

	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return true

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) report(ok string, err error) {
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, ok)
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Tether Commands:
  Connection:
    connect [address]  - Connect to a device and start monitoring
    disconnect         - Stop monitoring and disconnect
    reconnect          - Retry after a failed or suppressed loss
    devices            - List paired devices
    status             - Show connection and alarm status

  Alarm:
    test               - Sound a test alarm
    stop               - Silence the alarm

  Safe Zones:
    zones                            - List safe zones
    zone add <name> <radius-m> [lat lon]
                                     - Add a zone (current location if lat/lon omitted)
    zone rm <id>                     - Remove a zone
    zone enable <id>                 - Enable a zone
    zone disable <id>                - Disable a zone

  General:
    help               - Show this help
    quit               - Exit`)
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("connect"),
		readline.PcItem("disconnect"),
		readline.PcItem("reconnect"),
		readline.PcItem("devices"),
		readline.PcItem("status"),
		readline.PcItem("test"),
		readline.PcItem("stop"),
		readline.PcItem("zones"),
		readline.PcItem("zone",
			readline.PcItem("add"),
			readline.PcItem("rm"),
			readline.PcItem("enable"),
			readline.PcItem("disable"),
		),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

package interactive

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/tether-alarm/tether-go/pkg/alarm"
	"github.com/tether-alarm/tether-go/pkg/zone"
)

func (c *Console) cmdConnect(ctx context.Context, args []string) {
	address := c.opts.DefaultAddress
	if len(args) > 0 {
		address = args[0]
	}
	if address == "" {
		fmt.Fprintln(c.out, "Usage: connect <address>")
		return
	}

	p, err := c.opts.Resolve(ctx, address)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Connecting to %s...\n", address)
	if err := c.opts.Session.Connect(ctx, p); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if c.opts.OnConnect != nil {
		c.opts.OnConnect(p)
	}
	fmt.Fprintf(c.out, "Connected to %s, monitoring every %v\n", address, c.opts.Session.Thresholds().ProbeInterval)
}

func (c *Console) cmdStatus() {
	st := c.opts.Session.Tracker().Snapshot()

	fmt.Fprintln(c.out, "\nConnection:")
	fmt.Fprintf(c.out, "  Status:        %s\n", st.Status)
	if st.StatusMessage != "" {
		fmt.Fprintf(c.out, "  Message:       %s\n", st.StatusMessage)
	}
	if st.Peripheral != nil {
		fmt.Fprintf(c.out, "  Device:        %s\n", st.Peripheral.ID())
	}
	if !st.LastProbeTime.IsZero() {
		fmt.Fprintf(c.out, "  Last probe:    %s ago\n", time.Since(st.LastProbeTime).Round(time.Second))
		fmt.Fprintf(c.out, "  Signal:        %d dBm\n", st.SignalDbm)
	}
	fmt.Fprintf(c.out, "  Failed probes: %d\n", st.FailedProbeCount)

	fmt.Fprintln(c.out, "\nAlarm:")
	fmt.Fprintf(c.out, "  Active:        %v\n", st.AlarmActive)
	out := c.opts.Session.LastOutcome()
	if out.Decision != alarm.DecisionNone {
		fmt.Fprintf(c.out, "  Last decision: %s (%s)\n", out.Decision, out.Reason)
		if out.ZoneName != "" {
			fmt.Fprintf(c.out, "  Zone:          %s\n", out.ZoneName)
		}
	}
}

func (c *Console) cmdDevices(ctx context.Context) {
	if c.opts.Devices == nil {
		fmt.Fprintln(c.out, "Device listing not available")
		return
	}
	devices, err := c.opts.Devices(ctx)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if len(devices) == 0 {
		fmt.Fprintln(c.out, "No paired devices")
		return
	}
	for _, d := range devices {
		fmt.Fprintf(c.out, "  %s\n", d)
	}
}

func (c *Console) cmdZones() {
	zones := c.opts.Zones.Zones()
	if len(zones) == 0 {
		fmt.Fprintln(c.out, "No safe zones")
		return
	}
	if !c.opts.Session.Thresholds().SafeZonesEnabled {
		fmt.Fprintln(c.out, "(safe zones are disabled in settings)")
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCENTER\tRADIUS\tENABLED")
	for _, z := range zones {
		fmt.Fprintf(w, "%s\t%s\t%.5f,%.5f\t%.0fm\t%v\n", z.ID, z.Name, z.Latitude, z.Longitude, z.RadiusMeters, z.Enabled)
	}
	w.Flush()
}

func (c *Console) cmdZone(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Usage: zone add|rm|enable|disable ...")
		return
	}
	switch strings.ToLower(args[0]) {
	case "add":
		c.cmdZoneAdd(ctx, args[1:])
	case "rm", "remove":
		if len(args) < 2 {
			fmt.Fprintln(c.out, "Usage: zone rm <id>")
			return
		}
		c.report("Zone removed", c.opts.Zones.Remove(args[1]))
	case "enable", "disable":
		if len(args) < 2 {
			fmt.Fprintf(c.out, "Usage: zone %s <id>\n", args[0])
			return
		}
		enabled := strings.ToLower(args[0]) == "enable"
		c.report(fmt.Sprintf("Zone %sd", strings.ToLower(args[0])), c.opts.Zones.SetEnabled(args[1], enabled))
	default:
		fmt.Fprintf(c.out, "Unknown zone command: %s\n", args[0])
	}
}

func (c *Console) cmdZoneAdd(ctx context.Context, args []string) {
	if len(args) != 2 && len(args) != 4 {
		fmt.Fprintln(c.out, "Usage: zone add <name> <radius-m> [lat lon]")
		return
	}
	radius, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid radius: %s\n", args[1])
		return
	}

	var loc zone.Location
	if len(args) == 4 {
		lat, err1 := strconv.ParseFloat(args[2], 64)
		lon, err2 := strconv.ParseFloat(args[3], 64)
		if err1 != nil || err2 != nil {
			fmt.Fprintf(c.out, "Invalid coordinates: %s %s\n", args[2], args[3])
			return
		}
		loc = zone.Location{Latitude: lat, Longitude: lon}
	} else {
		if c.opts.Location == nil {
			fmt.Fprintln(c.out, "No location source; give lat and lon")
			return
		}
		lctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		loc, err = c.opts.Location.CurrentLocation(lctx)
		cancel()
		if err != nil {
			fmt.Fprintf(c.out, "Error: location unavailable: %v\n", err)
			return
		}
	}

	z := zone.NewSafeZone(loc)
	z.Name = args[0]
	z.RadiusMeters = radius
	added, err := c.opts.Zones.Add(z)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Added zone %s (%s) at %.5f,%.5f radius %.0fm\n", added.Name, added.ID, added.Latitude, added.Longitude, added.RadiusMeters)
}

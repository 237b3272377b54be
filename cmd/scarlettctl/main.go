// Command scarlettctl is a flag-driven command line tool for inspecting and
// controlling an attached Focusrite Scarlett Gen 2/3 interface: one
// subcommand per operation, each with its own flag.FlagSet, printing
// human-readable progress the way the teacher's USB diagnostic tool
// (cmd/monitor/main.go) narrates each phase of a device session.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/focusrite-scarlett/ctld/internal/diag"
	"github.com/focusrite-scarlett/ctld/internal/driver/device"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/registry"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "list":
		cmdList(os.Args[2:])
	case "info":
		cmdInfo(os.Args[2:])
	case "get":
		cmdGet(os.Args[2:])
	case "set":
		cmdSet(os.Args[2:])
	case "route":
		cmdRoute(os.Args[2:])
	case "mixer":
		cmdMixer(os.Args[2:])
	case "doctor":
		cmdDoctor(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `scarlettctl <command> [flags]

Commands:
  list              list supported product IDs
  info    -product  print identity and sync state
  get     -product -channel  print volume/mute for a channel
  set     -product -control -channel -value  write one control
  route   -product -dst -src  set a mux routing
  mixer   -product -bus -input -gain  set a mixer cell
  doctor            run host-side USB/diagnostic checks`)
}

func openFlag(fs *flag.FlagSet) *uint {
	return fs.Uint("product", 0, "USB product ID (hex, e.g. 0x8211)")
}

func mustOpen(productID uint) *device.Device {
	dev, err := device.Open(registry.VendorID, uint16(productID))
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		os.Exit(1)
	}
	return dev
}

func cmdList(args []string) {
	for pid, model := range registry.ByProductID {
		fmt.Printf("0x%04x  %s (gen %d)\n", pid, model.Name, model.Gen)
	}
}

func cmdInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	product := openFlag(fs)
	fs.Parse(args)

	dev := mustOpen(*product)
	defer dev.Close()

	info := dev.Info()
	fmt.Printf("%s  vendor=0x%04x product=0x%04x gen=%d sync_locked=%v\n",
		info.Name, info.VendorID, info.ProductID, info.Gen, info.SyncLocked)
}

func cmdGet(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	product := openFlag(fs)
	channel := fs.Int("channel", 0, "channel index")
	fs.Parse(args)

	dev := mustOpen(*product)
	defer dev.Close()

	if err := dev.Control.RefreshVolumes(); err != nil {
		fmt.Fprintf(os.Stderr, "refresh volumes: %v\n", err)
		os.Exit(1)
	}
	vol, err := dev.Control.VolumeGet(*channel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "volume: %v\n", err)
		os.Exit(1)
	}
	mute, err := dev.Control.MuteGet(*channel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mute: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("channel %d: volume=%d mute=%v\n", *channel, vol, mute)
}

func cmdSet(args []string) {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	product := openFlag(fs)
	control := fs.String("control", "volume", "control name: volume|mute|pad|air|level|48v")
	channel := fs.Int("channel", 0, "channel index")
	value := fs.String("value", "", "new value (integer or true/false)")
	fs.Parse(args)

	dev := mustOpen(*product)
	defer dev.Close()

	var err error
	switch *control {
	case "volume":
		var v int
		v, err = strconv.Atoi(*value)
		if err == nil {
			err = dev.Control.VolumePut(*channel, v)
		}
	case "mute":
		err = dev.Control.MutePut(*channel, *value == "true")
	case "pad":
		err = dev.Control.PadPut(*channel, *value == "true")
	case "air":
		err = dev.Control.AirPut(*channel, *value == "true")
	case "level":
		err = dev.Control.LevelPut(*channel, *value == "true")
	case "48v":
		err = dev.Control.Phantom48VPut(*channel, *value == "true")
	default:
		fmt.Fprintf(os.Stderr, "unknown control %q\n", *control)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "set %s: %v\n", *control, err)
		os.Exit(1)
	}
	fmt.Printf("%s[%d] = %s\n", *control, *channel, *value)
}

func cmdRoute(args []string) {
	fs := flag.NewFlagSet("route", flag.ExitOnError)
	product := openFlag(fs)
	dst := fs.Int("dst", 0, "destination flat port index")
	src := fs.Int("src", 0, "source flat port index (negative = off)")
	fs.Parse(args)

	dev := mustOpen(*product)
	defer dev.Close()

	if err := dev.Control.RouteSet(*dst, *src); err != nil {
		fmt.Fprintf(os.Stderr, "route: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("routed dst=%d <- src=%d\n", *dst, *src)
}

func cmdMixer(args []string) {
	fs := flag.NewFlagSet("mixer", flag.ExitOnError)
	product := openFlag(fs)
	bus := fs.Int("bus", 0, "mixer output bus index")
	input := fs.Int("input", 0, "mixer input column index")
	gain := fs.Int("gain", 160, "gain index 0..172 (160 = unity)")
	mute := fs.Bool("mute", false, "mute this cell")
	fs.Parse(args)

	dev := mustOpen(*product)
	defer dev.Close()

	if err := dev.Control.MixerCellPut(*bus, *input, *gain, *mute); err != nil {
		fmt.Fprintf(os.Stderr, "mixer: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("bus %d input %d gain=%d mute=%v\n", *bus, *input, *gain, *mute)
}

func cmdDoctor(args []string) {
	report := diag.Run()
	fmt.Print(report.String())
}

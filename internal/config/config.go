// Package config loads the host-side device_setup bitmask (spec.md §6: bit
// 0 enables the interface's control surface, bit 1 controls whether the
// device's mass-storage-device partition is visible to the host) from an
// optional .env file and the process environment, the same layered way the
// teacher repo's device config loader works.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Bit positions within the device_setup word (spec.md §6).
const (
	SetupEnableBit     = 1 << 0
	SetupMSDVisibleBit = 1 << 1
)

// DeviceSetup is the decoded device_setup bitmask.
type DeviceSetup struct {
	Enable     bool
	MSDVisible bool
}

// Raw packs DeviceSetup back into the on-disk bitmask.
func (s DeviceSetup) Raw() uint32 {
	var v uint32
	if s.Enable {
		v |= SetupEnableBit
	}
	if s.MSDVisible {
		v |= SetupMSDVisibleBit
	}
	return v
}

func decodeSetup(raw uint32) DeviceSetup {
	return DeviceSetup{
		Enable:     raw&SetupEnableBit != 0,
		MSDVisible: raw&SetupMSDVisibleBit != 0,
	}
}

var (
	deviceSetup  *DeviceSetup
	configLoaded bool
)

// LoadDeviceSetup reads device_setup from, in order of increasing
// precedence: its compiled-in default (enabled, MSD hidden), a .env file
// found by walking up from the working directory to the module root, and
// the DEVICE_SETUP environment variable (a decimal or 0x-prefixed bitmask).
func LoadDeviceSetup() (*DeviceSetup, error) {
	if deviceSetup != nil && configLoaded {
		return deviceSetup, nil
	}

	raw := uint32(SetupEnableBit)

	projectRoot := findProjectRoot()
	envPath := filepath.Join(projectRoot, ".env")
	if data, err := os.ReadFile(envPath); err == nil {
		if v, ok := parseEnvFile(string(data)); ok {
			raw = v
		}
	}

	if v := os.Getenv("DEVICE_SETUP"); v != "" {
		if parsed, err := strconv.ParseUint(v, 0, 32); err == nil {
			raw = uint32(parsed)
		}
	}

	setup := decodeSetup(raw)
	deviceSetup = &setup
	configLoaded = true
	return deviceSetup, nil
}

func parseEnvFile(content string) (uint32, bool) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key != "DEVICE_SETUP" {
			continue
		}
		if parsed, err := strconv.ParseUint(value, 0, 32); err == nil {
			return uint32(parsed), true
		}
	}
	return 0, false
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}

// MustLoadDeviceSetup loads device_setup or panics if LoadDeviceSetup
// returns an error. A missing or unreadable .env is not an error: the
// compiled-in default applies.
func MustLoadDeviceSetup() DeviceSetup {
	setup, err := LoadDeviceSetup()
	if err != nil {
		panic("failed to load device_setup: " + err.Error())
	}
	return *setup
}

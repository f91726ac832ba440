// Package battery reads the device charge level snapshotted onto each
// stored fix.
package battery

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Accessor reports the current battery level in percent. ok is false when
// no reading is available; tracking continues without the snapshot.
type Accessor interface {
	Level() (level float64, ok bool)
}

// Sysfs reads the charge level from the kernel power_supply class.
type Sysfs struct {
	Device string // e.g. "BAT0"
}

func (s Sysfs) Level() (float64, bool) {
	device := s.Device
	if device == "" {
		device = "BAT0"
	}
	raw, err := os.ReadFile(filepath.Join("/sys/class/power_supply", device, "capacity"))
	if err != nil {
		return 0, false
	}
	level, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0, false
	}
	return level, true
}

// Fixed always reports the same level. Used in tests and on hosts without a
// battery.
type Fixed struct {
	Value float64
}

func (f Fixed) Level() (float64, bool) { return f.Value, true }

// None never reports a level.
type None struct{}

func (None) Level() (float64, bool) { return 0, false }

// Package analytics computes investigative views over normalized CDR
// records: contact ranking, device timelines, tower usage, multi-subject
// co-location, international breakdowns, the contact graph and rule-based
// anomaly findings. Every analyzer is a pure function over immutable
// records; the Engine runs the requested ones concurrently.
package analytics

import (
	"fmt"
	"time"
)

// Config holds the tunable analysis thresholds.
type Config struct {
	// Window is the co-location bucket width.
	Window time.Duration `yaml:"window"`
	// RepeatThreshold is the number of merged co-location events after which
	// a subject set is flagged as repeated.
	RepeatThreshold int `yaml:"repeat_threshold"`

	MultiDeviceMin              int     `yaml:"multi_device_min"`
	InternationalShareThreshold float64 `yaml:"international_share_threshold"`
	NightCallMin                int     `yaml:"night_call_min"`
	MobilityTowersPerDay        int     `yaml:"mobility_towers_per_day"`

	// HomeCallingCode is the subject's home country calling code ("91").
	// When empty it is taken from the subject number.
	HomeCallingCode string `yaml:"home_calling_code"`

	// Timezone buckets records into days and night hours. Records are UTC.
	Timezone string `yaml:"timezone"`

	// LookupTimeout bounds each coordinate lookup.
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		Window:                      15 * time.Minute,
		RepeatThreshold:             2,
		MultiDeviceMin:              3,
		InternationalShareThreshold: 0.2,
		NightCallMin:                50,
		MobilityTowersPerDay:        5,
		Timezone:                    "UTC",
		LookupTimeout:               2 * time.Second,
	}
}

// Validate checks the thresholds.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("analytics window must be positive, got %v", c.Window)
	}
	if c.RepeatThreshold < 1 {
		return fmt.Errorf("analytics repeat_threshold must be at least 1, got %d", c.RepeatThreshold)
	}
	if c.MultiDeviceMin < 2 {
		return fmt.Errorf("analytics multi_device_min must be at least 2, got %d", c.MultiDeviceMin)
	}
	if c.InternationalShareThreshold < 0 || c.InternationalShareThreshold > 1 {
		return fmt.Errorf("analytics international_share_threshold must be within [0,1], got %v", c.InternationalShareThreshold)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("analytics timezone: %w", err)
	}
	return nil
}

// location returns the configured zone, UTC when unset or invalid.
func (c Config) location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.RepeatThreshold < 1 {
		c.RepeatThreshold = d.RepeatThreshold
	}
	if c.MultiDeviceMin < 2 {
		c.MultiDeviceMin = d.MultiDeviceMin
	}
	if c.InternationalShareThreshold < 0 || c.InternationalShareThreshold > 1 {
		c.InternationalShareThreshold = d.InternationalShareThreshold
	}
	if c.NightCallMin <= 0 {
		c.NightCallMin = d.NightCallMin
	}
	if c.MobilityTowersPerDay <= 0 {
		c.MobilityTowersPerDay = d.MobilityTowersPerDay
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = d.LookupTimeout
	}
	return c
}

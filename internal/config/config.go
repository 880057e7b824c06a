// Package config provides configuration loading and management for agentboard.
package config

import "time"

// DefaultLeaseMinutes is the claim lease length used when none is configured.
const DefaultLeaseMinutes = 60

// Config is the root configuration.
type Config struct {
	DBPath string        `json:"db_path" mapstructure:"db_path"`
	Claims ClaimPolicy   `json:"claims"  mapstructure:"claims"`
	Boards BoardDefaults `json:"boards"  mapstructure:"boards"`
	HTTP   HTTPConfig    `json:"http"    mapstructure:"http"`
}

// ClaimPolicy controls agent claim leases.
type ClaimPolicy struct {
	LeaseMinutes int `json:"lease_minutes,omitempty" mapstructure:"lease_minutes"`
}

// LeaseDuration returns the configured claim lease, defaulting to one hour.
func (p ClaimPolicy) LeaseDuration() time.Duration {
	minutes := p.LeaseMinutes
	if minutes <= 0 {
		minutes = DefaultLeaseMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// BoardDefaults seeds new AI-optimized boards.
type BoardDefaults struct {
	DoingWIPLimit int `json:"doing_wip_limit,omitempty" mapstructure:"doing_wip_limit"`
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Addr string `json:"addr,omitempty" mapstructure:"addr"`
}

// ListenAddr returns the configured listen address, defaulting to localhost.
func (h HTTPConfig) ListenAddr() string {
	if h.Addr == "" {
		return "127.0.0.1:8077"
	}
	return h.Addr
}

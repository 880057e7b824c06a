package config

import (
	"testing"
	"time"
)

func TestLeaseDuration_DefaultsToOneHour(t *testing.T) {
	t.Parallel()

	var p ClaimPolicy
	if got := p.LeaseDuration(); got != time.Hour {
		t.Fatalf("LeaseDuration() = %v, want %v", got, time.Hour)
	}
}

func TestLeaseDuration_UsesConfiguredMinutes(t *testing.T) {
	t.Parallel()

	p := ClaimPolicy{LeaseMinutes: 15}
	if got := p.LeaseDuration(); got != 15*time.Minute {
		t.Fatalf("LeaseDuration() = %v, want %v", got, 15*time.Minute)
	}
}

func TestListenAddr_DefaultsToLocalhost(t *testing.T) {
	t.Parallel()

	var h HTTPConfig
	if got := h.ListenAddr(); got != "127.0.0.1:8077" {
		t.Fatalf("ListenAddr() = %q, want %q", got, "127.0.0.1:8077")
	}
}

func TestValidateSettings_AllowsFullConfig(t *testing.T) {
	t.Parallel()

	settings := map[string]any{
		"db_path": ".agentboard/board.db",
		"claims": map[string]any{
			"lease_minutes": 90,
		},
		"boards": map[string]any{
			"doing_wip_limit": 3,
		},
		"http": map[string]any{
			"addr": "0.0.0.0:9000",
		},
	}

	if err := ValidateSettings(settings); err != nil {
		t.Fatalf("ValidateSettings returned error: %v", err)
	}
}

func TestValidateSettings_RejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	settings := map[string]any{
		"db_path": ".agentboard/board.db",
		"budget":  map[string]any{"max_iterations": 3},
	}

	if err := ValidateSettings(settings); err == nil {
		t.Fatal("ValidateSettings returned nil error, want error")
	}
}

func TestValidateSettings_RejectsZeroLease(t *testing.T) {
	t.Parallel()

	settings := map[string]any{
		"claims": map[string]any{
			"lease_minutes": 0,
		},
	}

	if err := ValidateSettings(settings); err == nil {
		t.Fatal("ValidateSettings returned nil error, want error")
	}
}

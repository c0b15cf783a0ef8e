package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddress() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.HTTPAddress())
	}
	versions, _ := cfg.Subprotocols()
	if len(versions) != 3 || versions[0] != protocol.Version21 || versions[2] != protocol.Version16 {
		t.Fatalf("unexpected subprotocols %v", versions)
	}
	if cfg.DefaultProtocol() != protocol.Version16 {
		t.Fatalf("unexpected default protocol %s", cfg.DefaultProtocol())
	}
	if cfg.OCPP.HeartbeatInterval != 300*time.Second || cfg.OCPP.CallTimeout != 30*time.Second {
		t.Fatalf("unexpected ocpp timings %+v", cfg.OCPP)
	}
	if cfg.PongWait() != 60*time.Second {
		t.Fatalf("unexpected pong wait %s", cfg.PongWait())
	}
	if cfg.Transactions.CloseOnAvailable {
		t.Fatalf("closeOnAvailable must default to false")
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	body := `
http:
  port: "9000"
ocpp:
  subprotocols: ["ocpp1.6"]
  callTimeout: 5s
transactions:
  closeOnAvailable: true
billing:
  url: http://billing.local
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OCPP_HEARTBEAT_INTERVAL", "60")
	t.Setenv("OCPP_SUBPROTOCOLS", "ocpp2.0.1, ocpp1.6")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddress() != ":9000" || cfg.OCPP.CallTimeout != 5*time.Second {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.OCPP.HeartbeatInterval != time.Minute {
		t.Fatalf("env override not applied: %s", cfg.OCPP.HeartbeatInterval)
	}
	versions, _ := cfg.Subprotocols()
	if len(versions) != 2 || versions[0] != protocol.Version201 {
		t.Fatalf("unexpected subprotocols %v", versions)
	}
	if !cfg.Transactions.CloseOnAvailable || cfg.Billing.URL != "http://billing.local" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown subprotocol":  func(c *Config) { c.OCPP.Subprotocols = []string{"ocpp1.5"} },
		"empty subprotocols":   func(c *Config) { c.OCPP.Subprotocols = nil },
		"unknown default":      func(c *Config) { c.OCPP.DefaultProtocol = "ocpp3" },
		"zero call timeout":    func(c *Config) { c.OCPP.CallTimeout = 0 },
		"negative heartbeat":   func(c *Config) { c.OCPP.HeartbeatInterval = -time.Second },
		"zero ping interval":   func(c *Config) { c.WebSocket.PingInterval = 0 },
		"zero billing timeout": func(c *Config) { c.Billing.Timeout = 0 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

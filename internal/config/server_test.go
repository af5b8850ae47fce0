package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	var c ServerConfig
	c.SetDefaults()
	if c.Port != 8080 || c.MetricsAddr != ":8080" {
		t.Fatalf("port %d metrics %q", c.Port, c.MetricsAddr)
	}
	if c.CallTimeout != 30*time.Second || c.HeartbeatInterval != 5*time.Minute {
		t.Fatalf("timeouts %v %v", c.CallTimeout, c.HeartbeatInterval)
	}
	if c.ConfigFile == "" {
		t.Fatalf("expected default config path")
	}
}

func TestPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	yml := `port: 9000
log_level: debug
call_timeout: 10s
station_passwords:
  CS-1: secret
accepted_tokens: [A, B]
reply_to_malformed: true
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "9100")
	t.Setenv("METRICS_PORT", "9101")
	t.Setenv("HEARTBEAT_INTERVAL", "1m")
	t.Setenv("STATION_PASSWORDS", "")

	var c ServerConfig
	c.SetDefaults()
	if err := c.LoadFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Port != 9000 || c.LogLevel != "debug" || c.CallTimeout != 10*time.Second {
		t.Fatalf("file not applied: %+v", c)
	}
	if c.StationPasswords["CS-1"] != "secret" || len(c.AcceptedTokens) != 2 || !c.ReplyToMalformed {
		t.Fatalf("file maps not applied: %+v", c)
	}
	c.ApplyEnv()
	if c.Port != 9100 || c.MetricsAddr != ":9101" || c.HeartbeatInterval != time.Minute {
		t.Fatalf("env not applied: %+v", c)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.BindFlagSet(fs)
	args := []string{"--port", "9200", "--station-passwords", "CS-2=pw2", "--allowed-origins", "http://a, http://b"}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Port != 9200 {
		t.Fatalf("flag port %d", c.Port)
	}
	if c.StationPasswords["CS-2"] != "pw2" || len(c.StationPasswords) != 1 {
		t.Fatalf("passwords %v", c.StationPasswords)
	}
	if len(c.AllowedOrigins) != 2 || c.AllowedOrigins[1] != "http://b" {
		t.Fatalf("origins %v", c.AllowedOrigins)
	}
	if c.LogLevel != "debug" {
		t.Fatalf("unflagged value lost: %q", c.LogLevel)
	}
}

func TestParsePasswords(t *testing.T) {
	if _, err := parsePasswords("nopassword"); err == nil {
		t.Fatalf("expected error")
	}
	m, err := parsePasswords("a=1,b=")
	if err != nil || m["a"] != "1" || m["b"] != "" || len(m) != 2 {
		t.Fatalf("got %v %v", m, err)
	}
}

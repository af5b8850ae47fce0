package logx_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gaspardpetit/csms/core/logx"
	"github.com/rs/zerolog"
)

func TestConfigureLogLevel(t *testing.T) {
	logx.Configure("all")
	if zerolog.GlobalLevel() != zerolog.TraceLevel {
		t.Fatalf("expected trace level, got %s", zerolog.GlobalLevel())
	}

	logx.Configure("WARNING")
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %s", zerolog.GlobalLevel())
	}

	logx.Configure("none")
	if zerolog.GlobalLevel() != zerolog.Disabled {
		t.Fatalf("expected disabled level, got %s", zerolog.GlobalLevel())
	}

	logx.Configure("bogus")
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %s", zerolog.GlobalLevel())
	}
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	logx.ConfigureJSON("debug", &buf)
	defer logx.Configure("info")

	l := logx.Component("dispatch")
	l.Info().Str("station_id", "CS1").Msg("hello")
	out := buf.String()
	if !strings.Contains(out, `"component":"dispatch"`) || !strings.Contains(out, `"station_id":"CS1"`) {
		t.Fatalf("unexpected log output %q", out)
	}
}

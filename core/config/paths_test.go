package config

import (
	"strings"
	"testing"
)

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name        string
		goos        string
		home        string
		programData string
		want        string
	}{
		{name: "linux", goos: "linux", home: "/home/user", want: "/etc/csms/server.yaml"},
		{name: "darwin", goos: "darwin", home: "/Users/test", want: "/Users/test/Library/Application Support/csms/server.yaml"},
		{name: "windows", goos: "windows", programData: "C:\\ProgramData", want: "C:/ProgramData/csms/server.yaml"},
		{name: "windows default ProgramData", goos: "windows", want: "C:/ProgramData/csms/server.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.ReplaceAll(ResolveConfigPath(tt.goos, tt.home, tt.programData, "server.yaml"), "\\", "/")
			if got != tt.want {
				t.Errorf("config path: got %q want %q", got, tt.want)
			}
		})
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("CSMS_TEST_VALUE", "x")
	if v := GetEnv("CSMS_TEST_VALUE", "d"); v != "x" {
		t.Fatalf("got %q", v)
	}
	if v := GetEnv("CSMS_TEST_MISSING", "d"); v != "d" {
		t.Fatalf("got %q", v)
	}
}

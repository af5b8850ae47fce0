package redisx

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		url    string
		addrs  int
		master string
		db     int
		tls    bool
	}{
		{"localhost:6379", 1, "", 0, false},
		{"redis://:pass@localhost:6379/1", 1, "", 1, false},
		{"redis://host1:6379,host2:6379/0", 2, "", 0, false},
		{"rediss://host:6380?db=3", 1, "", 3, true},
		{"redis-sentinel://localhost:26379/mymaster?db=2", 1, "mymaster", 2, false},
	}
	for _, tt := range tests {
		opts, err := ParseURL(tt.url)
		if err != nil {
			t.Fatalf("ParseURL(%q): %v", tt.url, err)
		}
		if len(opts.Addrs) != tt.addrs || opts.MasterName != tt.master || opts.DB != tt.db {
			t.Fatalf("%q parsed as %+v", tt.url, opts)
		}
		if (opts.TLSConfig != nil) != tt.tls {
			t.Fatalf("%q tls = %v", tt.url, opts.TLSConfig != nil)
		}
	}
	for _, bad := range []string{"http://host", "redis://host/x", "redis-sentinel://h/m?db=-1"} {
		if _, err := ParseURL(bad); err == nil {
			t.Fatalf("ParseURL(%q) succeeded", bad)
		}
	}
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := Connect(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	if _, err := Connect(context.Background(), "127.0.0.1:1"); err == nil {
		t.Fatalf("connect to closed port succeeded")
	}
}

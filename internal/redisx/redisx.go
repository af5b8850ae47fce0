// Package redisx opens go-redis clients from connection URLs.
//
// Accepted forms:
//
//	host:port
//	redis://[user:pass@]host[,host...][/db]
//	rediss://...                                  (TLS)
//	redis-sentinel://[user:pass@]host[,host...]/master[?db=N&sentinel_username=&sentinel_password=]
//	rediss-sentinel://...                         (TLS)
package redisx

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ParseURL converts addr into client options for single node, cluster and
// sentinel deployments.
func ParseURL(addr string) (*redis.UniversalOptions, error) {
	if !strings.Contains(addr, "://") {
		return &redis.UniversalOptions{Addrs: []string{addr}}, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}
	opts := &redis.UniversalOptions{Addrs: strings.Split(u.Host, ",")}
	if u.User != nil {
		opts.Username = u.User.Username()
		opts.Password, _ = u.User.Password()
	}
	q := u.Query()
	path := strings.TrimPrefix(u.Path, "/")

	var secure bool
	switch u.Scheme {
	case "redis", "rediss":
		secure = u.Scheme == "rediss"
		dbStr := path
		if dbStr == "" {
			dbStr = q.Get("db")
		}
		if opts.DB, err = parseDB(dbStr); err != nil {
			return nil, err
		}
	case "redis-sentinel", "rediss-sentinel":
		secure = u.Scheme == "rediss-sentinel"
		opts.MasterName = path
		if opts.DB, err = parseDB(q.Get("db")); err != nil {
			return nil, err
		}
		opts.SentinelUsername = q.Get("sentinel_username")
		opts.SentinelPassword = q.Get("sentinel_password")
	default:
		return nil, fmt.Errorf("redis: invalid URL scheme: %s", u.Scheme)
	}
	if secure {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

func parseDB(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	db, err := strconv.Atoi(s)
	if err != nil || db < 0 {
		return 0, fmt.Errorf("redis: invalid db %q", s)
	}
	return db, nil
}

// Connect parses addr, dials and pings the server.
func Connect(ctx context.Context, addr string) (redis.UniversalClient, error) {
	opts, err := ParseURL(addr)
	if err != nil {
		return nil, err
	}
	c := redis.NewUniversalClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", strings.Join(opts.Addrs, ","), err)
	}
	return c, nil
}

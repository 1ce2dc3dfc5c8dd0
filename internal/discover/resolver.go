package discover

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
)

// Browser performs one mDNS browse pass, delivering entries on the channel
// until the context expires. Satisfied by *zeroconf.Resolver.
type Browser interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// Config contains resolver parameters
type Config struct {
	ServiceName     string
	Domain          string
	FallbackAddress string
	Attempts        int
	Timeout         time.Duration
	Backoff         time.Duration
}

// Resolver resolves the backend's symbolic service name to a host:port
// address. Resolution runs once at process startup and the result is cached
// for the process lifetime; later connection failures never trigger
// re-resolution.
type Resolver struct {
	config  Config
	browser Browser
	logger  *slog.Logger

	resolved string
}

// NewResolver creates a resolver using the system mDNS stack
func NewResolver(config Config, logger *slog.Logger) (*Resolver, error) {
	browser, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	return newResolver(config, browser, logger), nil
}

func newResolver(config Config, browser Browser, logger *slog.Logger) *Resolver {
	if config.Domain == "" {
		config.Domain = "local."
	}

	return &Resolver{
		config:  config,
		browser: browser,
		logger:  logger,
	}
}

// Resolve performs a bounded sequence of discovery attempts and returns the
// first address found. On exhaustion it returns the statically configured
// fallback; discovery failure is logged, never fatal. The result is cached,
// so subsequent calls return the same address without touching the network.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	if r.resolved != "" {
		return r.resolved, nil
	}

	for attempt := 1; attempt <= r.config.Attempts; attempt++ {
		addr, err := r.attempt(ctx)
		if err == nil {
			r.logger.Info("Backend resolved",
				slog.String("service", r.config.ServiceName),
				slog.String("address", addr),
				slog.Int("attempt", attempt),
			)
			r.resolved = addr
			return addr, nil
		}

		if ctx.Err() != nil {
			return "", fmt.Errorf("resolution cancelled: %w", ctx.Err())
		}

		r.logger.Warn("Discovery attempt failed",
			slog.String("service", r.config.ServiceName),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", r.config.Attempts),
			slog.String("error", err.Error()),
		)

		if attempt < r.config.Attempts && r.config.Backoff > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("resolution cancelled: %w", ctx.Err())
			case <-time.After(r.config.Backoff):
			}
		}
	}

	r.logger.Warn("Discovery exhausted, using static fallback",
		slog.String("service", r.config.ServiceName),
		slog.String("fallback", r.config.FallbackAddress),
	)

	r.resolved = r.config.FallbackAddress
	return r.resolved, nil
}

// attempt runs a single browse pass bounded by the per-attempt timeout
func (r *Resolver) attempt(ctx context.Context) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 4)
	if err := r.browser.Browse(attemptCtx, r.config.ServiceName, r.config.Domain, entries); err != nil {
		return "", fmt.Errorf("browse failed: %w", err)
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", fmt.Errorf("no instance of %s found", r.config.ServiceName)
			}
			if addr, ok := entryAddress(entry); ok {
				return addr, nil
			}
		case <-attemptCtx.Done():
			return "", fmt.Errorf("browse timed out after %v", r.config.Timeout)
		}
	}
}

// entryAddress extracts a dialable host:port from a service entry
func entryAddress(entry *zeroconf.ServiceEntry) (string, bool) {
	if entry == nil || entry.Port == 0 {
		return "", false
	}

	port := strconv.Itoa(entry.Port)
	if len(entry.AddrIPv4) > 0 {
		return net.JoinHostPort(entry.AddrIPv4[0].String(), port), true
	}
	if len(entry.AddrIPv6) > 0 {
		return net.JoinHostPort(entry.AddrIPv6[0].String(), port), true
	}
	if entry.HostName != "" {
		return net.JoinHostPort(entry.HostName, port), true
	}

	return "", false
}

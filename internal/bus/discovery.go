package bus

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jmylchreest/spotifyctl/internal/model"
)

// Discovery locates the daemon's service by a well-known name prefix.
// Only names with that prefix are ever returned; other MPRIS players on
// the bus are ignored.
type Discovery struct {
	lister NameLister
	prefix string
	logger *slog.Logger
}

// NewDiscovery creates a Discovery. An empty prefix selects
// DefaultServicePrefix.
func NewDiscovery(lister NameLister, prefix string, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = DefaultServicePrefix
	}
	return &Discovery{
		lister: lister,
		prefix: prefix,
		logger: logger,
	}
}

// Prefix returns the service-name prefix being matched.
func (d *Discovery) Prefix() string {
	return d.prefix
}

// FindService returns the first registered name with the prefix.
func (d *Discovery) FindService(ctx context.Context) (string, error) {
	names, err := d.lister.ListNames(ctx)
	if err != nil {
		return "", model.NewError(model.KindConnection, "find service", err)
	}

	for _, name := range names {
		if strings.HasPrefix(name, d.prefix) {
			d.logger.Debug("found player service", "name", name)
			return name, nil
		}
	}

	d.logger.Warn("player service not registered",
		"prefix", d.prefix,
		"available", Players(names))
	return "", &model.Error{
		Kind:    model.KindNotFound,
		Op:      "find service",
		Message: "no service with prefix " + d.prefix,
	}
}

// IsRegistered reports whether any name with the prefix is on the bus.
// Bus errors count as not registered.
func (d *Discovery) IsRegistered(ctx context.Context) bool {
	names, err := d.lister.ListNames(ctx)
	if err != nil {
		d.logger.Debug("failed to list bus names", "error", err)
		return false
	}
	for _, name := range names {
		if strings.HasPrefix(name, d.prefix) {
			return true
		}
	}
	return false
}

// FindDaemonPID returns the pid owning the first matching name whose owner
// can be resolved.
func (d *Discovery) FindDaemonPID(ctx context.Context) (int, error) {
	names, err := d.lister.ListNames(ctx)
	if err != nil {
		return 0, model.NewError(model.KindConnection, "find daemon", err)
	}

	for _, name := range names {
		if !strings.HasPrefix(name, d.prefix) {
			continue
		}
		pid, err := d.lister.ConnectionPID(ctx, name)
		if err != nil {
			d.logger.Warn("could not resolve service owner", "name", name, "error", err)
			continue
		}
		d.logger.Info("found daemon via bus", "name", name, "pid", pid)
		return int(pid), nil
	}

	return 0, &model.Error{
		Kind:    model.KindNotFound,
		Op:      "find daemon",
		Message: "no bus service with prefix " + d.prefix,
	}
}

// WaitForRegistration polls until the prefix is registered, checking up to
// attempts times at the given interval.
func (d *Discovery) WaitForRegistration(ctx context.Context, attempts int, interval time.Duration) error {
	for attempt := 1; attempt <= attempts; attempt++ {
		if d.IsRegistered(ctx) {
			d.logger.Info("bus registration detected", "prefix", d.prefix, "attempts", attempt)
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return model.NewError(model.KindRegistrationTimeout, "wait for registration", ctx.Err())
		case <-time.After(interval):
		}
	}
	return &model.Error{
		Kind:    model.KindRegistrationTimeout,
		Op:      "wait for registration",
		Message: "service " + d.prefix + " not registered after " + (time.Duration(attempts) * interval).String(),
	}
}

// Players returns the MPRIS player names among names.
func Players(names []string) []string {
	var players []string
	for _, name := range names {
		if strings.HasPrefix(name, MPRISPrefix) {
			players = append(players, name)
		}
	}
	return players
}

// Package probe answers "is the asynchronous compute path usable right now?".
package probe

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultTimeout = 500 * time.Millisecond

// Probe reports broker availability. Implementations must not block beyond their
// own timeout and must not panic.
type Probe interface {
	IsAvailable(ctx context.Context) bool
}

// Inspector reports how many consumers are attached to the job queue.
type Inspector interface {
	Inspect(ctx context.Context) (consumers int, err error)
}

// BrokerProbe checks the broker on every call. It keeps no "broker is down"
// state between calls because broker state can flap between requests.
type BrokerProbe struct {
	inspector        Inspector
	timeout          time.Duration
	requireConsumers bool
	logger           *zap.Logger
}

// NewBrokerProbe creates a probe. When requireConsumers is set, a reachable broker
// whose job queue has no consumers counts as unavailable.
func NewBrokerProbe(inspector Inspector, timeout time.Duration, requireConsumers bool, logger *zap.Logger) *BrokerProbe {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &BrokerProbe{
		inspector:        inspector,
		timeout:          timeout,
		requireConsumers: requireConsumers,
		logger:           logger,
	}
}

// IsAvailable treats every error, timeout and panic as "unavailable".
func (p *BrokerProbe) IsAvailable(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Broker probe panic recovered", zap.Any("panic", r))
			ok = false
		}
	}()

	if p.inspector == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	consumers, err := p.inspector.Inspect(ctx)
	if err != nil {
		p.logger.Debug("Broker unavailable", zap.Error(err))
		return false
	}
	if p.requireConsumers && consumers == 0 {
		p.logger.Debug("Broker reachable but no workers attached")
		return false
	}
	return true
}

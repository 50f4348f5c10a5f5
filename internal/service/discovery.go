package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bcnelson/checkmk-host-manager/internal/checkmk"
	"github.com/bcnelson/checkmk-host-manager/internal/domain"
)

// PollState is the state of a discovery wait.
type PollState int

const (
	PollPending PollState = iota
	PollPolling
	PollCompleted
	PollTimedOut
)

func (s PollState) String() string {
	switch s {
	case PollPending:
		return "pending"
	case PollPolling:
		return "polling"
	case PollCompleted:
		return "completed"
	case PollTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("PollState(%d)", int(s))
	}
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the SleepFunc backed by a real timer.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DiscoveryPoller waits for a service discovery run to finish by polling the
// wait-for-completion endpoint a bounded number of times at a fixed interval.
type DiscoveryPoller struct {
	client    checkmk.Requester
	endpoints checkmk.Endpoints
	attempts  int
	interval  time.Duration
	sleep     SleepFunc
	logger    *slog.Logger
}

// NewDiscoveryPoller creates a poller. A nil sleep uses Sleep.
func NewDiscoveryPoller(client checkmk.Requester, endpoints checkmk.Endpoints, attempts int, interval time.Duration, sleep SleepFunc, logger *slog.Logger) *DiscoveryPoller {
	if attempts < 1 {
		attempts = 1
	}
	if sleep == nil {
		sleep = Sleep
	}
	return &DiscoveryPoller{
		client:    client,
		endpoints: endpoints,
		attempts:  attempts,
		interval:  interval,
		sleep:     sleep,
		logger:    logger,
	}
}

// PollResult describes a finished wait.
type PollResult struct {
	State    PollState
	Attempts int
}

// Wait polls until the discovery of host completes. Failed polls are logged
// and retried. It returns domain.ErrDiscoveryTimeout when every attempt
// failed, or the context error when ctx ends first.
func (p *DiscoveryPoller) Wait(ctx context.Context, host string) (PollResult, error) {
	url := p.endpoints.DiscoveryWait(host)
	res := PollResult{State: PollPending}

	for {
		switch res.State {
		case PollPending:
			res.State = PollPolling

		case PollPolling:
			res.Attempts++
			_, err := p.client.Get(ctx, url)
			if err == nil {
				res.State = PollCompleted
				continue
			}
			p.logger.Debug("discovery not finished", "host", host, "attempt", res.Attempts, "error", err)

			if res.Attempts >= p.attempts {
				res.State = PollTimedOut
				continue
			}
			if err := p.sleep(ctx, p.interval); err != nil {
				return res, err
			}

		case PollCompleted:
			return res, nil

		case PollTimedOut:
			p.logger.Warn("discovery timed out", "host", host, "attempts", res.Attempts)
			return res, domain.ErrDiscoveryTimeout
		}
	}
}

package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/bcnelson/checkmk-host-manager/internal/checkmk"
	"github.com/bcnelson/checkmk-host-manager/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoveryPollerFirstAttempt(t *testing.T) {
	client := &fakeRequester{
		get: func(url string) (*checkmk.Response, error) { return ok(nil) },
	}
	sleep := &recordingSleep{}
	p := NewDiscoveryPoller(client, testEndpoints, 10, 3*time.Second, sleep.Sleep, testLogger())

	res, err := p.Wait(context.Background(), "web01")
	require.NoError(t, err)
	assert.Equal(t, PollCompleted, res.State)
	assert.Equal(t, 1, res.Attempts)
	assert.Zero(t, sleep.Count())
	assert.Equal(t, testEndpoints.DiscoveryWait("web01"), client.Calls()[0].URL)
}

func TestDiscoveryPollerTimesOut(t *testing.T) {
	client := &fakeRequester{}
	sleep := &recordingSleep{}
	p := NewDiscoveryPoller(client, testEndpoints, 10, 3*time.Second, sleep.Sleep, testLogger())

	res, err := p.Wait(context.Background(), "web01")
	assert.ErrorIs(t, err, domain.ErrDiscoveryTimeout)
	assert.Equal(t, PollTimedOut, res.State)
	assert.Equal(t, 10, res.Attempts)
	assert.Len(t, client.Calls(), 10)
	assert.Equal(t, 9, sleep.Count())
	for _, d := range sleep.slept {
		assert.Equal(t, 3*time.Second, d)
	}
}

func TestDiscoveryPollerRetriesServerErrors(t *testing.T) {
	n := 0
	client := &fakeRequester{
		get: func(url string) (*checkmk.Response, error) {
			n++
			if n == 1 {
				return failWith(http.MethodGet, url, http.StatusInternalServerError)
			}
			return ok(nil)
		},
	}
	p := NewDiscoveryPoller(client, testEndpoints, 5, time.Millisecond, (&recordingSleep{}).Sleep, testLogger())

	res, err := p.Wait(context.Background(), "web01")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
}

func TestDiscoveryPollerContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewDiscoveryPoller(&fakeRequester{}, testEndpoints, 5, time.Hour, nil, testLogger())
	res, err := p.Wait(ctx, "web01")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, PollPolling, res.State)
	assert.Equal(t, 1, res.Attempts)
}

func TestPollStateString(t *testing.T) {
	assert.Equal(t, "pending", PollPending.String())
	assert.Equal(t, "timed_out", PollTimedOut.String())
	assert.Equal(t, "PollState(9)", PollState(9).String())
}

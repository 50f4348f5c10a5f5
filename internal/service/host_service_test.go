package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bcnelson/checkmk-host-manager/internal/checkmk"
	"github.com/bcnelson/checkmk-host-manager/internal/domain"
	"github.com/bcnelson/checkmk-host-manager/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHostService(t *testing.T, client *fakeRequester, sleep *recordingSleep) (*HostService, *memory.Store) {
	t.Helper()
	store := memory.New()
	if sleep == nil {
		sleep = &recordingSleep{}
	}
	poller := NewDiscoveryPoller(client, testEndpoints, 3, time.Second, sleep.Sleep, testLogger())
	svc := NewHostService(store, client, testEndpoints, testLogger(),
		WithClock(fixedClock("2024-05-01")),
		WithPoller(poller),
	)
	return svc, store
}

func methods(calls []call) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Method+" "+strings.TrimPrefix(c.URL, testBase))
	}
	return out
}

func TestAddHost(t *testing.T) {
	client := &fakeRequester{}
	svc, store := newHostService(t, client, nil)
	ctx := context.Background()

	host, err := svc.AddHost(ctx, &domain.CreateHostRequest{
		Name:           "web01",
		IPAddress:      "10.0.0.1",
		ExpirationDate: "2024-12-31",
		OwnerEmail:     "alice@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "web01", host.Name)
	assert.Equal(t, "2024-05-01", host.CreationDate)

	assert.Equal(t, []string{
		"GET /api/1.0/objects/host_config/web01",
		"POST /api/1.0/domain-types/host_config/collections/all",
		"POST /api/1.0/domain-types/activation_run/actions/activate-changes/invoke",
	}, methods(client.Calls()))

	create := client.Calls()[1].Payload.(checkmk.CreateHostPayload)
	assert.Equal(t, "web01", create.HostName)
	assert.Equal(t, "10.0.0.1", create.Attributes.IPAddress)

	activate := client.Calls()[2].Payload.(checkmk.ActivatePayload)
	assert.Equal(t, []string{"prod"}, activate.Sites)
	assert.True(t, activate.ForceForeignChanges)

	stored, err := store.GetHost(ctx, "web01")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", stored.CreationDate)
	assert.Equal(t, "alice@example.com", stored.OwnerEmail)
}

func TestAddHostDuplicateLocal(t *testing.T) {
	client := &fakeRequester{}
	svc, store := newHostService(t, client, nil)
	ctx := context.Background()
	require.NoError(t, store.SaveHost(ctx, &domain.Host{ID: "web01", Name: "web01", IPAddress: "10.0.0.1"}))

	_, err := svc.AddHost(ctx, &domain.CreateHostRequest{Name: "web01", IPAddress: "10.0.0.2"})
	assert.ErrorIs(t, err, domain.ErrDuplicateHost)
	assert.Equal(t, "host name already exists", err.Error())
	assert.Empty(t, client.Calls(), "no remote call for a locally known host")
}

func TestAddHostDuplicateRemote(t *testing.T) {
	client := &fakeRequester{
		get: func(url string) (*checkmk.Response, error) { return ok([]byte(`{}`)) },
	}
	svc, store := newHostService(t, client, nil)
	ctx := context.Background()

	_, err := svc.AddHost(ctx, &domain.CreateHostRequest{Name: "web01", IPAddress: "10.0.0.2"})
	assert.ErrorIs(t, err, domain.ErrDuplicateHost)
	assert.Len(t, client.Calls(), 1)

	exists, err := store.HostExists(ctx, "web01")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAddHostCreateFails(t *testing.T) {
	client := &fakeRequester{
		post: func(url string, payload any) (*checkmk.Response, error) {
			return failWith(http.MethodPost, url, http.StatusBadRequest)
		},
	}
	svc, store := newHostService(t, client, nil)
	ctx := context.Background()

	_, err := svc.AddHost(ctx, &domain.CreateHostRequest{Name: "web01", IPAddress: "10.0.0.1"})
	assert.ErrorIs(t, err, domain.ErrHostOperationFailed)

	var se *checkmk.StatusError
	assert.True(t, errors.As(err, &se))

	// Creation failed, so nothing was activated or stored.
	assert.Len(t, client.Calls(), 2)
	exists, _ := store.HostExists(ctx, "web01")
	assert.False(t, exists)
}

func TestAddHostActivationFails(t *testing.T) {
	client := &fakeRequester{
		post: func(url string, payload any) (*checkmk.Response, error) {
			if url == testEndpoints.ActivateChanges() {
				return failWith(http.MethodPost, url, http.StatusInternalServerError)
			}
			return ok(nil)
		},
	}
	svc, store := newHostService(t, client, nil)
	ctx := context.Background()

	_, err := svc.AddHost(ctx, &domain.CreateHostRequest{Name: "web01", IPAddress: "10.0.0.1"})
	assert.ErrorIs(t, err, domain.ErrHostOperationFailed)
	exists, _ := store.HostExists(ctx, "web01")
	assert.False(t, exists)
}

func TestUpdateHost(t *testing.T) {
	client := &fakeRequester{
		get: func(url string) (*checkmk.Response, error) {
			return &checkmk.Response{StatusCode: http.StatusOK, ETag: `"abc"`}, nil
		},
	}
	svc, store := newHostService(t, client, nil)
	ctx := context.Background()
	require.NoError(t, store.SaveHost(ctx, &domain.Host{
		ID: "web01", Name: "web01", IPAddress: "10.0.0.1",
		CreationDate: "2023-01-15", ExpirationDate: "2024-12-31", OwnerEmail: "alice@example.com",
	}))

	updated, err := svc.UpdateHost(ctx, "web01", &domain.UpdateHostRequest{IPAddress: "10.0.0.9"})
	require.NoError(t, err)
	assert.Equal(t, "web01", updated.Name)
	assert.Equal(t, "10.0.0.9", updated.IPAddress)
	assert.Equal(t, "2023-01-15", updated.CreationDate, "creation date is preserved")
	assert.Equal(t, "2024-12-31", updated.ExpirationDate)
	assert.Equal(t, "alice@example.com", updated.OwnerEmail)

	calls := client.Calls()
	assert.Equal(t, []string{
		"GET /api/1.0/objects/host_config/web01",
		"PUT /api/1.0/objects/host_config/web01",
		"POST /api/1.0/domain-types/activation_run/actions/activate-changes/invoke",
	}, methods(calls))
	assert.Equal(t, `"abc"`, calls[1].ETag)

	stored, err := store.GetHost(ctx, "web01")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", stored.IPAddress)
	assert.Equal(t, "2023-01-15", stored.CreationDate)
}

func TestUpdateHostChangesOwnerAndExpiration(t *testing.T) {
	client := &fakeRequester{
		get: func(url string) (*checkmk.Response, error) { return ok(nil) },
	}
	svc, store := newHostService(t, client, nil)
	ctx := context.Background()
	require.NoError(t, store.SaveHost(ctx, &domain.Host{ID: "web01", Name: "web01", IPAddress: "10.0.0.1"}))

	updated, err := svc.UpdateHost(ctx, "web01", &domain.UpdateHostRequest{
		IPAddress: "10.0.0.1", ExpirationDate: "2025-01-01", OwnerEmail: "bob@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01", updated.ExpirationDate)
	assert.Equal(t, "bob@example.com", updated.OwnerEmail)
}

func TestUpdateHostUnknown(t *testing.T) {
	client := &fakeRequester{}
	svc, _ := newHostService(t, client, nil)

	_, err := svc.UpdateHost(context.Background(), "nope", &domain.UpdateHostRequest{IPAddress: "10.0.0.1"})
	assert.ErrorIs(t, err, domain.ErrHostNotFound)
	assert.Empty(t, client.Calls())
}

func TestUpdateHostPreconditionFailed(t *testing.T) {
	client := &fakeRequester{
		get: func(url string) (*checkmk.Response, error) { return ok(nil) },
		put: func(url string, payload any, etag string) (*checkmk.Response, error) {
			return failWith(http.MethodPut, url, http.StatusPreconditionFailed)
		},
	}
	svc, store := newHostService(t, client, nil)
	ctx := context.Background()
	require.NoError(t, store.SaveHost(ctx, &domain.Host{ID: "web01", Name: "web01", IPAddress: "10.0.0.1"}))

	_, err := svc.UpdateHost(ctx, "web01", &domain.UpdateHostRequest{IPAddress: "10.0.0.9"})
	assert.ErrorIs(t, err, domain.ErrHostOperationFailed)

	stored, _ := store.GetHost(ctx, "web01")
	assert.Equal(t, "10.0.0.1", stored.IPAddress)
}

func TestDeleteHost(t *testing.T) {
	client := &fakeRequester{
		get: func(url string) (*checkmk.Response, error) {
			return &checkmk.Response{StatusCode: http.StatusOK, ETag: `"v2"`}, nil
		},
	}
	svc, store := newHostService(t, client, nil)
	ctx := context.Background()
	require.NoError(t, store.SaveHost(ctx, &domain.Host{ID: "web01", Name: "web01", IPAddress: "10.0.0.1"}))

	require.NoError(t, svc.DeleteHost(ctx, "web01"))

	calls := client.Calls()
	assert.Equal(t, []string{
		"GET /api/1.0/objects/host_config/web01",
		"DELETE /api/1.0/objects/host_config/web01",
		"POST /api/1.0/domain-types/activation_run/actions/activate-changes/invoke",
	}, methods(calls))
	assert.Equal(t, `"v2"`, calls[1].ETag)

	_, err := store.GetHost(ctx, "web01")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteHostRemoteFailureKeepsRecord(t *testing.T) {
	client := &fakeRequester{
		get: func(url string) (*checkmk.Response, error) { return ok(nil) },
		del: func(url, etag string) (*checkmk.Response, error) {
			return failWith(http.MethodDelete, url, http.StatusInternalServerError)
		},
	}
	svc, store := newHostService(t, client, nil)
	ctx := context.Background()
	require.NoError(t, store.SaveHost(ctx, &domain.Host{ID: "web01", Name: "web01"}))

	err := svc.DeleteHost(ctx, "web01")
	assert.ErrorIs(t, err, domain.ErrHostOperationFailed)

	exists, _ := store.HostExists(ctx, "web01")
	assert.True(t, exists)
}

func TestDeleteHostUnknown(t *testing.T) {
	client := &fakeRequester{}
	svc, _ := newHostService(t, client, nil)

	err := svc.DeleteHost(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrHostNotFound)
	assert.Empty(t, client.Calls())
}

func TestServiceDiscoveryCompletes(t *testing.T) {
	polls := 0
	client := &fakeRequester{
		get: func(url string) (*checkmk.Response, error) {
			polls++
			if polls < 3 {
				return failWith(http.MethodGet, url, http.StatusNotFound)
			}
			return ok(nil)
		},
	}
	sleep := &recordingSleep{}
	svc, _ := newHostService(t, client, sleep)

	require.NoError(t, svc.TriggerServiceDiscoveryAndMonitor(context.Background(), "web01"))
	assert.Equal(t, 2, sleep.Count())

	var modes []string
	for _, c := range client.Calls() {
		if p, ok := c.Payload.(checkmk.DiscoveryPayload); ok {
			modes = append(modes, p.Mode)
		}
	}
	assert.Equal(t, []string{checkmk.DiscoveryModeRefresh, checkmk.DiscoveryModeFixAll}, modes)

	last := client.Calls()[len(client.Calls())-1]
	assert.Equal(t, testEndpoints.ActivateChanges(), last.URL)
}

func TestServiceDiscoveryTimeout(t *testing.T) {
	client := &fakeRequester{}
	sleep := &recordingSleep{}
	svc, _ := newHostService(t, client, sleep)

	err := svc.TriggerServiceDiscoveryAndMonitor(context.Background(), "web01")
	assert.ErrorIs(t, err, domain.ErrDiscoveryTimeout)
	assert.Equal(t, 2, sleep.Count(), "no sleep after the last attempt")

	for _, c := range client.Calls() {
		if p, ok := c.Payload.(checkmk.DiscoveryPayload); ok {
			assert.NotEqual(t, checkmk.DiscoveryModeFixAll, p.Mode)
		}
		assert.NotEqual(t, testEndpoints.ActivateChanges(), c.URL)
	}
}

func TestServiceDiscoveryStartFails(t *testing.T) {
	client := &fakeRequester{
		post: func(url string, payload any) (*checkmk.Response, error) {
			return failWith(http.MethodPost, url, http.StatusNotFound)
		},
	}
	svc, _ := newHostService(t, client, nil)

	err := svc.TriggerServiceDiscoveryAndMonitor(context.Background(), "web01")
	assert.ErrorIs(t, err, domain.ErrHostOperationFailed)
	assert.Len(t, client.Calls(), 1)
}

func TestActivateChanges(t *testing.T) {
	client := &fakeRequester{}
	svc, _ := newHostService(t, client, nil)

	require.NoError(t, svc.ActivateChanges(context.Background()))
	require.Len(t, client.Calls(), 1)
	assert.Equal(t, testEndpoints.ActivateChanges(), client.Calls()[0].URL)
}

func TestGetHost(t *testing.T) {
	svc, store := newHostService(t, &fakeRequester{}, nil)
	ctx := context.Background()

	_, err := svc.GetHost(ctx, "web01")
	assert.ErrorIs(t, err, domain.ErrHostNotFound)

	require.NoError(t, store.SaveHost(ctx, &domain.Host{ID: "web01", Name: "web01"}))
	h, err := svc.GetHost(ctx, "web01")
	require.NoError(t, err)
	assert.Equal(t, "web01", h.Name)
}

func TestHostServiceAgainstFileShim(t *testing.T) {
	shim, err := checkmk.NewFileShim("", testLogger())
	require.NoError(t, err)
	store := memory.New()
	sleep := &recordingSleep{}
	poller := NewDiscoveryPoller(shim, testEndpoints, 3, time.Second, sleep.Sleep, testLogger())
	svc := NewHostService(store, shim, testEndpoints, testLogger(), WithPoller(poller))
	ctx := context.Background()

	_, err = svc.AddHost(ctx, &domain.CreateHostRequest{Name: "db01", IPAddress: "10.1.0.1"})
	require.NoError(t, err)
	_, err = svc.UpdateHost(ctx, "db01", &domain.UpdateHostRequest{IPAddress: "10.1.0.2"})
	require.NoError(t, err)
	require.NoError(t, svc.TriggerServiceDiscoveryAndMonitor(ctx, "db01"))
	require.NoError(t, svc.DeleteHost(ctx, "db01"))

	assert.Equal(t, 4, shim.Activations())
	assert.Equal(t, 0, sleep.Count())
}

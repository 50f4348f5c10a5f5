package service

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/bcnelson/checkmk-host-manager/internal/checkmk"
	"github.com/bcnelson/checkmk-host-manager/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func viewClient(views map[string][]byte) *fakeRequester {
	return &fakeRequester{
		get: func(raw string) (*checkmk.Response, error) {
			u, err := url.Parse(raw)
			if err != nil {
				return nil, err
			}
			body, found := views[u.Query().Get("view_name")]
			if !found {
				return notFound(http.MethodGet, raw)
			}
			return ok(body)
		},
	}
}

func allHostsView(crit string) []byte {
	return viewBody(
		[]string{"host_state", "host", "num_services_ok", "num_services_warn", "num_services_crit"},
		[]string{"UP", "web01", "12", "1", crit},
		[]string{"DOWN", "db01", "0", "0", "0"},
	)
}

func TestLiveInfoAllAndForHost(t *testing.T) {
	svc := NewLiveInfoService(viewClient(map[string][]byte{checkmk.ViewAllHosts: allHostsView("2")}), testEndpoints, testLogger())
	ctx := context.Background()

	all, err := svc.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	info, err := svc.ForHost(ctx, "WEB01")
	require.NoError(t, err)
	assert.Equal(t, "UP", info.HostState)
	assert.Equal(t, "2", info.ServicesCrit)

	_, err = svc.ForHost(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLiveInfoServices(t *testing.T) {
	client := viewClient(map[string][]byte{
		checkmk.ViewHostCrit: viewBody(
			[]string{"service_state", "service_description", "svc_plugin_output"},
			[]string{"CRIT", "Filesystem /", "95% used"},
		),
	})
	svc := NewLiveInfoService(client, testEndpoints, testLogger())
	ctx := context.Background()

	services, err := svc.Services(ctx, "web01", ServiceStateCrit)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "Filesystem /", services[0].Description)

	u, err := url.Parse(client.Calls()[0].URL)
	require.NoError(t, err)
	assert.Equal(t, "web01", u.Query().Get("host"))
	assert.Equal(t, "prod", u.Query().Get("site"))

	_, err = svc.Services(ctx, "web01", ServiceState("unknown"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLiveInfoEvents(t *testing.T) {
	client := viewClient(map[string][]byte{
		checkmk.ViewNotifications: viewBody(
			[]string{"log_time", "log_type", "log_state", "log_plugin_output"},
			[]string{"2024-05-01 10:00:00", "SERVICE NOTIFICATION", "CRIT", "disk full"},
		),
	})
	svc := NewLiveInfoService(client, testEndpoints, testLogger())

	events, err := svc.Events(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "disk full", events[0].Message)
	assert.Equal(t, "CRIT", events[0].Severity)
}

func TestLiveInfoAttach(t *testing.T) {
	hosts := []*domain.Host{{Name: "web01"}, {Name: "new01"}}

	svc := NewLiveInfoService(viewClient(map[string][]byte{checkmk.ViewAllHosts: allHostsView("0")}), testEndpoints, testLogger())
	out := svc.Attach(context.Background(), hosts)
	require.Len(t, out, 2)
	require.NotNil(t, out[0].LiveInfo)
	assert.Equal(t, "12", out[0].LiveInfo.ServicesOK)
	assert.Nil(t, out[1].LiveInfo)

	down := NewLiveInfoService(&fakeRequester{}, testEndpoints, testLogger())
	out = down.Attach(context.Background(), hosts)
	require.Len(t, out, 2)
	assert.Nil(t, out[0].LiveInfo)
}

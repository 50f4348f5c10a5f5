package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/bcnelson/checkmk-host-manager/internal/checkmk"
	"github.com/bcnelson/checkmk-host-manager/internal/domain"
	"github.com/bcnelson/checkmk-host-manager/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostCollectionJSON = `{"value": [
  {"id": "db01", "extensions": {"attributes": {"ipaddress": "10.1.0.1", "meta_data": {"created_at": "2023-03-04T10:11:12+00:00"}}}},
  {"id": "web01", "extensions": {"attributes": {"ipaddress": "10.0.0.1", "meta_data": {"created_at": "2022-01-02T00:00:00Z"}}}}
]}`

func collectionClient() *fakeRequester {
	return &fakeRequester{
		get: func(url string) (*checkmk.Response, error) {
			if url == testEndpoints.HostCollection() {
				return ok([]byte(hostCollectionJSON))
			}
			return notFound(http.MethodGet, url)
		},
	}
}

func TestRemoteHostsMarksImported(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.SaveHost(ctx, &domain.Host{Name: "web01"}))

	svc := NewImportService(store, collectionClient(), testEndpoints, testLogger())
	hosts := svc.RemoteHosts(ctx)
	require.Len(t, hosts, 2)

	assert.Equal(t, "db01", hosts[0].Name)
	assert.Equal(t, "10.1.0.1", hosts[0].IPAddress)
	assert.Equal(t, "2023-03-04", hosts[0].CreationDate)
	assert.False(t, hosts[0].Imported)
	assert.True(t, hosts[1].Imported)
}

func TestRemoteHostsUnavailable(t *testing.T) {
	svc := NewImportService(memory.New(), &fakeRequester{}, testEndpoints, testLogger())
	hosts := svc.RemoteHosts(context.Background())
	assert.NotNil(t, hosts)
	assert.Empty(t, hosts)
}

func TestImportHosts(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.SaveHost(ctx, &domain.Host{
		Name: "web01", IPAddress: "10.0.0.99", CreationDate: "2021-06-01",
		ExpirationDate: "2025-01-01", OwnerEmail: "alice@example.com",
	}))

	svc := NewImportService(store, collectionClient(), testEndpoints, testLogger())
	resp, err := svc.ImportHosts(ctx, []string{"db01", "web01", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, []string{"db01", "web01"}, resp.Imported)
	assert.Equal(t, []string{"ghost"}, resp.Skipped)

	db, err := store.GetHost(ctx, "db01")
	require.NoError(t, err)
	assert.Equal(t, "10.1.0.1", db.IPAddress)
	assert.Equal(t, "2023-03-04", db.CreationDate)

	web, err := store.GetHost(ctx, "web01")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", web.IPAddress, "address follows Checkmk")
	assert.Equal(t, "2021-06-01", web.CreationDate)
	assert.Equal(t, "2025-01-01", web.ExpirationDate)
	assert.Equal(t, "alice@example.com", web.OwnerEmail)
}

func TestImportHostsRemoteFailure(t *testing.T) {
	svc := NewImportService(memory.New(), &fakeRequester{}, testEndpoints, testLogger())
	_, err := svc.ImportHosts(context.Background(), []string{"db01"})
	assert.ErrorIs(t, err, domain.ErrHostOperationFailed)
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bcnelson/checkmk-host-manager/internal/checkmk"
	"github.com/bcnelson/checkmk-host-manager/internal/domain"
	"github.com/bcnelson/checkmk-host-manager/internal/notify"
	"github.com/bcnelson/checkmk-host-manager/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (r *recordingNotifier) Notify(ctx context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recordingNotifier) Messages() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Message(nil), r.msgs...)
}

func newNotificationFixture(t *testing.T, client *fakeRequester) (*NotificationService, *memory.Store, *recordingNotifier) {
	t.Helper()
	store := memory.New()
	notifier := &recordingNotifier{}
	live := NewLiveInfoService(client, testEndpoints, testLogger())
	svc := NewNotificationService(store, store, live, notifier, 7, testLogger())
	svc.now = fixedClock("2024-05-01")
	return svc, store, notifier
}

func TestSendStoresAndForwards(t *testing.T) {
	svc, _, notifier := newNotificationFixture(t, &fakeRequester{})
	ctx := context.Background()

	n, err := svc.Send(ctx, "alice@example.com", "web01", "Hello", "World")
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)

	list, err := svc.List(ctx, "alice@example.com", true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Hello", list[0].Title)

	msgs := notifier.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice@example.com", msgs[0].Recipient)

	require.NoError(t, svc.MarkRead(ctx, "alice@example.com", n.ID))
	list, err = svc.List(ctx, "alice@example.com", true)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, svc.MarkRead(ctx, "bob@example.com", n.ID), domain.ErrNotFound)
}

func TestSendIgnoresForwardingFailure(t *testing.T) {
	svc, _, notifier := newNotificationFixture(t, &fakeRequester{})
	notifier.err = errors.New("webhook down")

	_, err := svc.Send(context.Background(), "alice@example.com", "", "Hello", "World")
	require.NoError(t, err)
}

func TestCheckExpirations(t *testing.T) {
	svc, store, notifier := newNotificationFixture(t, &fakeRequester{})
	ctx := context.Background()
	for _, h := range []*domain.Host{
		{Name: "expired", ExpirationDate: "2024-04-30", OwnerEmail: "alice@example.com"},
		{Name: "soon", ExpirationDate: "2024-05-05", OwnerEmail: "alice@example.com"},
		{Name: "today", ExpirationDate: "2024-05-01", OwnerEmail: "bob@example.com"},
		{Name: "later", ExpirationDate: "2024-06-30", OwnerEmail: "alice@example.com"},
		{Name: "never", OwnerEmail: "alice@example.com"},
		{Name: "ownerless", ExpirationDate: "2024-04-01"},
	} {
		require.NoError(t, store.SaveHost(ctx, h))
	}

	sent, err := svc.CheckExpirations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sent)

	titles := map[string]string{}
	for _, m := range notifier.Messages() {
		titles[m.HostName] = m.Title
	}
	assert.Equal(t, map[string]string{
		"expired": titleHostExpired,
		"soon":    titleHostExpiresSoon,
		"today":   titleHostExpiresSoon,
	}, titles)

	// A second run on the same day sends nothing new.
	sent, err = svc.CheckExpirations(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	svc.now = func() time.Time { return fixedClock("2024-05-02")() }
	sent, err = svc.CheckExpirations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
}

func TestCheckCriticalServices(t *testing.T) {
	crit := "1"
	client := &fakeRequester{
		get: func(url string) (*checkmk.Response, error) {
			return ok(allHostsView(crit))
		},
	}
	svc, store, notifier := newNotificationFixture(t, client)
	ctx := context.Background()
	require.NoError(t, store.SaveHost(ctx, &domain.Host{Name: "web01", OwnerEmail: "alice@example.com"}))

	// First observation only records the baseline.
	sent, err := svc.CheckCriticalServices(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
	count, seen, err := store.GetCriticalCount(ctx, "web01")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, 1, count)

	crit = "3"
	sent, err = svc.CheckCriticalServices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	msgs := notifier.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, titleCriticalIncrease, msgs[0].Title)
	assert.Equal(t, "web01", msgs[0].HostName)

	crit = "2"
	sent, err = svc.CheckCriticalServices(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
	count, _, _ = store.GetCriticalCount(ctx, "web01")
	assert.Equal(t, 2, count)
}

func TestCheckCriticalServicesUnavailable(t *testing.T) {
	svc, _, _ := newNotificationFixture(t, &fakeRequester{})
	_, err := svc.CheckCriticalServices(context.Background())
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	svc, _, _ := newNotificationFixture(t, &fakeRequester{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		svc.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mcserver-backend/internal/model"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// mockStore is a mock implementation of SubscriptionStore.
type mockStore struct {
	SubscriptionsForFunc   func(ctx context.Context, kind string) ([]model.PushSubscription, error)
	DeleteSubscriptionFunc func(ctx context.Context, endpoint string) error
}

func (m *mockStore) SubscriptionsFor(ctx context.Context, kind string) ([]model.PushSubscription, error) {
	return m.SubscriptionsForFunc(ctx, kind)
}

func (m *mockStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return m.DeleteSubscriptionFunc(ctx, endpoint)
}

func response(code int) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(bytes.NewBufferString(""))}
}

func TestWorkerPool_NotifyQueues(t *testing.T) {
	wp := NewWorkerPool(1, &mockStore{}, &webpush.Options{}, zaptest.NewLogger(t), nil)

	wp.Notify(context.Background(), Event{Kind: KindVMStarted, Message: "up"})

	select {
	case ev := <-wp.jobs:
		assert.Equal(t, KindVMStarted, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event to be queued")
	}
}

func TestWorkerPool_NotifyNeverBlocks(t *testing.T) {
	wp := NewWorkerPool(1, &mockStore{}, &webpush.Options{}, zaptest.NewLogger(t), nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(wp.jobs)+3; i++ {
			wp.Notify(context.Background(), Event{Kind: KindVMStopped})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
	assert.Len(t, wp.jobs, cap(wp.jobs))
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t.Run("sends to matching subscribers", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		store := &mockStore{
			SubscriptionsForFunc: func(_ context.Context, kind string) ([]model.PushSubscription, error) {
				assert.Equal(t, "vm_stopped", kind)
				return []model.PushSubscription{{Endpoint: "https://example.com/push", P256DH: "k", Auth: "a"}}, nil
			},
		}
		wp := NewWorkerPool(1, store, &webpush.Options{}, zaptest.NewLogger(t), nil)
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
				defer wg.Done()
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.Equal(t, "k", sub.Keys.P256dh)

				var body pushPayload
				require.NoError(t, json.Unmarshal(payload, &body))
				assert.Equal(t, "Server stopped.", body.Body)
				assert.Equal(t, KindVMStopped, body.Kind)
				return response(http.StatusCreated), nil
			},
		}
		wp.Start(ctx)

		wp.Notify(ctx, Event{Kind: KindVMStopped, Message: "Server stopped."})
		wg.Wait()
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		deleted := make(chan string, 1)
		store := &mockStore{
			SubscriptionsForFunc: func(context.Context, string) ([]model.PushSubscription, error) {
				return []model.PushSubscription{{Endpoint: "https://example.com/expired"}}, nil
			},
			DeleteSubscriptionFunc: func(_ context.Context, endpoint string) error {
				deleted <- endpoint
				return nil
			},
		}
		wp := NewWorkerPool(1, store, &webpush.Options{}, zaptest.NewLogger(t), nil)
		wp.sender = &mockSender{
			SendFunc: func([]byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
				return response(http.StatusGone), nil
			},
		}
		wp.Start(ctx)

		wp.Notify(ctx, Event{Kind: KindShutdownStarted})
		select {
		case endpoint := <-deleted:
			assert.Equal(t, "https://example.com/expired", endpoint)
		case <-time.After(time.Second):
			t.Fatal("expired subscription was not deleted")
		}
	})

	t.Run("store failure sends nothing", func(t *testing.T) {
		called := make(chan struct{}, 1)
		store := &mockStore{
			SubscriptionsForFunc: func(context.Context, string) ([]model.PushSubscription, error) {
				called <- struct{}{}
				return nil, errors.New("db down")
			},
		}
		wp := NewWorkerPool(1, store, &webpush.Options{}, zaptest.NewLogger(t), nil)
		wp.sender = &mockSender{
			SendFunc: func([]byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
				t.Error("sender must not be called")
				return response(http.StatusCreated), nil
			},
		}
		wp.deliver(ctx, Event{Kind: KindVMStarted})
		<-called
	})
}

func TestFanout(t *testing.T) {
	var got []string
	record := func(name string) Notifier {
		return NotifierFunc(func(_ context.Context, ev Event) {
			got = append(got, name+":"+string(ev.Kind))
		})
	}

	Fanout{record("a"), nil, record("b")}.Notify(context.Background(), Event{Kind: KindVMStarted})
	assert.Equal(t, []string{"a:vm_started", "b:vm_started"}, got)
	assert.True(t, Event{Kind: KindShutdownFailed}.Failed())
	assert.NotPanics(t, func() { Discard.Notify(context.Background(), Event{}) })
}

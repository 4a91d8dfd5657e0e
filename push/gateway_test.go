package push_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ouest/trip-engine/push"
)

func newTestGateway(url string, timeout time.Duration) *push.Gateway {
	logger, _ := test.NewNullLogger()
	return push.NewGateway(push.GatewayConfig{
		Host:    url,
		Topic:   "app.ouest.ios",
		Timeout: timeout,
		Logger:  logger,
	})
}

func TestGateway_Send_BuildsAPNsRequest(t *testing.T) {
	var (
		gotPath    string
		gotHeaders http.Header
		gotBody    map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeaders = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	g := newTestGateway(server.URL, time.Second)
	result := g.Send(context.Background(), "jwt-token", "abc123", push.Notification{
		Title: "New expense",
		Body:  "Dinner: 42.00 EUR",
		Data:  map[string]string{"trip_id": "t1", "aps": "ignored"},
	})

	assert.Equal(t, push.Result{Token: "abc123", Success: true, Status: 200}, result)
	assert.Equal(t, "/3/device/abc123", gotPath)
	assert.Equal(t, "bearer jwt-token", gotHeaders.Get("authorization"))
	assert.Equal(t, "app.ouest.ios", gotHeaders.Get("apns-topic"))
	assert.Equal(t, "alert", gotHeaders.Get("apns-push-type"))
	assert.Equal(t, "10", gotHeaders.Get("apns-priority"))
	assert.Equal(t, "application/json", gotHeaders.Get("content-type"))

	assert.Equal(t, "t1", gotBody["trip_id"])
	aps, ok := gotBody["aps"].(map[string]any)
	require.True(t, ok, "aps must stay an object")
	assert.Equal(t, float64(1), aps["badge"])
	assert.Equal(t, "default", aps["sound"])
	assert.Equal(t, map[string]any{"title": "New expense", "body": "Dinner: 42.00 EUR"}, aps["alert"])
}

func TestGateway_Send_RecordsRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		_, _ = w.Write([]byte(`{"reason":"Unregistered"}`))
	}))
	defer server.Close()

	result := newTestGateway(server.URL, time.Second).Send(context.Background(), "jwt", "dead", push.Notification{Title: "t", Body: "b"})

	assert.False(t, result.Success)
	assert.Equal(t, http.StatusGone, result.Status)
	assert.Equal(t, "dead", result.Token)
}

func TestGateway_Send_NetworkFailureIsStatusZero(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	result := newTestGateway(url, time.Second).Send(context.Background(), "jwt", "tok", push.Notification{Title: "t", Body: "b"})

	assert.Equal(t, push.Result{Token: "tok", Success: false, Status: 0}, result)
}

func TestGateway_Send_PerRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	result := newTestGateway(server.URL, 50*time.Millisecond).Send(context.Background(), "jwt", "slow", push.Notification{Title: "t", Body: "b"})

	assert.Equal(t, 0, result.Status)
	assert.False(t, result.Success)
	assert.Less(t, time.Since(start), 5*time.Second)
}

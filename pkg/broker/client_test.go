package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(&Config{
		URL:         url,
		Service:     "warehouse",
		ServicePath: "/robots",
	})
}

func TestClient_Version(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/version", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"orion": {"version": "3.10.0"}}`))
	}))
	defer srv.Close()

	version, err := newTestClient(srv.URL).Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3.10.0", version)
}

func TestClient_VersionUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := newTestClient(srv.URL).Version(context.Background())
	assert.Error(t, err)
}

func TestClient_CreateSubscription(t *testing.T) {
	var captured Subscription
	var service, servicePath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/subscriptions", r.URL.Path)

		service = r.Header.Get("Fiware-Service")
		servicePath = r.Header.Get("Fiware-ServicePath")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Location", "/v2/subscriptions/sub-42")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	spec := SubscriptionSpec{
		Description: "robot changes",
		EntityType:  "Robot",
		Attributes:  []string{"battery", "speed"},
		Throttling:  1,
	}

	id, err := newTestClient(srv.URL).CreateSubscription(context.Background(), spec, "http://ts:8668/v2/notify")
	require.NoError(t, err)

	assert.Equal(t, "sub-42", id)
	assert.Equal(t, "warehouse", service)
	assert.Equal(t, "/robots", servicePath)

	require.NotNil(t, captured.Subject)
	require.Len(t, captured.Subject.Entities, 1)
	assert.Equal(t, "Robot", captured.Subject.Entities[0].Type)
	assert.Equal(t, ".*", captured.Subject.Entities[0].IDPattern)
	require.NotNil(t, captured.Subject.Condition)
	assert.Equal(t, []string{"battery", "speed"}, captured.Subject.Condition.Attrs)

	require.NotNil(t, captured.Notification)
	require.NotNil(t, captured.Notification.HTTP)
	assert.Equal(t, "http://ts:8668/v2/notify", captured.Notification.HTTP.URL)
}

func TestClient_CreateSubscriptionBrokerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "BadRequest"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreateSubscription(context.Background(), SubscriptionSpec{EntityType: "Robot"}, "http://ts:8668/v2/notify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestClient_ListSubscriptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/subscriptions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": "sub-1", "status": "active", "subject": {"entities": [{"idPattern": ".*", "type": "Robot"}]}, "notification": {"http": {"url": "http://ts:8668/v2/notify"}}}]`))
	}))
	defer srv.Close()

	subs, err := newTestClient(srv.URL).ListSubscriptions(context.Background())
	require.NoError(t, err)

	require.Len(t, subs, 1)
	assert.Equal(t, "sub-1", subs[0].ID)
	assert.Equal(t, "Robot", subs[0].Subject.Entities[0].Type)
}

func TestClient_EnsureSubscriptionsSkipsExisting(t *testing.T) {
	created := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"id": "sub-1", "subject": {"entities": [{"type": "Robot"}]}, "notification": {"http": {"url": "http://ts:8668/v2/notify"}}}]`))
		case http.MethodPost:
			created++
			w.Header().Set("Location", "/v2/subscriptions/sub-new")
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	specs := []SubscriptionSpec{
		{EntityType: "Robot"},
		{EntityType: "Conveyor"},
	}

	ids, err := newTestClient(srv.URL).EnsureSubscriptions(context.Background(), specs, "http://ts:8668/v2/notify")
	require.NoError(t, err)

	assert.Equal(t, 1, created, "only the missing entity type is registered")
	assert.Equal(t, []string{"sub-new"}, ids)
}

func TestConfig_Validate(t *testing.T) {
	t.Run("disabled config never fails", func(t *testing.T) {
		assert.NoError(t, (&Config{}).Validate())
	})

	t.Run("enabled without notify URL", func(t *testing.T) {
		config := GetDefaultConfig()
		config.Enabled = true
		assert.Error(t, config.Validate())
	})

	t.Run("enabled with subscription missing entity type", func(t *testing.T) {
		config := GetDefaultConfig()
		config.Enabled = true
		config.NotifyURL = "http://ts:8668/v2/notify"
		config.Subscriptions = []SubscriptionSpec{{}}
		assert.Error(t, config.Validate())
	})
}

package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/5day4cast/coordinator/internal/domain"
)

func TestClient_CreateEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/events", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"oracle_event_id":"evt-1","announced_at":"2026-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	announcement, err := client.CreateEvent(
		context.Background(),
		"evt-1",
		[]domain.Location{{StationID: "KSEA"}},
		time.Unix(0, 0), time.Unix(3600, 0), 1,
	)
	require.NoError(t, err)
	require.Equal(t, "evt-1", announcement.OracleEventID)
}

func TestClient_CreateEvent_ConflictTreatedAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"oracle_event_id":"evt-1"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	announcement, err := client.CreateEvent(context.Background(), "evt-1", nil, time.Unix(0, 0), time.Unix(1, 0), 1)
	require.NoError(t, err)
	require.Equal(t, "evt-1", announcement.OracleEventID)
}

func TestClient_GetEventStatus_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.GetEventStatus(context.Background(), "evt-1")
	require.Error(t, err)
	require.True(t, IsTransient(err))
}

func TestClient_GetEventStatus_NotAttested(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"attested":false}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	status, err := client.GetEventStatus(context.Background(), "evt-1")
	require.NoError(t, err)
	require.False(t, status.Attested)
}

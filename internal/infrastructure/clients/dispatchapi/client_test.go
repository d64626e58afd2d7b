package dispatchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
	apperrors "github.com/shivam13669/CRMManagementt-sub003/pkg/errors"
)

type recordingObserver struct {
	mu       sync.Mutex
	statuses []int
	subjects []string
}

func (o *recordingObserver) SessionRejected(ctx context.Context, actor entities.ActorContext, statusCode int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, statusCode)
	o.subjects = append(o.subjects, actor.Subject)
}

func actorCtx() context.Context {
	return entities.ContextWithActor(context.Background(), entities.ActorContext{
		Subject: "op-1",
		Role:    entities.RoleSystemAdmin,
		Token:   "tok-123",
	})
}

func TestHTTPClient_ListRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/dispatch-requests", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":[
			{"id":42,"status":"pending","priority":"critical","emergency_type":"Cardiac","pickup_location":"19.07,72.88",
			 "patient_name":"Asha","customer_state":"Maharashtra","created_at":"2026-03-01T10:00:00Z"},
			{"id":43,"status":"forwarded_to_hospital","priority":"weird","pickup_location":"12 MG Road",
			 "forwarded_to_hospital_id":7,"hospital_name":"City","hospital_response":"pending",
			 "hospital_response_date":"2026-03-01T11:00:00Z","owner_state":"Goa","customer_state":"Kerala",
			 "ambulance_registration":"MH-01","created_at":"2026-03-01T09:00:00Z"}
		]}`))
	}))
	defer server.Close()

	client := NewClientWithOptions(server.URL+"/api/", server.Client(), nil)

	requests, err := client.ListRequests(actorCtx())
	require.NoError(t, err)
	require.Len(t, requests, 2)

	first := requests[0]
	assert.Equal(t, int64(42), first.ID)
	assert.Equal(t, entities.StatusPending, first.Status)
	assert.Equal(t, entities.PriorityCritical, first.Priority)
	assert.True(t, first.Pickup.IsCoordinates())
	assert.Equal(t, "19.07,72.88", first.Pickup.Raw())
	assert.Equal(t, "Maharashtra", first.OwnerState)
	assert.Nil(t, first.Forward)

	second := requests[1]
	assert.Equal(t, entities.PriorityNormal, second.Priority)
	assert.Equal(t, "Goa", second.OwnerState)
	assert.False(t, second.Pickup.IsCoordinates())
	require.NotNil(t, second.Forward)
	assert.Equal(t, int64(7), second.Forward.HospitalID)
	assert.Equal(t, entities.ForwardResponsePending, second.Forward.Response)
	assert.Nil(t, second.Forward.RespondedAt)
	require.NotNil(t, second.AssignedAmbulance)
	assert.Equal(t, "MH-01", second.AssignedAmbulance.Registration)
}

func TestHTTPClient_BareArrayAndCoordinateFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"status":"assigned","pickup_latitude":18.52,"pickup_longitude":73.85}]`))
	}))
	defer server.Close()

	requests, err := NewClientWithOptions(server.URL, server.Client(), nil).ListRequests(actorCtx())
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, entities.Coordinates{Latitude: 18.52, Longitude: 73.85}, requests[0].Pickup.Coordinates)
}

func TestHTTPClient_SessionRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	observer := &recordingObserver{}
	client := NewClientWithOptions(server.URL, server.Client(), observer)

	_, err := client.ListRequests(actorCtx())
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnauthorized))

	err = client.Forward(actorCtx(), 42, 7)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnauthorized))

	assert.Equal(t, []int{401, 401}, observer.statuses)
	assert.Equal(t, []string{"op-1", "op-1"}, observer.subjects)
}

func TestHTTPClient_Forward(t *testing.T) {
	t.Run("sends hospital id", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/dispatch-requests/42/forward", r.URL.Path)
			var body map[string]int64
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, int64(7), body["hospitalId"])
			_, _ = w.Write([]byte(`{"success":true}`))
		}))
		defer server.Close()

		err := NewClientWithOptions(server.URL, server.Client(), nil).Forward(actorCtx(), 42, 7)
		assert.NoError(t, err)
	})

	t.Run("backend rejection carries reason", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"success":false,"message":"Hospital no longer accepting"}`))
		}))
		defer server.Close()

		err := NewClientWithOptions(server.URL, server.Client(), nil).Forward(actorCtx(), 42, 7)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeTransitionRejected))
		assert.Equal(t, "Hospital no longer accepting", apperrors.ReasonOf(err))
	})
}

func TestHTTPClient_Timeouts(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClientWithOptions(server.URL, &http.Client{Timeout: 50 * time.Millisecond}, nil)

	_, err := client.ListRequests(actorCtx())
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeFetch), "got %v", err)

	err = client.Forward(actorCtx(), 1, 2)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeTransitionRejected), "got %v", err)
	assert.Equal(t, "timeout", apperrors.ReasonOf(err))
}

func TestHTTPClient_ListHospitals(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"data":[{"id":7,"name":"City","address":"1 Main","state":"Maharashtra","ambulance_count":3}]}`))
	}))
	defer server.Close()

	client := NewClientWithOptions(server.URL, server.Client(), nil)

	hospitals, err := client.ListHospitals(actorCtx(), "Maharashtra")
	require.NoError(t, err)
	assert.Equal(t, "state=Maharashtra", gotQuery)
	assert.Equal(t, []entities.Hospital{{ID: 7, Name: "City", Address: "1 Main", State: "Maharashtra", AmbulanceCount: 3}}, hospitals)

	_, err = client.ListHospitals(actorCtx(), "")
	require.NoError(t, err)
	assert.Empty(t, gotQuery)
}

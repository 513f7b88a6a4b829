package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalpass/standby-cli/internal/model"
)

func testCriteria() model.SearchCriteria {
	return model.SearchCriteria{
		FlightType:   model.FlightTypeOneWay,
		TravelStatus: model.TravelStatusStandby,
		Trips:        []model.Trip{{Origin: "FRA", Destination: "SFO"}},
		Itinerary:    []model.ItineraryLeg{{Date: "09/15/2026", Time: "09:00 AM", Class: "Economy"}},
	}
}

func TestCollectorAdapter_Collect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/collect", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var got model.SearchCriteria
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "FRA", got.Trips[0].Origin)

		json.NewEncoder(w).Encode(collectResponse{
			Records: []model.RawFlightRecord{
				{FlightNumber: "UA954", Origin: "FRA", Destination: "SFO"},
			},
		})
	}))
	defer srv.Close()

	a := NewCollectorAdapter(model.SourcePricing, srv.URL)

	var percents []int
	records, err := a.Collect(context.Background(), testCriteria(), func(p int, _ string) {
		percents = append(percents, p)
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	// The adapter stamps its own source name on every record.
	assert.Equal(t, model.SourcePricing, records[0].Source)
	assert.Equal(t, []int{5, 80, 95}, percents)
}

func TestCollectorAdapter_CollectNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "browser pool exhausted", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewCollectorAdapter(model.SourceSchedule, srv.URL)
	_, err := a.Collect(context.Background(), testCriteria(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "browser pool exhausted")
}

func TestCollectorAdapter_CollectErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(collectResponse{Error: "login rejected"})
	}))
	defer srv.Close()

	a := NewCollectorAdapter(model.SourceSchedule, srv.URL)
	_, err := a.Collect(context.Background(), testCriteria(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login rejected")
}

func TestCollectorAdapter_CollectContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewCollectorAdapter(model.SourceSchedule, srv.URL)
	_, err := a.Collect(ctx, testCriteria(), nil)
	require.Error(t, err)
}

func TestNewCollectorAdapter_TrimsTrailingSlash(t *testing.T) {
	a := NewCollectorAdapter(model.SourceLoads, "http://collector:9000/")
	assert.Equal(t, "http://collector:9000", a.baseURL)
	assert.Equal(t, model.SourceLoads, a.Name())
}

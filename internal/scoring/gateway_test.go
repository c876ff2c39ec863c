package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/storepulse/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testGateway(url string) *HTTPGateway {
	return newHTTPGateway(config.ScoringConfig{
		BaseURL:        url,
		ConnectTimeout: time.Second,
		ReadTimeout:    2 * time.Second,
	}, zap.NewNop(), nil)
}

func TestHTTPGatewayScore(t *testing.T) {
	var received map[string][]map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/ai/customers", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"result":[{"customer_id":"11","customer_segment":"LOYAL","predicted_loyalty_score":0.958,"churn_risk_score":0.04}]}`))
	}))
	defer srv.Close()

	results, err := testGateway(srv.URL).Score(context.Background(), 1, []FeatureVector{
		{CustomerID: 11, Amount: 10, TotalVisits: 2, Counts: []int64{1, 1}, Unit: "month"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "11", results[0].CustomerID)
	assert.Equal(t, "LOYAL", results[0].Segment)
	assert.InDelta(t, 0.958, results[0].PredictedLoyaltyScore, 1e-9)

	require.Len(t, received["data"], 1)
	assert.Equal(t, "11", received["data"][0]["customer_id"])
	assert.Equal(t, float64(1), received["data"][0]["visits_2_month_ago"])
}

func TestHTTPGatewayEmptyBatchSkipsCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	results, err := testGateway(srv.URL).Score(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Zero(t, calls.Load())
}

func TestHTTPGatewayErrors(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		target  error
	}{
		{
			name: "non-2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model offline", http.StatusServiceUnavailable)
			},
			target: ErrScoringService,
		},
		{
			name: "null result",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"result":null}`))
			},
			target: ErrEmptyResult,
		},
		{
			name: "empty result",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"result":[]}`))
			},
			target: ErrEmptyResult,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
			target: ErrScoringService,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			_, err := testGateway(srv.URL).Score(context.Background(), 77, []FeatureVector{{CustomerID: 1}})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.target)
			assert.ErrorIs(t, err, ErrScoringService)
			assert.Contains(t, err.Error(), "77")

			var svcErr *ServiceError
			require.True(t, errors.As(err, &svcErr))
			assert.True(t, svcErr.ExternalService())
		})
	}
}

func TestHTTPGatewayReadTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	gw := newHTTPGateway(config.ScoringConfig{
		BaseURL:        srv.URL,
		ConnectTimeout: time.Second,
		ReadTimeout:    100 * time.Millisecond,
	}, zap.NewNop(), nil)

	_, err := gw.Score(context.Background(), 3, []FeatureVector{{CustomerID: 1}})
	assert.ErrorIs(t, err, ErrScoringService)
}

func TestHTTPGatewayNotConfigured(t *testing.T) {
	_, err := testGateway("").Score(context.Background(), 1, []FeatureVector{{CustomerID: 1}})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/config"
	"github.com/smallbiznis/storepulse/internal/observability/metrics"
	"github.com/smallbiznis/storepulse/internal/observability/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const scorePath = "/api/ai/customers"

var (
	ErrScoringService = errors.New("scoring_service_error")
	ErrEmptyResult    = errors.New("scoring_empty_result")
	ErrNotConfigured  = errors.New("scoring_not_configured")
)

// Result is one scored customer as returned by the scoring service.
type Result struct {
	CustomerID            string  `json:"customer_id"`
	Segment               string  `json:"customer_segment"`
	PredictedLoyaltyScore float64 `json:"predicted_loyalty_score"`
	ChurnRiskScore        float64 `json:"churn_risk_score"`
}

// Gateway scores one store's batch in a single synchronous call.
type Gateway interface {
	Score(ctx context.Context, storeID snowflake.ID, batch []FeatureVector) ([]Result, error)
}

// ServiceError reports a failed call to the scoring service.
type ServiceError struct {
	StoreID    snowflake.ID
	StatusCode int
	Body       string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: store %s: status %d: %s", ErrScoringService, e.StoreID, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: store %s: %v", ErrScoringService, e.StoreID, e.Err)
}

func (e *ServiceError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrScoringService}
	}
	return []error{ErrScoringService, e.Err}
}

func (e *ServiceError) ExternalService() bool { return true }

type scoreRequest struct {
	Data []FeatureVector `json:"data"`
}

type scoreResponse struct {
	Result []Result `json:"result"`
}

type GatewayParams struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

// HTTPGateway calls the scoring service over HTTP/JSON.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewHTTPGateway(p GatewayParams) Gateway {
	return newHTTPGateway(p.Config.Scoring, p.Log, p.Metrics)
}

func newHTTPGateway(cfg config.ScoringConfig, log *zap.Logger, m *metrics.Metrics) *HTTPGateway {
	if log == nil {
		log = zap.NewNop()
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 20 * time.Second
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 5 * time.Minute
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout: connectTimeout,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &HTTPGateway{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		client:  &http.Client{Transport: transport, Timeout: readTimeout},
		log:     log.Named("scoring.gateway"),
		metrics: m,
		tracer:  otel.Tracer("storepulse/scoring"),
	}
}

func (g *HTTPGateway) Score(ctx context.Context, storeID snowflake.ID, batch []FeatureVector) ([]Result, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	if g.baseURL == "" {
		return nil, ErrNotConfigured
	}

	ctx, span := g.tracer.Start(ctx, "scoring.score", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("store_id", storeID.String()),
		attribute.Int("batch_size", len(batch)),
	)...)

	start := time.Now()
	results, err := g.do(ctx, storeID, batch)
	outcome := "success"
	if err != nil {
		outcome = "failed"
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "scoring failed")
	}
	metrics.Analysis().ObserveScoringLatency(outcome, time.Since(start))
	g.metrics.RecordScoringCall(ctx, outcome)
	return results, err
}

func (g *HTTPGateway) do(ctx context.Context, storeID snowflake.ID, batch []FeatureVector) ([]Result, error) {
	payload, err := json.Marshal(scoreRequest{Data: batch})
	if err != nil {
		return nil, fmt.Errorf("encode scoring request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+scorePath, bytes.NewReader(payload))
	if err != nil {
		return nil, &ServiceError{StoreID: storeID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	tracing.InjectContext(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &ServiceError{StoreID: storeID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &ServiceError{
			StoreID:    storeID,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var decoded scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &ServiceError{StoreID: storeID, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(decoded.Result) == 0 {
		return nil, &ServiceError{StoreID: storeID, Err: ErrEmptyResult}
	}

	g.log.Debug("scoring.score.done",
		zap.String("store_id", storeID.String()),
		zap.Int("batch_size", len(batch)),
		zap.Int("results", len(decoded.Result)),
	)
	return decoded.Result, nil
}

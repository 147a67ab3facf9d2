// Package aqs is a small client for the EPA Air Quality System data API.
package aqs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/JakeFAU/aqsharvest/internal/metrics"
)

// DefaultBaseURL is the public AQS API root.
const DefaultBaseURL = "https://aqs.epa.gov/data/api"

// Endpoint paths, also used as metric and rate-limit keys.
const (
	EndpointParametersByClass = "list/parametersByClass"
	EndpointDailyByCounty     = "dailyData/byCounty"
)

// ErrMissingData means the response decoded but carried no "Data" key.
var ErrMissingData = errors.New("aqs response has no Data key")

// StatusError reports a non-200 response.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("aqs %s: HTTP %d: %s", e.Endpoint, e.Code, e.Body)
}

// Credentials is the email/key pair AQS requires on every call.
type Credentials struct {
	Email string
	Key   string
}

// Limiter gates outgoing requests.
type Limiter interface {
	Wait(ctx context.Context, endpoint string) error
}

// Config controls Client behavior.
type Config struct {
	BaseURL     string
	Credentials Credentials
	Timeout     time.Duration
	UserAgent   string
	// Tracer opens a client span per request. Nil disables tracing.
	Tracer trace.Tracer
}

// Client calls the AQS API.
type Client struct {
	baseURL    string
	creds      Credentials
	userAgent  string
	httpClient *http.Client
	limiter    Limiter
	tracer     trace.Tracer
	logger     *zap.Logger
}

// NewClient builds a Client. A nil limiter disables client-side throttling.
func NewClient(cfg Config, limiter Limiter, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Client{
		baseURL:    base,
		creds:      cfg.Credentials,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		tracer:     tracer,
		logger:     logger,
	}
}

// DailyQuery selects one county's daily data for a parameter and date span.
type DailyQuery struct {
	Param  string
	BDate  string // YYYYMMDD
	EDate  string // YYYYMMDD
	State  string
	County string
}

// ParametersByClass lists the parameters that belong to a parameter class.
func (c *Client) ParametersByClass(ctx context.Context, class string) (ParameterSet, error) {
	params := url.Values{"pc": {class}}
	var resp struct {
		envelope
		Data *[]struct {
			Code             string `json:"code"`
			ValueRepresented string `json:"value_represented"`
		} `json:"Data"`
	}
	if err := c.get(ctx, EndpointParametersByClass, params, &resp); err != nil {
		return ParameterSet{}, err
	}
	if resp.Data == nil {
		return ParameterSet{}, fmt.Errorf("parameters for class %s: %w", class, ErrMissingData)
	}
	var set ParameterSet
	for _, item := range *resp.Data {
		set.Add(item.ValueRepresented, item.Code)
	}
	return set, nil
}

// DailyByCounty returns the daily summary rows for a county.
// An absent or empty result set yields an empty slice.
func (c *Client) DailyByCounty(ctx context.Context, q DailyQuery) ([]Row, error) {
	params := url.Values{
		"param":  {q.Param},
		"bdate":  {q.BDate},
		"edate":  {q.EDate},
		"state":  {q.State},
		"county": {q.County},
	}
	var resp struct {
		envelope
		Data *[]Row `json:"Data"`
	}
	if err := c.get(ctx, EndpointDailyByCounty, params, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("daily data %s/%s/%s: %w", q.Param, q.County, q.BDate, ErrMissingData)
	}
	return *resp.Data, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out headerDecoder) (err error) {
	ctx, span := c.tracer.Start(ctx, "aqs "+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(spanAttributes(endpoint, params)...),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			return err
		}
	}

	params.Set("email", c.creds.Email)
	params.Set("key", c.creds.Key)
	fullURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveAQSRequest(endpoint, 0, time.Since(start))
		return fmt.Errorf("%s request: %w", endpoint, redactURL(err))
	}
	defer resp.Body.Close()
	metrics.ObserveAQSRequest(endpoint, resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}

	if h, ok := out.header(); ok {
		span.SetAttributes(attribute.String("aqs.status", h.Status), attribute.Int("aqs.rows", h.Rows))
		c.logger.Debug("aqs response",
			zap.String("endpoint", endpoint),
			zap.String("status", h.Status),
			zap.Int("rows", h.Rows),
			zap.Strings("errors", h.Error),
		)
	}
	return nil
}

// redactURL strips the request URL, which carries the credentials, from
// transport errors.
func redactURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}

// spanAttributes copies the query selectors onto a span. Credentials are
// added to params later and never reach the span.
func spanAttributes(endpoint string, params url.Values) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("aqs.endpoint", endpoint)}
	for _, k := range []string{"pc", "param", "bdate", "edate", "state", "county"} {
		if v := params.Get(k); v != "" {
			attrs = append(attrs, attribute.String("aqs."+k, v))
		}
	}
	return attrs
}

// envelope is the AQS "Header" block present on every response.
type envelope struct {
	Header []Header `json:"Header"`
}

// Header is the per-response status block.
type Header struct {
	Status      string   `json:"status"`
	RequestTime string   `json:"request_time"`
	URL         string   `json:"url"`
	Rows        int      `json:"rows"`
	Error       []string `json:"error"`
}

type headerDecoder interface {
	header() (Header, bool)
}

func (e *envelope) header() (Header, bool) {
	if len(e.Header) == 0 {
		return Header{}, false
	}
	return e.Header[0], true
}

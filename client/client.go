// Package client talks to the risk API and presents its answer.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OperatingThreshold is the cut-off chosen for high recall during evaluation.
const OperatingThreshold = 0.3

// ErrConnection means the endpoint could not be reached at all.
var ErrConnection = errors.New("could not connect to the backend")

// APIError is an error envelope returned by the service.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error (%d, %s): %s", e.Status, e.Kind, e.Message)
}

// Bounds is the inclusive range a slider allows.
type Bounds struct {
	Min float64
	Max float64
}

func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

var (
	HRBounds    = Bounds{40, 200}
	SBPBounds   = Bounds{50, 200}
	TempBounds  = Bounds{35.0, 42.0}
	O2SatBounds = Bounds{70, 100}
	WBCBounds   = Bounds{1.0, 50.0}
)

// Vitals are the five bedside values the assessment form collects.
type Vitals struct {
	HR    float64 `json:"HR"`
	SBP   float64 `json:"SBP"`
	Temp  float64 `json:"Temp"`
	O2Sat float64 `json:"O2Sat"`
	WBC   float64 `json:"WBC"`
}

// DefaultVitals are the slider positions the form opens with.
func DefaultVitals() Vitals {
	return Vitals{HR: 140, SBP: 85, Temp: 39.5, O2Sat: 85, WBC: 18}
}

// Validate checks every vital against its slider bounds.
func (v Vitals) Validate() error {
	checks := []struct {
		name   string
		value  float64
		bounds Bounds
	}{
		{"HR", v.HR, HRBounds},
		{"SBP", v.SBP, SBPBounds},
		{"Temp", v.Temp, TempBounds},
		{"O2Sat", v.O2Sat, O2SatBounds},
		{"WBC", v.WBC, WBCBounds},
	}
	for _, c := range checks {
		if !c.bounds.Contains(c.value) {
			return fmt.Errorf("%s %v outside [%v, %v]", c.name, c.value, c.bounds.Min, c.bounds.Max)
		}
	}
	return nil
}

// Client calls the risk API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default 10s-timeout client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type predictResponse struct {
	Probability *float64 `json:"probability"`
	Error       string   `json:"error"`
	Kind        string   `json:"kind"`
}

// Predict sends only the five vitals and returns the risk probability.
func (c *Client) Predict(ctx context.Context, v Vitals) (float64, error) {
	if err := v.Validate(); err != nil {
		return 0, err
	}
	body, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	var decoded predictResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return 0, fmt.Errorf("unexpected response (%d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode == http.StatusOK && decoded.Probability != nil {
		return *decoded.Probability, nil
	}
	message := decoded.Error
	if message == "" {
		message = "Unknown error"
	}
	return 0, &APIError{Status: resp.StatusCode, Kind: decoded.Kind, Message: message}
}

// Assess predicts and classifies at OperatingThreshold.
func (c *Client) Assess(ctx context.Context, v Vitals) (Assessment, error) {
	p, err := c.Predict(ctx, v)
	if err != nil {
		return Assessment{}, err
	}
	return Classify(p, OperatingThreshold), nil
}

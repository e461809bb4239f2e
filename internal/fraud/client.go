// Package fraud adapts an external risk-scoring HTTP service. The score is
// advisory; the lifecycle never gates on it.
package fraud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	appmodels "scholarship/internal/application/models"
	docmodels "scholarship/internal/document/models"
	"scholarship/pkg/platform/circuit"
	"scholarship/pkg/platform/sentinel"
)

const defaultTimeout = 3 * time.Second

type scoreRequest struct {
	ApplicationID string          `json:"application_id"`
	StudentID     string          `json:"student_id"`
	Type          string          `json:"type"`
	Year          int             `json:"year"`
	Eligibility   string          `json:"eligibility"`
	District      string          `json:"district"`
	Documents     []scoreDocument `json:"documents"`
}

type scoreDocument struct {
	Type      string     `json:"type"`
	FileName  string     `json:"file_name"`
	IssuedAt  *time.Time `json:"issued_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type scoreResponse struct {
	Score *int `json:"score"`
}

// Client calls the scorer with a hard timeout behind a circuit breaker.
type Client struct {
	url     string
	http    *http.Client
	timeout time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:     url,
		http:    &http.Client{},
		timeout: defaultTimeout,
		breaker: circuit.New("fraud_scorer"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Score returns a value in [0, 100]. It fails fast with sentinel.ErrUnavailable
// while the breaker is open.
func (c *Client) Score(ctx context.Context, app *appmodels.Application, docs []*docmodels.Document) (int, error) {
	if !c.breaker.Allow() {
		return 0, fmt.Errorf("fraud scorer circuit open: %w", sentinel.ErrUnavailable)
	}
	score, err := c.call(ctx, app, docs)
	if err != nil {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.WarnContext(ctx, "fraud scorer circuit opened", "error", err)
		}
		return 0, err
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "fraud scorer circuit closed")
	}
	return score, nil
}

func (c *Client) call(ctx context.Context, app *appmodels.Application, docs []*docmodels.Document) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(buildRequest(app, docs))
	if err != nil {
		return 0, fmt.Errorf("encode score request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("call fraud scorer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("fraud scorer returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
	var out scoreResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode score response: %w", err)
	}
	if out.Score == nil || *out.Score < 0 || *out.Score > 100 {
		return 0, fmt.Errorf("fraud scorer returned an out-of-range score")
	}
	return *out.Score, nil
}

func buildRequest(app *appmodels.Application, docs []*docmodels.Document) scoreRequest {
	req := scoreRequest{
		ApplicationID: app.ID.String(),
		StudentID:     app.StudentID.String(),
		Type:          string(app.Type),
		Year:          app.Year,
		Eligibility:   string(app.Eligibility),
		District:      app.District,
		Documents:     make([]scoreDocument, 0, len(docs)),
	}
	for _, d := range docs {
		req.Documents = append(req.Documents, scoreDocument{
			Type:      string(d.Type),
			FileName:  d.FileName,
			IssuedAt:  d.IssuedAt,
			ExpiresAt: d.ExpiresAt,
		})
	}
	return req
}

// Disabled is used when no scorer is configured.
type Disabled struct{}

func (Disabled) Score(context.Context, *appmodels.Application, []*docmodels.Document) (int, error) {
	return 0, fmt.Errorf("fraud scoring disabled: %w", sentinel.ErrUnavailable)
}

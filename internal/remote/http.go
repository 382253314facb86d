package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"ontime/internal/domain"
	"ontime/pkg/logx"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultRetryBase = 200 * time.Millisecond
	maxBodyBytes     = 8 << 20
)

// HTTPClient talks JSON to the remote store.
//
// Only idempotent GETs are retried; writes are attempted once so a timed-out
// create is never duplicated.
type HTTPClient struct {
	base      *url.URL
	hc        *http.Client
	limiter   *rate.Limiter
	retryMax  int
	retryBase time.Duration
	log       logx.Logger
}

var _ Client = (*HTTPClient)(nil)

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		if d > 0 {
			c.hc.Timeout = d
		}
	}
}

// WithRateLimit caps outgoing requests. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *HTTPClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, burst))
	}
}

// WithRetries sets how many times a failed GET is repeated.
func WithRetries(n int, base time.Duration) Option {
	return func(c *HTTPClient) {
		c.retryMax = max(0, n)
		if base > 0 {
			c.retryBase = base
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(c *HTTPClient) { c.log = log }
}

func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("remote: empty base url")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote: unsupported scheme %q", u.Scheme)
	}
	c := &HTTPClient{
		base:      u,
		hc:        &http.Client{Timeout: defaultTimeout},
		retryBase: defaultRetryBase,
		log:       logx.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	c.log = c.log.With(logx.String("comp", "remote"))
	return c, nil
}

// ---- tasks ----

func (c *HTTPClient) ListTasks(ctx context.Context, scopeID string) ([]domain.Task, error) {
	body, err := c.get(ctx, "/tasks", scopeQuery(scopeID))
	if err != nil {
		return nil, err
	}
	tasks, skipped, err := DecodeTasks(body)
	if err != nil {
		return nil, domain.NewTransport("GET /tasks", 0, fmt.Errorf("decode: %w", err))
	}
	if skipped > 0 {
		c.log.Warn("skipped malformed task rows", logx.Int("skipped", skipped))
	}
	return tasks, nil
}

func (c *HTTPClient) CreateTask(ctx context.Context, scopeID string, f domain.TaskFields) error {
	_, err := c.send(ctx, http.MethodPost, "/tasks", encodeTask(scopeID, f))
	return err
}

func (c *HTTPClient) UpdateTask(ctx context.Context, scopeID, id string, f domain.TaskFields) error {
	_, err := c.send(ctx, http.MethodPut, idPath("/tasks", id), encodeTask(scopeID, f))
	return err
}

func (c *HTTPClient) DeleteTask(ctx context.Context, id string) error {
	_, err := c.send(ctx, http.MethodDelete, idPath("/tasks", id), nil)
	return err
}

// ---- time entries ----

func (c *HTTPClient) ListEntries(ctx context.Context, scopeID string) ([]domain.TimeEntry, error) {
	body, err := c.get(ctx, "/time-entries", scopeQuery(scopeID))
	if err != nil {
		return nil, err
	}
	entries, skipped, err := DecodeEntries(body)
	if err != nil {
		return nil, domain.NewTransport("GET /time-entries", 0, fmt.Errorf("decode: %w", err))
	}
	if skipped > 0 {
		c.log.Warn("skipped malformed entry rows", logx.Int("skipped", skipped))
	}
	return entries, nil
}

func (c *HTTPClient) CreateEntry(ctx context.Context, scopeID string, f domain.EntryFields) error {
	_, err := c.send(ctx, http.MethodPost, "/time-entries", encodeEntry(scopeID, f))
	return err
}

func (c *HTTPClient) DeleteEntry(ctx context.Context, id string) error {
	_, err := c.send(ctx, http.MethodDelete, idPath("/time-entries", id), nil)
	return err
}

// ---- sheets / projects ----

func (c *HTTPClient) ListSheets(ctx context.Context) ([]domain.Sheet, error) {
	body, err := c.get(ctx, "/sheets", nil)
	if err != nil {
		return nil, err
	}
	sheets, err := DecodeSheets(body)
	if err != nil {
		return nil, domain.NewTransport("GET /sheets", 0, fmt.Errorf("decode: %w", err))
	}
	return sheets, nil
}

func (c *HTTPClient) CreateSheet(ctx context.Context, f domain.SheetFields) (domain.Sheet, error) {
	body, err := c.send(ctx, http.MethodPost, "/sheets", encodeSheet(f))
	if err != nil {
		return domain.Sheet{}, err
	}
	s, err := decodeSheet(body)
	if err != nil {
		return domain.Sheet{}, domain.NewTransport("POST /sheets", 0, fmt.Errorf("decode: %w", err))
	}
	return s, nil
}

func (c *HTTPClient) UpdateSheet(ctx context.Context, id string, f domain.SheetFields) error {
	_, err := c.send(ctx, http.MethodPut, idPath("/sheets", id), encodeSheet(f))
	return err
}

func (c *HTTPClient) DeleteSheet(ctx context.Context, id string) error {
	_, err := c.send(ctx, http.MethodDelete, idPath("/sheets", id), nil)
	return err
}

func (c *HTTPClient) ListProjects(ctx context.Context) ([]domain.Project, error) {
	body, err := c.get(ctx, "/projects", nil)
	if err != nil {
		return nil, err
	}
	projects, err := DecodeProjects(body)
	if err != nil {
		return nil, domain.NewTransport("GET /projects", 0, fmt.Errorf("decode: %w", err))
	}
	return projects, nil
}

// ---- reports ----

func (c *HTTPClient) SendReport(ctx context.Context, req ReportRequest) (ReportResult, error) {
	body, err := c.send(ctx, http.MethodPost, "/reports/send", encodeReport(req))
	if err != nil {
		return ReportResult{}, err
	}
	res, err := decodeReportResult(body)
	if err != nil {
		return ReportResult{}, domain.NewTransport("POST /reports/send", 0, fmt.Errorf("decode: %w", err))
	}
	return res, nil
}

func (c *HTTPClient) ListReports(ctx context.Context) ([]Report, error) {
	body, err := c.get(ctx, "/reports", nil)
	if err != nil {
		return nil, err
	}
	reports, err := DecodeReports(body)
	if err != nil {
		return nil, domain.NewTransport("GET /reports", 0, fmt.Errorf("decode: %w", err))
	}
	return reports, nil
}

// ---- plumbing ----

// The remote historically names the scope "userId"; both names are sent.
func scopeQuery(scopeID string) url.Values {
	return url.Values{"scopeId": {scopeID}, "userId": {scopeID}}
}

func (c *HTTPClient) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff(c.retryBase, attempt)); err != nil {
				return nil, domain.NewTransport("GET "+path, 0, err)
			}
		}
		body, err := c.do(ctx, http.MethodGet, path, q, nil)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !domain.IsRetryable(err) || ctx.Err() != nil {
			break
		}
		c.log.Debug("retrying remote read", logx.String("path", path), logx.Int("attempt", attempt+1), logx.Err(err))
	}
	return nil, lastErr
}

func (c *HTTPClient) send(ctx context.Context, method, path string, payload any) ([]byte, error) {
	return c.do(ctx, method, path, nil, payload)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, q url.Values, payload any) ([]byte, error) {
	op := method + " " + path
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, domain.NewTransport(op, 0, err)
		}
	}

	u := *c.base
	// path carries escaped ids; keep both forms so they are not escaped twice
	u.RawPath = strings.TrimRight(u.EscapedPath(), "/") + path
	if p, err := url.PathUnescape(u.RawPath); err == nil {
		u.Path = p
	}
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var rdr io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, domain.NewTransport(op, 0, fmt.Errorf("encode: %w", err))
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, domain.NewTransport(op, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.log.Warn("remote call failed", logx.String("op", op), logx.String("request_id", reqID), logx.Err(err))
		return nil, domain.NewTransport(op, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.NewTransport(op, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}
	c.log.Trace("remote call",
		logx.String("op", op),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.NewTransport(op, resp.StatusCode, remoteMessage(body))
	}
	return body, nil
}

// remoteMessage extracts {"error": "..."} or {"message": "..."} from an error body.
func remoteMessage(body []byte) error {
	var m struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &m) == nil {
		if msg := first(m.Error, m.Message); msg != "" {
			return errors.New(msg)
		}
	}
	s := strings.TrimSpace(string(body))
	if s == "" {
		return nil
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return errors.New(s)
}

func backoff(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	// +/-20% jitter
	j := time.Duration(float64(d) * (0.8 + 0.4*rand.Float64()))
	return j
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

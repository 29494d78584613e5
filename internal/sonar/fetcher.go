// Package sonar reads a project's analysis history from the SonarCloud web API.
package sonar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/panbanda/sqeffect/internal/cache"
	"github.com/panbanda/sqeffect/internal/logging"
	"github.com/panbanda/sqeffect/internal/observability"
	"github.com/panbanda/sqeffect/pkg/models"
	"github.com/panbanda/sqeffect/pkg/normalize"
)

const searchPath = "/project_analyses/search"

// EventFetcher retrieves the analysis events of a project.
type EventFetcher interface {
	FetchEvents(ctx context.Context, projectID string) ([]models.AnalysisEvent, error)
}

// Fetcher pages through project_analyses/search. Pages of one call are
// requested sequentially, spaced by at least the configured delay.
type Fetcher struct {
	baseURL    string
	pageSize   int
	delay      time.Duration
	retries    int
	userAgent  string
	httpClient *http.Client
	cache      *cache.PageCache
	logger     *zap.Logger
}

// Option is a functional option for configuring Fetcher.
type Option func(*Fetcher)

// WithPageSize sets the number of analyses requested per page.
func WithPageSize(n int) Option {
	return func(f *Fetcher) {
		f.pageSize = n
	}
}

// WithPageDelay sets the fixed interval between consecutive page requests.
func WithPageDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.delay = d
	}
}

// WithRetries sets how many times a failed page is retried.
func WithRetries(n int) Option {
	return func(f *Fetcher) {
		f.retries = n
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithCache enables the page cache.
func WithCache(c *cache.PageCache) Option {
	return func(f *Fetcher) {
		f.cache = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// NewFetcher creates a fetcher for the API rooted at baseURL
// (e.g. https://sonarcloud.io/api).
func NewFetcher(baseURL string, opts ...Option) *Fetcher {
	f := &Fetcher{
		baseURL:    baseURL,
		pageSize:   500,
		delay:      2 * time.Second,
		retries:    2,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache.Disabled(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = logging.OrNop(f.logger)
	return f
}

type pagingEnvelope struct {
	Paging *struct {
		PageIndex int `json:"pageIndex"`
		PageSize  int `json:"pageSize"`
		Total     int `json:"total"`
	} `json:"paging"`
	Analyses []struct {
		Date           string `json:"date"`
		ProjectVersion string `json:"projectVersion"`
		Events         []struct {
			Category string `json:"category"`
			Name     string `json:"name"`
		} `json:"events"`
	} `json:"analyses"`
}

// FetchEvents returns every analysis of projectID sorted ascending by timestamp.
func (f *Fetcher) FetchEvents(ctx context.Context, projectID string) ([]models.AnalysisEvent, error) {
	// rate.Every(0) is rate.Inf, so a zero delay does not block.
	limiter := rate.NewLimiter(rate.Every(f.delay), 1)

	var events []models.AnalysisEvent
	for page := 1; ; page++ {
		body, err := f.page(ctx, limiter, projectID, page)
		if err != nil {
			return nil, err
		}

		env, err := decodePage(projectID, page, body)
		if err != nil {
			return nil, err
		}
		parsed, err := toEvents(projectID, page, env)
		if err != nil {
			return nil, err
		}
		events = append(events, parsed...)

		f.logger.Debug("fetched analyses page",
			zap.String("project", projectID),
			zap.Int("page", page),
			zap.Int("analyses", len(parsed)),
			zap.Int("total", env.Paging.Total))

		if env.Paging.Total <= env.Paging.PageIndex*env.Paging.PageSize || len(parsed) == 0 {
			break
		}
	}

	models.SortEvents(events)
	return events, nil
}

func (f *Fetcher) pageURL(projectID string, page int) string {
	q := url.Values{}
	q.Set("project", projectID)
	q.Set("ps", strconv.Itoa(f.pageSize))
	q.Set("p", strconv.Itoa(page))
	return f.baseURL + searchPath + "?" + q.Encode()
}

// page returns the raw body of one page, from the cache when possible.
func (f *Fetcher) page(ctx context.Context, limiter *rate.Limiter, projectID string, page int) ([]byte, error) {
	u := f.pageURL(projectID, page)
	if body, ok := f.cache.Get(u); ok {
		observability.APIPagesTotal.WithLabelValues("cache").Inc()
		return body, nil
	}

	var body []byte
	attempt := 0
	op := func() error {
		attempt++
		if err := limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		b, err := f.get(ctx, u)
		if err != nil {
			var mre *MalformedResponseError
			if errors.As(err, &mre) {
				mre.Project, mre.Page = projectID, page
				return backoff.Permanent(mre)
			}
			var se *statusError
			if errors.As(err, &se) && !se.retryable() {
				return backoff.Permanent(se)
			}
			return err
		}
		body = b
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(f.delay), uint64(f.retries)),
		ctx,
	)
	notify := func(err error, next time.Duration) {
		observability.APIErrorsTotal.WithLabelValues("retried").Inc()
		f.logger.Warn("retrying analyses page",
			zap.String("project", projectID),
			zap.Int("page", page),
			zap.Int("attempt", attempt),
			zap.Duration("next", next),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		var mre *MalformedResponseError
		if errors.As(err, &mre) {
			observability.APIErrorsTotal.WithLabelValues("malformed").Inc()
			return nil, mre
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		observability.APIErrorsTotal.WithLabelValues("transient").Inc()
		tfe := &TransientFetchError{Project: projectID, Page: page, Err: err}
		var se *statusError
		if errors.As(err, &se) {
			tfe.Status = se.code
		}
		return nil, tfe
	}

	observability.APIPagesTotal.WithLabelValues("network").Inc()
	if err := f.cache.Put(u, body); err != nil {
		f.logger.Debug("page not cached", zap.String("url", u), zap.Error(err))
	}
	return body, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// get performs one request. Every non-200 status is a statusError; only 5xx,
// 429 and transport errors are retried.
func (f *Fetcher) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &MalformedResponseError{Reason: err.Error()}
	}
	req.Header.Set("Accept", "application/json")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode}
	}
	return body, nil
}

func decodePage(projectID string, page int, body []byte) (*pagingEnvelope, error) {
	var env pagingEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &MalformedResponseError{Project: projectID, Page: page, Reason: "invalid JSON: " + err.Error()}
	}
	if env.Paging == nil {
		return nil, &MalformedResponseError{Project: projectID, Page: page, Reason: "missing paging envelope"}
	}
	if env.Paging.PageSize <= 0 {
		return nil, &MalformedResponseError{Project: projectID, Page: page, Reason: "paging.pageSize must be positive"}
	}
	if env.Paging.PageIndex != page {
		return nil, &MalformedResponseError{Project: projectID, Page: page,
			Reason: fmt.Sprintf("paging.pageIndex is %d", env.Paging.PageIndex)}
	}
	return &env, nil
}

func toEvents(projectID string, page int, env *pagingEnvelope) ([]models.AnalysisEvent, error) {
	out := make([]models.AnalysisEvent, 0, len(env.Analyses))
	for _, a := range env.Analyses {
		ts, err := normalize.ParseTimestamp(a.Date)
		if err != nil {
			return nil, &MalformedResponseError{Project: projectID, Page: page, Reason: err.Error()}
		}
		ev := models.AnalysisEvent{Timestamp: ts, Version: a.ProjectVersion}
		for _, e := range a.Events {
			ev.Markers = append(ev.Markers, models.EventMarker{Category: e.Category, Label: e.Name})
		}
		out = append(out, ev)
	}
	return out, nil
}

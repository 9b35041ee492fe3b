// Package fetcher retrieves job listings from the Adzuna search API and
// normalizes them into the shared JobListing type.
package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/steph-grigors/ai-job-matcher/internal/types"
)

// ErrFetchFailure marks a job search that could not be completed: the
// source is unreachable, rejected the request, or the retry budget ran out.
var ErrFetchFailure = errors.New("job search failed")

const (
	// Adzuna rejects results_per_page above 50.
	maxPageSize = 50

	defaultMaxTotalResults = 150
	defaultMaxRetries      = 3
	defaultBackoffBase     = 500 * time.Millisecond
	requestTimeout         = 10 * time.Second
)

// SearchParams are the inputs of one fetch call. Keywords are usually
// derived from profile skills and target titles.
type SearchParams struct {
	Keywords   string `json:"keywords"`
	Location   string `json:"location"`
	PageSize   int    `json:"page_size"`
	MaxResults int    `json:"max_results"`
	SortBy     string `json:"sort_by"` // relevance, date or salary
}

// ResultCache is the optional read-through cache for whole fetches.
// Implementations must be safe for concurrent use; every failure is
// swallowed by the fetcher (the cache is strictly an optimization).
type ResultCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// AdzunaFetcher queries the Adzuna API with bounded retries and internal
// pagination, deduplicating listings by source id.
type AdzunaFetcher struct {
	appID      string
	apiKey     string
	baseURL    string
	country    string
	pageSize   int
	maxResults int
	maxRetries int
	backoff    time.Duration
	httpClient *http.Client
	cache      ResultCache
	cacheTTL   time.Duration
	logger     zerolog.Logger

	// quotaRemaining holds the latest remaining-call budget reported by
	// the API, -1 until the first response carries the header.
	quotaRemaining atomic.Int64
}

// FetcherOption configures an AdzunaFetcher.
type FetcherOption func(*AdzunaFetcher)

// WithResultCache enables the fail-open fetch cache.
func WithResultCache(cache ResultCache, ttl time.Duration) FetcherOption {
	return func(f *AdzunaFetcher) {
		f.cache = cache
		f.cacheTTL = ttl
	}
}

// WithFetcherLogger sets a custom logger.
func WithFetcherLogger(logger zerolog.Logger) FetcherOption {
	return func(f *AdzunaFetcher) {
		f.logger = logger
	}
}

// WithRetryPolicy overrides the retry attempt count and base backoff.
func WithRetryPolicy(maxRetries int, backoffBase time.Duration) FetcherOption {
	return func(f *AdzunaFetcher) {
		if maxRetries > 0 {
			f.maxRetries = maxRetries
		}
		if backoffBase > 0 {
			f.backoff = backoffBase
		}
	}
}

// WithHTTPClient replaces the default HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *AdzunaFetcher) {
		f.httpClient = c
	}
}

// WithPageLimits overrides the per-page size and total-result cap.
func WithPageLimits(pageSize, maxResults int) FetcherOption {
	return func(f *AdzunaFetcher) {
		if pageSize > 0 {
			f.pageSize = pageSize
		}
		if maxResults > 0 {
			f.maxResults = maxResults
		}
	}
}

// NewAdzunaFetcher builds a fetcher. Credentials and the country code are
// required; baseURL falls back to the public endpoint.
func NewAdzunaFetcher(appID, apiKey, baseURL, country string, options ...FetcherOption) (*AdzunaFetcher, error) {
	if appID == "" || apiKey == "" {
		return nil, fmt.Errorf("fetcher: adzuna credentials must not be empty")
	}
	if baseURL == "" {
		baseURL = "https://api.adzuna.com/v1/api"
	}
	if country == "" {
		country = "us"
	}
	f := &AdzunaFetcher{
		appID:      appID,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		country:    country,
		pageSize:   maxPageSize,
		maxResults: defaultMaxTotalResults,
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoffBase,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     zerolog.Nop(),
	}
	f.quotaRemaining.Store(-1)
	for _, opt := range options {
		opt(f)
	}
	if f.pageSize > maxPageSize {
		f.pageSize = maxPageSize
	}
	return f, nil
}

// QuotaRemaining reports the remaining monthly call budget as last seen
// in a response header, or -1 when the source never reported one.
func (f *AdzunaFetcher) QuotaRemaining() int64 {
	return f.quotaRemaining.Load()
}

// adzunaLocation and friends mirror the relevant slice of the Adzuna
// response payload.
type adzunaLocation struct {
	DisplayName string `json:"display_name"`
}

type adzunaCompany struct {
	DisplayName string `json:"display_name"`
}

type adzunaResult struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Company      adzunaCompany  `json:"company"`
	Location     adzunaLocation `json:"location"`
	Description  string         `json:"description"`
	SalaryMin    float64        `json:"salary_min"`
	SalaryMax    float64        `json:"salary_max"`
	ContractTime string         `json:"contract_time"`
	RedirectURL  string         `json:"redirect_url"`
	Created      string         `json:"created"`
}

type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

// Search fetches up to params.MaxResults listings, paginating internally.
// Listing order is the relevance order returned by the source.
func (f *AdzunaFetcher) Search(ctx context.Context, params SearchParams) ([]*types.JobListing, error) {
	if strings.TrimSpace(params.Keywords) == "" {
		return nil, fmt.Errorf("%w: empty keywords", ErrFetchFailure)
	}

	pageSize := params.PageSize
	if pageSize <= 0 || pageSize > f.pageSize {
		pageSize = f.pageSize
	}
	maxResults := params.MaxResults
	if maxResults <= 0 || maxResults > f.maxResults {
		maxResults = f.maxResults
	}

	// The index is partitioned by country, so the searched location
	// decides which market to query.
	country := DetectCountry(params.Location, f.country)

	if cached, ok := f.cacheLookup(ctx, params, country, pageSize, maxResults); ok {
		return cached, nil
	}

	seen := make(map[string]struct{})
	var listings []*types.JobListing

	for page := 1; len(listings) < maxResults; page++ {
		pageResults, count, err := f.fetchPage(ctx, params, country, page, pageSize)
		if err != nil {
			return nil, err
		}
		for _, raw := range pageResults {
			listing := f.normalize(raw)
			if _, dup := seen[listing.ID]; dup {
				continue
			}
			seen[listing.ID] = struct{}{}
			listings = append(listings, listing)
			if len(listings) >= maxResults {
				break
			}
		}
		// Stop when the source is exhausted.
		if len(pageResults) < pageSize || len(listings) >= count {
			break
		}
	}

	f.logger.Info().
		Str("keywords", params.Keywords).
		Str("location", params.Location).
		Str("country", country).
		Int("listings", len(listings)).
		Msg("job search completed")

	f.cacheStore(ctx, params, country, pageSize, maxResults, listings)
	return listings, nil
}

// fetchPage performs one paged API call with bounded exponential backoff
// on 429 and transient 5xx responses.
func (f *AdzunaFetcher) fetchPage(ctx context.Context, params SearchParams, country string, page, pageSize int) ([]adzunaResult, int, error) {
	endpoint := fmt.Sprintf("%s/jobs/%s/search/%d", f.baseURL, country, page)

	query := url.Values{}
	query.Set("app_id", f.appID)
	query.Set("app_key", f.apiKey)
	query.Set("what", params.Keywords)
	if params.Location != "" {
		query.Set("where", params.Location)
	}
	query.Set("results_per_page", strconv.Itoa(pageSize))
	sortBy := params.SortBy
	if sortBy == "" {
		sortBy = "relevance"
	}
	query.Set("sort_by", sortBy)

	var lastErr error
	for attempt := 0; attempt < f.maxRetries; attempt++ {
		if attempt > 0 {
			wait := f.backoff * time.Duration(1<<(attempt-1))
			if jitter := int64(wait / 2); jitter > 0 {
				wait += time.Duration(rand.Int63n(jitter))
			}
			select {
			case <-ctx.Done():
				return nil, 0, fmt.Errorf("%w: %v", ErrFetchFailure, ctx.Err())
			case <-time.After(wait):
			}
		}

		resp, retryable, err := f.doRequest(ctx, endpoint+"?"+query.Encode())
		if err == nil {
			return resp.Results, resp.Count, nil
		}
		lastErr = err
		if !retryable {
			return nil, 0, err
		}
		f.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("job search attempt failed, retrying")
	}
	return nil, 0, fmt.Errorf("%w: retries exhausted: %v", ErrFetchFailure, lastErr)
}

// doRequest executes one HTTP call. The second return value reports
// whether the failure is retryable (429 or 5xx).
func (f *AdzunaFetcher) doRequest(ctx context.Context, fullURL string) (*adzunaResponse, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: build request: %v", ErrFetchFailure, err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrFetchFailure, err)
	}
	defer resp.Body.Close()

	f.recordQuota(resp.Header)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: read response: %v", ErrFetchFailure, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%w: status %d: %s", ErrFetchFailure, resp.StatusCode, truncateBody(body))
	default:
		return nil, false, fmt.Errorf("%w: status %d: %s", ErrFetchFailure, resp.StatusCode, truncateBody(body))
	}

	var parsed adzunaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, false, fmt.Errorf("%w: unmarshal response: %v", ErrFetchFailure, err)
	}
	return &parsed, false, nil
}

func (f *AdzunaFetcher) recordQuota(h http.Header) {
	for _, name := range []string{"X-RateLimit-Remaining", "X-Ratelimit-Remaining"} {
		if v := h.Get(name); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				f.quotaRemaining.Store(n)
				return
			}
		}
	}
}

// normalize converts a raw Adzuna record into the shared listing type.
func (f *AdzunaFetcher) normalize(raw adzunaResult) *types.JobListing {
	listing := &types.JobListing{
		ID:           "adzuna:" + raw.ID,
		Title:        strings.TrimSpace(raw.Title),
		Company:      strings.TrimSpace(raw.Company.DisplayName),
		Location:     strings.TrimSpace(raw.Location.DisplayName),
		Description:  raw.Description,
		SalaryMin:    raw.SalaryMin,
		SalaryMax:    raw.SalaryMax,
		ContractType: normalizeContractType(raw.ContractTime),
		SourceURL:    raw.RedirectURL,
	}
	if listing.Title == "" {
		listing.Title = "Unknown Title"
	}
	if listing.Company == "" {
		listing.Company = "Unknown Company"
	}
	if raw.Created != "" {
		if t, err := time.Parse(time.RFC3339, raw.Created); err == nil {
			listing.PostedAt = &t
		}
	}
	return listing
}

func normalizeContractType(contractTime string) string {
	ct := strings.ToLower(contractTime)
	switch {
	case ct == "":
		return ""
	case strings.Contains(ct, "full"):
		return "full-time"
	case strings.Contains(ct, "part"):
		return "part-time"
	case strings.Contains(ct, "contract"):
		return "contract"
	case strings.Contains(ct, "temp"):
		return "temporary"
	case strings.Contains(ct, "intern"):
		return "internship"
	default:
		return "other"
	}
}

// cacheKey hashes the effective search parameters so equivalent searches
// share an entry.
func (f *AdzunaFetcher) cacheKey(params SearchParams, country string, pageSize, maxResults int) string {
	payload, _ := json.Marshal(struct {
		SearchParams
		Country    string `json:"country"`
		PageSize   int    `json:"effective_page_size"`
		MaxResults int    `json:"effective_max_results"`
	}{params, country, pageSize, maxResults})
	sum := sha256.Sum256(payload)
	return "jobs:" + hex.EncodeToString(sum[:])
}

func (f *AdzunaFetcher) cacheLookup(ctx context.Context, params SearchParams, country string, pageSize, maxResults int) ([]*types.JobListing, bool) {
	if f.cache == nil {
		return nil, false
	}
	value, ok, err := f.cache.Get(ctx, f.cacheKey(params, country, pageSize, maxResults))
	if err != nil {
		f.logger.Warn().Err(err).Msg("fetch cache lookup failed, calling source")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var listings []*types.JobListing
	if err := json.Unmarshal([]byte(value), &listings); err != nil {
		f.logger.Warn().Err(err).Msg("fetch cache entry corrupt, calling source")
		return nil, false
	}
	f.logger.Debug().Int("listings", len(listings)).Msg("fetch cache hit")
	return listings, true
}

func (f *AdzunaFetcher) cacheStore(ctx context.Context, params SearchParams, country string, pageSize, maxResults int, listings []*types.JobListing) {
	if f.cache == nil || len(listings) == 0 {
		return
	}
	payload, err := json.Marshal(listings)
	if err != nil {
		return
	}
	if err := f.cache.Set(ctx, f.cacheKey(params, country, pageSize, maxResults), string(payload), f.cacheTTL); err != nil {
		f.logger.Warn().Err(err).Msg("fetch cache store failed")
	}
}

func truncateBody(body []byte) string {
	const max = 300
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

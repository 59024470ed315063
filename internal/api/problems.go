package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"tourney-engine/internal/config"
	"tourney-engine/internal/constants"
	"tourney-engine/internal/domain"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

// ProblemClient fetches problems from the remote problem service.
type ProblemClient struct {
	baseURL     string
	apiKey      string
	client      *fasthttp.Client
	limiter     *rate.Limiter
	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
	logger      zerolog.Logger
}

type RateLimitInfo struct {
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`

	// seconds until reset
	Reset int `json:"reset"`

	UpdatedAt time.Time `json:"updated_at"`
}

type problemResponse struct {
	Data domain.Problem `json:"data"`
}

func NewProblemClient(cfg *config.Config, logger zerolog.Logger) *ProblemClient {
	rps := cfg.ProblemsRPS
	if rps <= 0 {
		rps = 20
	}
	return &ProblemClient{
		baseURL: strings.TrimSuffix(cfg.ProblemsURL, "/"),
		apiKey:  cfg.ProblemsAPIKey,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), max(1, int(rps))),
		rateLimit: RateLimitInfo{
			Remaining: -1,
			UpdatedAt: time.Now(),
		},
		logger: logger,
	}
}

func (c *ProblemClient) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *ProblemClient) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if limit := string(resp.Header.Peek("X-Ratelimit-Limit")); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			c.rateLimit.Limit = val
		}
	}
	if remaining := string(resp.Header.Peek("X-Ratelimit-Remaining")); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			c.rateLimit.Remaining = val
		}
	}
	if reset := string(resp.Header.Peek("X-Ratelimit-Reset")); reset != "" {
		if val, err := strconv.Atoi(reset); err == nil {
			c.rateLimit.Reset = val
		}
	}
	c.rateLimit.UpdatedAt = time.Now()
}

func (c *ProblemClient) GetProblem(ctx context.Context, filter domain.ProblemFilter) (*domain.Problem, error) {
	q := url.Values{}
	if filter.Category != "" {
		q.Set("category", filter.Category)
	}
	if filter.MinRating > 0 {
		q.Set("min_rating", strconv.Itoa(filter.MinRating))
	}
	if filter.MaxRating > 0 {
		q.Set("max_rating", strconv.Itoa(filter.MaxRating))
	}

	endpoint := c.baseURL + "/v1/problems/random"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	resp, err := doRequest[problemResponse](ctx, c, endpoint)
	if err != nil {
		return nil, err
	}
	if resp.Data.ID == "" {
		return nil, fmt.Errorf("problem service returned an empty problem")
	}
	return &resp.Data, nil
}

func doRequest[T any](ctx context.Context, client *ProblemClient, endpoint string) (*T, error) {
	if err := client.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(endpoint)
	req.Header.SetMethod(fasthttp.MethodGet)
	if client.apiKey != "" {
		req.Header.Set("Authorization", client.apiKey)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(constants.ExternalAPITimeout)
	}
	if err := client.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, err
	}

	client.updateRateLimit(resp)

	if resp.StatusCode() != fasthttp.StatusOK {
		client.logger.Warn().Int("status", resp.StatusCode()).Str("url", endpoint).Msg("problem service error")
		return nil, fmt.Errorf("API error: %d", resp.StatusCode())
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

package instagram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"igmonitor/pkg/config"
	"igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/ratelimit"
	"igmonitor/pkg/retry"
)

// Client talks to Instagram's web API. Every request goes through the token
// bucket first, then through the retry wrapper; only network and rate-limit
// failures are retried in process.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	cookies    map[string]string
	baseURL    string
	limiter    ratelimit.Limiter
	retryCfg   *retry.Config
	logger     logger.Logger
}

// NewClient creates an Instagram API client. Session credentials are
// optional; without them only public endpoints work and stories are
// unavailable.
func NewClient(cfg config.InstagramConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	retryCfg := retry.DefaultConfig()
	if cfg.MaxRetries > 0 {
		retryCfg.MaxAttempts = cfg.MaxRetries
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		headers: map[string]string{
			"User-Agent":       cfg.UserAgent,
			"Accept":           "*/*",
			"Accept-Language":  "en-US,en;q=0.9",
			"X-IG-App-ID":      "936619743392459",
			"X-Requested-With": "XMLHttpRequest",
		},
		cookies:  map[string]string{},
		baseURL:  BaseURL,
		limiter:  ratelimit.NewTokenBucket(rpm, time.Minute),
		retryCfg: retryCfg,
		logger:   log,
	}

	if cfg.SessionID != "" {
		c.cookies["sessionid"] = cfg.SessionID
	}
	if cfg.CSRFToken != "" {
		c.cookies["csrftoken"] = cfg.CSRFToken
		c.headers["X-CSRFToken"] = cfg.CSRFToken
	}

	return c
}

// HasSession reports whether session cookies are configured
func (c *Client) HasSession() bool {
	return c.cookies["sessionid"] != ""
}

// SetHeader sets a custom header for all subsequent requests
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// doRequest performs a single paced HTTP request with the configured
// headers and cookies
func (c *Client) doRequest(ctx context.Context, rawURL string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeUnknown, err, "failed to create request")
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	for name, value := range c.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(errors.ErrorTypeNetwork, err, "network error")
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// GetJSON performs a GET request with retry and decodes the JSON response
// into target
func (c *Client) GetJSON(ctx context.Context, rawURL string, target interface{}) error {
	op := func() error {
		resp, err := c.doRequest(ctx, rawURL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := c.checkResponseStatus(resp); err != nil {
			return err
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(errors.ErrorTypeNetwork, err, "failed to read response body").WithCode(resp.StatusCode)
		}

		if err := json.Unmarshal(body, target); err != nil {
			bodyPreview := string(body)
			if len(bodyPreview) > 200 {
				bodyPreview = bodyPreview[:200] + "..."
			}
			c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
				"url":          rawURL,
				"status":       resp.StatusCode,
				"error":        err.Error(),
				"body_preview": bodyPreview,
			})
			return errors.Wrap(errors.ErrorTypeParsing, err, "failed to parse JSON").WithCode(resp.StatusCode)
		}

		return nil
	}

	return retry.Do(ctx, op, c.retryCfg)
}

// Download streams the media at rawURL. The caller must close the reader.
// Media CDN URLs are pre-signed, so no cookies are sent.
func (c *Client) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeUnknown, err, "failed to create request")
	}
	req.Header.Set("User-Agent", c.headers["User-Agent"])

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(errors.ErrorTypeNetwork, err, "media download failed")
	}

	if err := c.checkResponseStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return resp.Body, nil
}

// checkResponseStatus maps HTTP status codes onto the pipeline error
// taxonomy: 401/403 auth, 429 rate limit, 404 not found, 5xx network
func (c *Client) checkResponseStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.WarnWithFields("authentication error", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return errors.New(errors.ErrorTypeAuth, "authentication required").WithCode(resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		c.logger.WarnWithFields("resource not found", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return errors.New(errors.ErrorTypeNotFound, "resource not found").WithCode(resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.WarnWithFields("rate limit exceeded", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return errors.New(errors.ErrorTypeRateLimit, "rate limit exceeded").WithCode(resp.StatusCode)
	case resp.StatusCode >= 500:
		c.logger.ErrorWithFields("server error", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return errors.Newf(errors.ErrorTypeNetwork, "server returned status %d", resp.StatusCode).WithCode(resp.StatusCode)
	case resp.StatusCode >= 400:
		c.logger.ErrorWithFields("unexpected API error", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return errors.Newf(errors.ErrorTypeUnknown, "unexpected status code: %d", resp.StatusCode).WithCode(resp.StatusCode)
	default:
		return nil
	}
}

// FetchUserProfile fetches profile metadata plus the first page of posts
func (c *Client) FetchUserProfile(ctx context.Context, username string) (*ProfileResponse, error) {
	rawURL := ProfileURL(username)

	var response ProfileResponse
	if err := c.GetJSON(ctx, rawURL, &response); err != nil {
		return nil, err
	}

	if response.RequiresToLogin {
		c.logger.WarnWithFields("authentication required for profile", map[string]interface{}{
			"username": username,
		})
		return nil, errors.New(errors.ErrorTypeAuth, "Instagram requires authentication to view this profile").WithCode(http.StatusUnauthorized)
	}
	if response.Data.User.ID == "" {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "profile %s not found", username)
	}

	return &response, nil
}

// FetchUserMedia fetches one page of a user's posts. after is the end cursor
// from the previous page, or "" for the first page.
func (c *Client) FetchUserMedia(ctx context.Context, userID, after string, limit int) (*ProfileResponse, error) {
	rawURL := MediaURL(userID, after, limit)

	var response ProfileResponse
	if err := c.GetJSON(ctx, rawURL, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// FetchStories fetches the user's active story reel. Requires session
// cookies.
func (c *Client) FetchStories(ctx context.Context, userID string) ([]StoryItem, error) {
	if !c.HasSession() {
		return nil, errors.New(errors.ErrorTypeAuth, "stories require session credentials")
	}

	var response StoriesResponse
	if err := c.GetJSON(ctx, StoriesURL(userID), &response); err != nil {
		return nil, err
	}

	var items []StoryItem
	for _, reel := range response.ReelsMedia {
		items = append(items, reel.Items...)
	}

	return items, nil
}

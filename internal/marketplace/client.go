package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"magicbag/internal/common"
	"magicbag/internal/models"
)

const (
	DefaultPageSize = 400

	itemsEndpoint       = "item/v8/"
	authByEmailEndpoint = "auth/v5/authByEmail"
	authPollEndpoint    = "auth/v5/authByRequestPollingId"
	refreshEndpoint     = "auth/v5/token/refresh"

	deviceType       = "ANDROID"
	maxLoggedPayload = 512
)

// Credentials authorize marketplace requests for one account.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	Cookie       string `json:"cookie,omitempty"`
}

func (c Credentials) valid() bool {
	return c.AccessToken != "" && c.UserID != ""
}

// CredentialCache persists credentials across restarts.
type CredentialCache interface {
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// PageFetcher fetches one page of listings around origin.
type PageFetcher interface {
	FetchPage(ctx context.Context, origin models.Location, radius float64, page, pageSize int) ([]models.RawItem, error)
}

type Options struct {
	BaseURL       string
	Email         string
	UserAgent     string
	PageSize      int
	PageTimeout   time.Duration
	FetchTimeout  time.Duration
	RatePerSecond float64

	// Credentials from configuration; skips the cache and the email flow.
	Credentials *Credentials
	Cache       CredentialCache

	// Email handshake polling.
	AuthPollInterval time.Duration
	AuthPollAttempts int

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the marketplace item API.
type Client struct {
	opts       Options
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu    sync.Mutex
	creds *Credentials
}

func NewClient(opts Options) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.AuthPollInterval <= 0 {
		opts.AuthPollInterval = 5 * time.Second
	}
	if opts.AuthPollAttempts <= 0 {
		opts.AuthPollAttempts = 24
	}
	if !strings.HasSuffix(opts.BaseURL, "/") {
		opts.BaseURL += "/"
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	c := &Client{
		opts:       opts,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
	if opts.Credentials != nil && opts.Credentials.valid() {
		creds := *opts.Credentials
		c.creds = &creds
	}
	return c
}

func (c *Client) cacheKey() string {
	return "marketplace:credentials:" + strings.ToLower(c.opts.Email)
}

// credentials returns the in-memory credentials, falling back to the cache.
func (c *Client) credentials(ctx context.Context) (Credentials, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.creds != nil {
		return *c.creds, nil
	}

	if c.opts.Cache != nil {
		raw, err := c.opts.Cache.GetString(ctx, c.cacheKey())
		if err != nil {
			c.logger.Warn("credential cache lookup failed", slog.Any("error", err))
		} else if raw != "" {
			var creds Credentials
			if err := json.Unmarshal([]byte(raw), &creds); err == nil && creds.valid() {
				c.creds = &creds
				return creds, nil
			}
			c.logger.Warn("ignoring unreadable cached credentials")
		}
	}

	return Credentials{}, fmt.Errorf("no marketplace credentials for %s, run the auth command: %w", c.opts.Email, common.ErrAuth)
}

func (c *Client) storeCredentials(ctx context.Context, creds Credentials) {
	c.mu.Lock()
	c.creds = &creds
	c.mu.Unlock()

	if c.opts.Cache == nil {
		return
	}
	raw, err := json.Marshal(creds)
	if err != nil {
		return
	}
	if err := c.opts.Cache.SetString(ctx, c.cacheKey(), string(raw), 0); err != nil {
		c.logger.Warn("failed to cache marketplace credentials", slog.Any("error", err))
	}
}

// forgetCredentials drops credentials the marketplace no longer accepts so the
// next poll reports missing credentials instead of replaying them.
func (c *Client) forgetCredentials(ctx context.Context) {
	c.mu.Lock()
	c.creds = nil
	c.mu.Unlock()

	if c.opts.Cache == nil {
		return
	}
	if err := c.opts.Cache.Delete(ctx, c.cacheKey()); err != nil {
		c.logger.Warn("failed to evict marketplace credentials", slog.Any("error", err))
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// refresh trades the refresh token for a new access token and stores the
// result.
func (c *Client) refresh(ctx context.Context, creds Credentials) (Credentials, error) {
	if creds.RefreshToken == "" {
		return Credentials{}, fmt.Errorf("no refresh token: %w", common.ErrAuth)
	}

	resp, body, err := c.post(ctx, refreshEndpoint, "", refreshRequest{RefreshToken: creds.RefreshToken}, withCookie(creds.Cookie))
	if err != nil {
		return Credentials{}, fmt.Errorf("token refresh: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Credentials{}, fmt.Errorf("token refresh returned status %d: %w", resp.StatusCode, common.ErrAuth)
	}

	var refreshed refreshResponse
	if err := json.Unmarshal(body, &refreshed); err != nil {
		return Credentials{}, c.malformed("token refresh", body, err)
	}
	if refreshed.AccessToken == "" {
		return Credentials{}, fmt.Errorf("token refresh returned no access token: %w", common.ErrAuth)
	}

	creds.AccessToken = refreshed.AccessToken
	if refreshed.RefreshToken != "" {
		creds.RefreshToken = refreshed.RefreshToken
	}
	if cookie := cookieHeader(resp); cookie != "" {
		creds.Cookie = cookie
	}
	c.storeCredentials(ctx, creds)
	c.logger.Info("marketplace access token refreshed", slog.String("user_id", creds.UserID))
	return creds, nil
}

type authByEmailRequest struct {
	DeviceType string `json:"device_type"`
	Email      string `json:"email"`
}

type authByEmailResponse struct {
	State     string `json:"state"`
	PollingID string `json:"polling_id"`
}

type authPollRequest struct {
	DeviceType       string `json:"device_type"`
	Email            string `json:"email"`
	RequestPollingID string `json:"request_polling_id"`
}

type authPollResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	StartupData  struct {
		User struct {
			UserID string `json:"user_id"`
		} `json:"user"`
	} `json:"startup_data"`
}

// Authenticate runs the email handshake: the marketplace mails a login link
// and the client polls until it has been followed.
func (c *Client) Authenticate(ctx context.Context) (Credentials, error) {
	if c.opts.Email == "" {
		return Credentials{}, fmt.Errorf("marketplace email not configured: %w", common.ErrAuth)
	}

	resp, body, err := c.post(ctx, authByEmailEndpoint, "", authByEmailRequest{DeviceType: deviceType, Email: c.opts.Email})
	if err != nil {
		return Credentials{}, fmt.Errorf("auth by email: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Credentials{}, fmt.Errorf("auth by email returned status %d: %w", resp.StatusCode, common.ErrAuth)
	}

	var started authByEmailResponse
	if err := json.Unmarshal(body, &started); err != nil {
		return Credentials{}, c.malformed("auth by email", body, err)
	}
	if started.State == "TERMS" {
		return Credentials{}, fmt.Errorf("account %s has not accepted the terms: %w", c.opts.Email, common.ErrAuth)
	}
	if started.PollingID == "" {
		return Credentials{}, fmt.Errorf("auth by email returned no polling id: %w", common.ErrAuth)
	}

	c.logger.Info("login email sent, waiting for confirmation", slog.String("email", c.opts.Email))

	for attempt := 0; attempt < c.opts.AuthPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return Credentials{}, ctx.Err()
		case <-time.After(c.opts.AuthPollInterval):
		}

		resp, body, err := c.post(ctx, authPollEndpoint, "", authPollRequest{
			DeviceType:       deviceType,
			Email:            c.opts.Email,
			RequestPollingID: started.PollingID,
		})
		if err != nil {
			return Credentials{}, fmt.Errorf("auth polling: %w", err)
		}

		switch resp.StatusCode {
		case http.StatusAccepted:
			continue
		case http.StatusOK:
			var polled authPollResponse
			if err := json.Unmarshal(body, &polled); err != nil {
				return Credentials{}, c.malformed("auth polling", body, err)
			}
			creds := Credentials{
				AccessToken:  polled.AccessToken,
				RefreshToken: polled.RefreshToken,
				UserID:       polled.StartupData.User.UserID,
				Cookie:       cookieHeader(resp),
			}
			if !creds.valid() {
				return Credentials{}, fmt.Errorf("auth polling returned incomplete credentials: %w", common.ErrAuth)
			}
			c.storeCredentials(ctx, creds)
			c.logger.Info("marketplace login confirmed", slog.String("user_id", creds.UserID))
			return creds, nil
		default:
			return Credentials{}, fmt.Errorf("auth polling returned status %d: %w", resp.StatusCode, common.ErrAuth)
		}
	}

	return Credentials{}, fmt.Errorf("login link was not followed after %d polls: %w", c.opts.AuthPollAttempts, common.ErrAuth)
}

// FetchPage requests one page of listings. A rejected access token is
// refreshed once; if that fails the stored credentials are dropped.
func (c *Client) FetchPage(ctx context.Context, origin models.Location, radius float64, page, pageSize int) ([]models.RawItem, error) {
	creds, err := c.credentials(ctx)
	if err != nil {
		return nil, err
	}

	if c.opts.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.PageTimeout)
		defer cancel()
	}

	items, err := c.fetchPage(ctx, creds, origin, radius, page, pageSize)
	if !errors.Is(err, errTokenRejected) {
		return items, err
	}

	c.logger.Info("marketplace rejected access token, refreshing", slog.Int("page", page))
	creds, err = c.refresh(ctx, creds)
	if err != nil {
		c.forgetCredentials(ctx)
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}

	items, err = c.fetchPage(ctx, creds, origin, radius, page, pageSize)
	if errors.Is(err, errTokenRejected) {
		c.forgetCredentials(ctx)
	}
	return items, err
}

var errTokenRejected = fmt.Errorf("access token rejected: %w", common.ErrAuth)

func (c *Client) fetchPage(ctx context.Context, creds Credentials, origin models.Location, radius float64, page, pageSize int) ([]models.RawItem, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w: %w", common.ErrTransient, err)
	}

	payload := models.ItemsRequest{
		UserID:        creds.UserID,
		Origin:        models.OriginCoords{Latitude: origin.Latitude, Longitude: origin.Longitude},
		Radius:        radius,
		PageSize:      pageSize,
		Page:          page,
		Discover:      false,
		FavoritesOnly: false,
		WithStockOnly: false,
	}

	resp, body, err := c.post(ctx, itemsEndpoint, creds.AccessToken, payload, withCookie(creds.Cookie))
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("fetch page %d: %w", page, errTokenRejected)
	}
	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}

	var decoded models.ItemsResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, c.malformed(fmt.Sprintf("fetch page %d", page), body, err)
	}

	c.logger.Debug("fetched marketplace page",
		slog.Int("page", page),
		slog.Int("items", len(decoded.Items)),
	)
	return decoded.Items, nil
}

// GetItems fetches every page around origin within the overall fetch deadline.
func (c *Client) GetItems(ctx context.Context, origin models.Location, radius float64) ([]models.RawItem, error) {
	if c.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.FetchTimeout)
		defer cancel()
	}
	return FetchAll(ctx, c, origin, radius, c.opts.PageSize)
}

// FetchAll pages from 1 until a page comes back with fewer than pageSize
// records. Records are returned in page order; duplicates across pages are
// kept.
func FetchAll(ctx context.Context, f PageFetcher, origin models.Location, radius float64, pageSize int) ([]models.RawItem, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var all []models.RawItem
	for page := 1; ; page++ {
		items, err := f.FetchPage(ctx, origin, radius, page, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) < pageSize {
			return all, nil
		}
	}
}

type requestOption func(*http.Request)

func withCookie(cookie string) requestOption {
	return func(req *http.Request) {
		if cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
	}
}

// cookieHeader keeps the name=value pairs of every Set-Cookie, dropping
// attributes such as Path or Max-Age.
func cookieHeader(resp *http.Response) string {
	cookies := resp.Cookies()
	pairs := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		pairs = append(pairs, ck.Name+"="+ck.Value)
	}
	return strings.Join(pairs, "; ")
}

// post sends a JSON body and returns the response with its body read.
func (c *Client) post(ctx context.Context, endpoint, token string, payload any, opts ...requestOption) (*http.Response, []byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %w", common.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w: %w", common.ErrTransient, err)
	}
	return resp, body, nil
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("status %d: %w", status, common.ErrAuth)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("status %d: %w", status, common.ErrTransient)
	default:
		return fmt.Errorf("unexpected status %d: %w", status, common.ErrMalformedResponse)
	}
}

func (c *Client) malformed(op string, body []byte, err error) error {
	payload := string(body)
	if len(payload) > maxLoggedPayload {
		payload = payload[:maxLoggedPayload] + "..."
	}
	c.logger.Error("undecodable marketplace payload",
		slog.String("op", op),
		slog.String("payload", payload),
		slog.Any("error", err),
	)
	return fmt.Errorf("%s: %w: %w", op, common.ErrMalformedResponse, err)
}

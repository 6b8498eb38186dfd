package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magicbag/internal/caching"
	"magicbag/internal/common"
	"magicbag/internal/models"
)

var origin = models.Location{Latitude: 51.2, Longitude: 3.22, FullAddress: "Brugge"}

var testCreds = &Credentials{AccessToken: "access", RefreshToken: "refresh", UserID: "42"}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePages serves pages of the given sizes and counts calls.
type fakePages struct {
	sizes []int
	calls []int
	err   error
	errAt int
}

func (f *fakePages) FetchPage(_ context.Context, _ models.Location, _ float64, page, pageSize int) ([]models.RawItem, error) {
	f.calls = append(f.calls, page)
	if f.err != nil && page == f.errAt {
		return nil, f.err
	}
	if page > len(f.sizes) {
		return nil, nil
	}
	items := make([]models.RawItem, f.sizes[page-1])
	for i := range items {
		items[i].Item.ItemID = fmt.Sprintf("%d-%d", page, i)
	}
	return items, nil
}

func TestFetchAll_StopsAfterShortPage(t *testing.T) {
	f := &fakePages{sizes: []int{400, 400, 137}}

	items, err := FetchAll(context.Background(), f, origin, 5, 400)
	require.NoError(t, err)
	assert.Len(t, items, 937)
	assert.Equal(t, []int{1, 2, 3}, f.calls)
	assert.Equal(t, "1-0", items[0].Item.ItemID)
	assert.Equal(t, "3-136", items[936].Item.ItemID)
}

func TestFetchAll_ExactMultipleFetchesEmptyPage(t *testing.T) {
	f := &fakePages{sizes: []int{400}}

	items, err := FetchAll(context.Background(), f, origin, 5, 400)
	require.NoError(t, err)
	assert.Len(t, items, 400)
	assert.Equal(t, []int{1, 2}, f.calls)
}

func TestFetchAll_SinglePage(t *testing.T) {
	f := &fakePages{sizes: []int{0}}

	items, err := FetchAll(context.Background(), f, origin, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, []int{1}, f.calls)
}

func TestFetchAll_PropagatesPageError(t *testing.T) {
	f := &fakePages{sizes: []int{400, 400, 137}, err: common.ErrTransient, errAt: 2}

	items, err := FetchAll(context.Background(), f, origin, 5, 400)
	assert.Nil(t, items)
	assert.ErrorIs(t, err, common.ErrTransient)
	assert.Equal(t, []int{1, 2}, f.calls)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate func(*Options)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts := Options{
		BaseURL:          srv.URL + "/api",
		Email:            "user@example.com",
		UserAgent:        "magicbag-test",
		PageSize:         2,
		PageTimeout:      time.Second,
		Credentials:      testCreds,
		AuthPollInterval: time.Millisecond,
		AuthPollAttempts: 3,
		Logger:           quietLogger(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewClient(opts)
}

func TestFetchPage_SendsAuthorizedRequest(t *testing.T) {
	var got models.ItemsRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/item/v8/", r.URL.Path)
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		assert.Equal(t, "magicbag-test", r.Header.Get("User-Agent"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = io.WriteString(w, `{"items":[{"item":{"item_id":"1","name":"Bag"},"display_name":"Bakery","items_available":3}]}`)
	}, nil)

	items, err := client.FetchPage(context.Background(), origin, 5, 2, 400)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "1", items[0].Item.ItemID)
	assert.Equal(t, 3, items[0].ItemsAvailable)

	assert.Equal(t, "42", got.UserID)
	assert.Equal(t, 2, got.Page)
	assert.Equal(t, 400, got.PageSize)
	assert.InDelta(t, 51.2, got.Origin.Latitude, 1e-9)
	assert.InDelta(t, 5.0, got.Radius, 1e-9)
}

func TestFetchPage_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "server error", status: http.StatusBadGateway, body: "oops", want: common.ErrTransient},
		{name: "throttled", status: http.StatusTooManyRequests, body: "", want: common.ErrTransient},
		{name: "unauthorized", status: http.StatusUnauthorized, body: "", want: common.ErrAuth},
		{name: "forbidden", status: http.StatusForbidden, body: "", want: common.ErrAuth},
		{name: "garbage body", status: http.StatusOK, body: "<html>", want: common.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}, nil)

			items, err := client.FetchPage(context.Background(), origin, 5, 1, 400)
			assert.Nil(t, items)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFetchPage_TransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, Credentials: testCreds, Logger: quietLogger()})
	_, err := client.FetchPage(context.Background(), origin, 5, 1, 400)
	assert.ErrorIs(t, err, common.ErrTransient)
}

func TestFetchPage_WithoutCredentials(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}, func(o *Options) { o.Credentials = nil })

	_, err := client.FetchPage(context.Background(), origin, 5, 1, 400)
	assert.ErrorIs(t, err, common.ErrAuth)
	assert.Zero(t, calls.Load())
}

func TestFetchPage_UsesCachedCredentials(t *testing.T) {
	cache := caching.NewMemoryCacheService()
	raw, _ := json.Marshal(Credentials{AccessToken: "cached", UserID: "7"})
	require.NoError(t, cache.SetString(context.Background(), credentialsKey, string(raw), 0))

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer cached", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"items":[]}`)
	}, func(o *Options) {
		o.Credentials = nil
		o.Cache = cache
	})

	items, err := client.FetchPage(context.Background(), origin, 5, 1, 400)
	require.NoError(t, err)
	assert.Empty(t, items)
}

const credentialsKey = "marketplace:credentials:user@example.com"

func TestFetchPage_RefreshesRejectedToken(t *testing.T) {
	var refreshes atomic.Int32
	cache := caching.NewMemoryCacheService()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/v5/token/refresh":
			refreshes.Add(1)
			var req refreshRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "refresh", req.RefreshToken)
			w.Header().Set("Set-Cookie", "datadome=fresh; Path=/; Secure")
			_, _ = io.WriteString(w, `{"access_token":"renewed","refresh_token":"refresh-2"}`)
		case "/api/item/v8/":
			if r.Header.Get("Authorization") != "Bearer renewed" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			assert.Equal(t, "datadome=fresh", r.Header.Get("Cookie"))
			_, _ = io.WriteString(w, `{"items":[{"item":{"item_id":"1"}}]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}, func(o *Options) { o.Cache = cache })

	items, err := client.FetchPage(context.Background(), origin, 5, 1, 400)
	require.NoError(t, err)
	require.Len(t, items, 1)

	// The renewed token is reused without another refresh.
	_, err = client.FetchPage(context.Background(), origin, 5, 2, 400)
	require.NoError(t, err)
	assert.Equal(t, int32(1), refreshes.Load())

	cached, err := cache.GetString(context.Background(), credentialsKey)
	require.NoError(t, err)
	var stored Credentials
	require.NoError(t, json.Unmarshal([]byte(cached), &stored))
	assert.Equal(t, Credentials{AccessToken: "renewed", RefreshToken: "refresh-2", UserID: "42", Cookie: "datadome=fresh"}, stored)
}

func TestFetchPage_FailedRefreshForgetsCredentials(t *testing.T) {
	var calls atomic.Int32
	cache := caching.NewMemoryCacheService()
	raw, _ := json.Marshal(Credentials{AccessToken: "stale", RefreshToken: "revoked", UserID: "7"})
	require.NoError(t, cache.SetString(context.Background(), credentialsKey, string(raw), 0))

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}, func(o *Options) {
		o.Credentials = nil
		o.Cache = cache
	})

	_, err := client.FetchPage(context.Background(), origin, 5, 1, 400)
	assert.ErrorIs(t, err, common.ErrAuth)
	assert.Equal(t, int32(2), calls.Load(), "one page request and one refresh attempt")

	cached, err := cache.GetString(context.Background(), credentialsKey)
	require.NoError(t, err)
	assert.Empty(t, cached)

	_, err = client.FetchPage(context.Background(), origin, 5, 1, 400)
	assert.ErrorIs(t, err, common.ErrAuth)
	assert.Contains(t, err.Error(), "run the auth command")
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchPage_ForbiddenDoesNotRefresh(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/item/v8/", r.URL.Path)
		w.WriteHeader(http.StatusForbidden)
	}, nil)

	_, err := client.FetchPage(context.Background(), origin, 5, 1, 400)
	assert.ErrorIs(t, err, common.ErrAuth)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetItems_PagesUntilShortPage(t *testing.T) {
	var pages []int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req models.ItemsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		pages = append(pages, req.Page)

		if req.Page == 1 {
			_, _ = io.WriteString(w, `{"items":[{"item":{"item_id":"a"}},{"item":{"item_id":"b"}}]}`)
			return
		}
		_, _ = io.WriteString(w, `{"items":[{"item":{"item_id":"c"}}]}`)
	}, nil)

	items, err := client.GetItems(context.Background(), origin, 5)
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, []int{1, 2}, pages)
}

func TestAuthenticate_PollsUntilConfirmed(t *testing.T) {
	var polls atomic.Int32
	cache := caching.NewMemoryCacheService()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/v5/authByEmail":
			var req authByEmailRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "user@example.com", req.Email)
			_, _ = io.WriteString(w, `{"state":"WAIT","polling_id":"poll-1"}`)
		case "/api/auth/v5/authByRequestPollingId":
			var req authPollRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "poll-1", req.RequestPollingID)
			if polls.Add(1) == 1 {
				w.WriteHeader(http.StatusAccepted)
				return
			}
			w.Header().Add("Set-Cookie", "datadome=abc; Max-Age=3600; Domain=.example.com; Path=/; Secure; SameSite=Lax")
			w.Header().Add("Set-Cookie", "session=s1; Path=/; HttpOnly")
			_, _ = io.WriteString(w, `{"access_token":"new","refresh_token":"r","startup_data":{"user":{"user_id":"99"}}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}, func(o *Options) {
		o.Credentials = nil
		o.Cache = cache
	})

	creds, err := client.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Credentials{AccessToken: "new", RefreshToken: "r", UserID: "99", Cookie: "datadome=abc; session=s1"}, creds)
	assert.Equal(t, int32(2), polls.Load())

	cached, err := cache.GetString(context.Background(), credentialsKey)
	require.NoError(t, err)
	assert.Contains(t, cached, `"access_token":"new"`)
}

func TestAuthenticate_GivesUpAfterPollBudget(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/v5/authByEmail" {
			_, _ = io.WriteString(w, `{"state":"WAIT","polling_id":"poll-1"}`)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}, func(o *Options) { o.Credentials = nil })

	_, err := client.Authenticate(context.Background())
	assert.ErrorIs(t, err, common.ErrAuth)
}

func TestAuthenticate_TermsNotAccepted(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"state":"TERMS"}`)
	}, nil)

	_, err := client.Authenticate(context.Background())
	assert.True(t, errors.Is(err, common.ErrAuth))
}

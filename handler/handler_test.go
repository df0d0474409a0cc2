package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lnkr-app/lnkr/admission"
	"github.com/lnkr-app/lnkr/generator"
	"github.com/lnkr-app/lnkr/model"
	"github.com/lnkr-app/lnkr/repo"
	"github.com/lnkr-app/lnkr/resolver"
	"github.com/lnkr-app/lnkr/shared"
	"github.com/lnkr-app/lnkr/stats"
	"github.com/lnkr-app/lnkr/visit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testHost = "lnkr.to"
	chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

type noReputation struct{}

func (noReputation) Enabled() bool { return false }

func (noReputation) CheckMalware(_ context.Context, _ string) (bool, error) {
	return false, nil
}

type discardCache struct{}

func (discardCache) Get(_ string) (string, error) { return "", nil }

func (discardCache) Set(_ string, _ interface{}, _ time.Duration) error { return nil }

func newTestApp(t *testing.T) (*repo.MemRepo, *fiber.App) {
	t.Helper()
	r := repo.NewMemRepo()
	logger := shared.NewNopLogger()
	tracer := shared.NewNopTracer()

	queue := visit.NewQueue(r, logger, visit.NewClassifier(nil), 64, 1, 100)
	queue.Start()
	t.Cleanup(queue.Stop)

	adm := admission.NewPipeline(r, generator.New(6, r), noReputation{}, logger, testHost, 50, false)
	adm.LookupIP = func(_ context.Context, _ string) ([]string, error) {
		return nil, context.DeadlineExceeded
	}
	rs := resolver.New(r, queue, logger, tracer, testHost)
	st := stats.NewService(r, discardCache{}, logger, testHost)

	h := New(adm, rs, st, r, logger, shared.NewMetrics(), tracer, testHost)

	svc := shared.NewHttpService("lnkr-test", "0")
	svc.Init()
	h.Register(svc)
	return r, svc.App
}

func doJSON(t *testing.T, app *fiber.App, method, target string, body interface{}, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", chromeUA)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		json.Unmarshal(raw, &decoded)
	}
	return resp, decoded
}

func TestCreateThenResolve(t *testing.T) {
	_, app := newTestApp(t)

	resp, body := doJSON(t, app, "POST", "http://lnkr.to/links",
		map[string]string{"target": "example.com/page"}, nil)
	require.Equal(t, 200, resp.StatusCode)

	address, _ := body["address"].(string)
	require.Len(t, address, 6)
	assert.Equal(t, "http://example.com/page", body["target"])
	assert.Equal(t, "https://lnkr.to/"+address, body["shortLink"])

	resp, _ = doJSON(t, app, "GET", "http://lnkr.to/"+address, nil, nil)
	assert.Equal(t, 302, resp.StatusCode)
	assert.Equal(t, "http://example.com/page", resp.Header.Get("Location"))
}

func TestCreateLinkRejectsBadTarget(t *testing.T) {
	_, app := newTestApp(t)

	resp, body := doJSON(t, app, "POST", "http://lnkr.to/links",
		map[string]string{"target": ""}, nil)
	assert.Equal(t, 400, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestAPIKeyMiddleware(t *testing.T) {
	r, app := newTestApp(t)
	r.AddUser(model.User{Email: "a@example.com", APIKey: "good-key"})
	r.AddUser(model.User{Email: "b@example.com", APIKey: "banned-key", Banned: true})

	resp, body := doJSON(t, app, "GET", "http://lnkr.to/links", nil,
		map[string]string{"X-API-Key": "no-such-key"})
	assert.Equal(t, 401, resp.StatusCode)
	assert.Equal(t, "Invalid API key", body["error"])

	resp, body = doJSON(t, app, "GET", "http://lnkr.to/links", nil,
		map[string]string{"X-API-Key": "banned-key"})
	assert.Equal(t, 403, resp.StatusCode)
	assert.Equal(t, "Account has been banned", body["error"])

	resp, _ = doJSON(t, app, "GET", "http://lnkr.to/links", nil,
		map[string]string{"X-API-Key": "good-key"})
	assert.Equal(t, 200, resp.StatusCode)
}

func TestListLinks(t *testing.T) {
	r, app := newTestApp(t)
	owner := r.AddUser(model.User{Email: "a@example.com", APIKey: "good-key"})
	require.NoError(t, r.CreateLink(context.Background(),
		&model.Link{Address: "abc123", Target: "http://example.com", UserID: &owner.ID}))

	resp, body := doJSON(t, app, "GET", "http://lnkr.to/links", nil, nil)
	assert.Equal(t, 401, resp.StatusCode)

	resp, body = doJSON(t, app, "GET", "http://lnkr.to/links", nil,
		map[string]string{"X-API-Key": "good-key"})
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, float64(1), body["countAll"])
	list, _ := body["list"].([]interface{})
	require.Len(t, list, 1)
}

func TestResolveBannedLinkRedirectsToNotice(t *testing.T) {
	r, app := newTestApp(t)
	require.NoError(t, r.CreateLink(context.Background(),
		&model.Link{Address: "bad", Target: "http://example.com", Banned: true}))

	resp, _ := doJSON(t, app, "GET", "http://lnkr.to/bad", nil, nil)
	assert.Equal(t, 302, resp.StatusCode)
	assert.Equal(t, "/banned", resp.Header.Get("Location"))
}

func TestResolveUnknownReturns404(t *testing.T) {
	_, app := newTestApp(t)

	resp, body := doJSON(t, app, "GET", "http://lnkr.to/nosuch", nil, nil)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "Could not find the short link", body["error"])
}

func TestResolvePasswordOverPost(t *testing.T) {
	r, app := newTestApp(t)
	r.AddUser(model.User{Email: "a@example.com", APIKey: "good-key"})

	resp, body := doJSON(t, app, "POST", "http://lnkr.to/links",
		map[string]string{"target": "example.com/secret", "password": "hunter2"},
		map[string]string{"X-API-Key": "good-key"})
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, true, body["password"])
	address := body["address"].(string)

	resp, body = doJSON(t, app, "GET", "http://lnkr.to/"+address, nil, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "password", body["mode"])

	resp, body = doJSON(t, app, "POST", "http://lnkr.to/"+address,
		map[string]string{"password": "wrong"}, nil)
	assert.Equal(t, 401, resp.StatusCode)
	assert.Equal(t, "Password is not correct", body["error"])

	resp, body = doJSON(t, app, "POST", "http://lnkr.to/"+address,
		map[string]string{"password": "hunter2"}, nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "http://example.com/secret", body["target"])
}

func TestDeleteLink(t *testing.T) {
	r, app := newTestApp(t)
	owner := r.AddUser(model.User{Email: "a@example.com", APIKey: "good-key"})
	require.NoError(t, r.CreateLink(context.Background(),
		&model.Link{Address: "abc123", Target: "http://example.com", UserID: &owner.ID}))

	resp, _ := doJSON(t, app, "DELETE", "http://lnkr.to/links/abc123", nil, nil)
	assert.Equal(t, 401, resp.StatusCode)

	resp, _ = doJSON(t, app, "DELETE", "http://lnkr.to/links/abc123", nil,
		map[string]string{"X-API-Key": "good-key"})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Empty(t, r.Links)

	resp, body := doJSON(t, app, "DELETE", "http://lnkr.to/links/abc123", nil,
		map[string]string{"X-API-Key": "good-key"})
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "Could not delete the short link", body["error"])
}

func TestBanLinkRequiresAdmin(t *testing.T) {
	r, app := newTestApp(t)
	r.AddUser(model.User{Email: "a@example.com", APIKey: "user-key"})
	r.AddUser(model.User{Email: "root@example.com", APIKey: "admin-key", Admin: true})
	require.NoError(t, r.CreateLink(context.Background(),
		&model.Link{Address: "bad", Target: "http://evil.example.com/x"}))

	resp, _ := doJSON(t, app, "POST", "http://lnkr.to/links/bad/ban", nil, nil)
	assert.Equal(t, 401, resp.StatusCode)

	resp, _ = doJSON(t, app, "POST", "http://lnkr.to/links/bad/ban", nil,
		map[string]string{"X-API-Key": "user-key"})
	assert.Equal(t, 403, resp.StatusCode)

	resp, body := doJSON(t, app, "POST", "http://lnkr.to/links/bad/ban",
		map[string]bool{"domain": true},
		map[string]string{"X-API-Key": "admin-key"})
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Link has been banned successfully", body["message"])
	assert.True(t, r.Links[0].Banned)
	require.Len(t, r.Domains, 1)
	assert.True(t, r.Domains[0].Banned)

	resp, body = doJSON(t, app, "POST", "http://lnkr.to/links/bad/ban", nil,
		map[string]string{"X-API-Key": "admin-key"})
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Link has already been banned", body["message"])
}

func TestStatsEndpointAuth(t *testing.T) {
	r, app := newTestApp(t)
	owner := r.AddUser(model.User{Email: "a@example.com", APIKey: "good-key"})
	require.NoError(t, r.CreateLink(context.Background(),
		&model.Link{Address: "abc123", Target: "http://example.com", UserID: &owner.ID}))

	resp, _ := doJSON(t, app, "GET", "http://lnkr.to/links/abc123/stats", nil, nil)
	assert.Equal(t, 401, resp.StatusCode)

	resp, body := doJSON(t, app, "GET", "http://lnkr.to/links/abc123/stats", nil,
		map[string]string{"X-API-Key": "good-key"})
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "abc123", body["address"])

	resp, _ = doJSON(t, app, "GET", "http://lnkr.to/links/nosuch/stats", nil,
		map[string]string{"X-API-Key": "good-key"})
	assert.Equal(t, 404, resp.StatusCode)
}

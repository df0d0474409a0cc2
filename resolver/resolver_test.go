package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/lnkr-app/lnkr/model"
	"github.com/lnkr-app/lnkr/repo"
	"github.com/lnkr-app/lnkr/shared"
	"github.com/lnkr-app/lnkr/visit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultHost = "lnkr.to"
	chromeUA    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	crawlerUA   = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func testResolver(r *repo.MemRepo) (*Resolver, *visit.Queue) {
	q := visit.NewQueue(r, shared.NewNopLogger(), visit.NewClassifier(nil), 64, 1, 100)
	q.Start()
	rs := New(r, q, shared.NewNopLogger(), shared.NewNopTracer(), defaultHost)
	return rs, q
}

func seedLink(t *testing.T, r *repo.MemRepo, link model.Link) model.Link {
	t.Helper()
	require.NoError(t, r.CreateLink(context.Background(), &link))
	return link
}

func TestResolveRedirectRecordsVisit(t *testing.T) {
	r := repo.NewMemRepo()
	owner := r.AddUser(model.User{Email: "a@example.com"})
	link := seedLink(t, r, model.Link{Address: "abc123", Target: "http://example.com/page", UserID: &owner.ID})
	rs, q := testResolver(r)

	out, err := rs.Resolve(context.Background(), Request{
		Address:   "abc123",
		Host:      defaultHost,
		UserAgent: chromeUA,
		Referrer:  "https://news.example.org/feed",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRedirect, out.Kind)
	assert.Equal(t, link.Target, out.Target)

	q.Stop()
	assert.Equal(t, 1, r.Links[0].VisitCount)
	require.Len(t, r.Visits, 1)
	assert.Equal(t, model.BrowserChrome, r.Visits[0].Browser)
	assert.Equal(t, "news[dot]example[dot]org", r.Visits[0].Referrer)
}

func TestResolveBotNotRecorded(t *testing.T) {
	r := repo.NewMemRepo()
	owner := r.AddUser(model.User{Email: "a@example.com"})
	seedLink(t, r, model.Link{Address: "abc123", Target: "http://example.com", UserID: &owner.ID})
	rs, q := testResolver(r)

	for _, agent := range []string{crawlerUA, ""} {
		out, err := rs.Resolve(context.Background(), Request{Address: "abc123", Host: defaultHost, UserAgent: agent})
		require.NoError(t, err)
		assert.Equal(t, OutcomeRedirect, out.Kind)
	}

	q.Stop()
	assert.Equal(t, 0, r.Links[0].VisitCount)
	assert.Empty(t, r.Visits)
}

func TestResolveAnonymousLinkNotRecorded(t *testing.T) {
	r := repo.NewMemRepo()
	seedLink(t, r, model.Link{Address: "anon42", Target: "http://example.com"})
	rs, q := testResolver(r)

	out, err := rs.Resolve(context.Background(), Request{Address: "anon42", Host: defaultHost, UserAgent: chromeUA})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRedirect, out.Kind)

	q.Stop()
	assert.Empty(t, r.Visits)
}

func TestResolveUnknownAddress(t *testing.T) {
	r := repo.NewMemRepo()
	rs, q := testResolver(r)
	defer q.Stop()

	out, err := rs.Resolve(context.Background(), Request{Address: "nosuch", Host: defaultHost, UserAgent: chromeUA})
	require.NoError(t, err)
	assert.Equal(t, OutcomePassThrough, out.Kind)
}

func TestResolveExpiredLinkLooksMissing(t *testing.T) {
	r := repo.NewMemRepo()
	past := time.Now().Add(-time.Minute)
	seedLink(t, r, model.Link{Address: "gone99", Target: "http://example.com", ExpiresAt: &past})
	rs, q := testResolver(r)
	defer q.Stop()

	out, err := rs.Resolve(context.Background(), Request{Address: "gone99", Host: defaultHost, UserAgent: chromeUA})
	require.NoError(t, err)
	assert.Equal(t, OutcomePassThrough, out.Kind)
}

func TestResolveBanned(t *testing.T) {
	r := repo.NewMemRepo()
	owner := r.AddUser(model.User{Email: "a@example.com"})
	seedLink(t, r, model.Link{Address: "bad", Target: "http://example.com", UserID: &owner.ID, Banned: true})
	rs, q := testResolver(r)

	out, err := rs.Resolve(context.Background(), Request{Address: "bad", Host: defaultHost, UserAgent: chromeUA})
	require.NoError(t, err)
	assert.Equal(t, OutcomeBanned, out.Kind)

	q.Stop()
	assert.Empty(t, r.Visits)
}

func TestResolveInfoMarker(t *testing.T) {
	r := repo.NewMemRepo()
	seedLink(t, r, model.Link{Address: "abc123", Target: "http://example.com"})
	rs, q := testResolver(r)
	defer q.Stop()

	out, err := rs.Resolve(context.Background(), Request{Address: "abc123+", Host: defaultHost, UserAgent: chromeUA})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInfo, out.Kind)
	assert.Equal(t, "http://example.com", out.Target)
}

func TestResolvePasswordFlow(t *testing.T) {
	r := repo.NewMemRepo()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	owner := r.AddUser(model.User{Email: "a@example.com"})
	seedLink(t, r, model.Link{Address: "vault", Target: "http://example.com/secret", UserID: &owner.ID, Password: string(hash)})
	rs, q := testResolver(r)

	out, err := rs.Resolve(context.Background(), Request{Address: "vault", Host: defaultHost, UserAgent: chromeUA})
	require.NoError(t, err)
	assert.Equal(t, OutcomeChallenge, out.Kind)

	// The info marker never bypasses the credential gate.
	out, err = rs.Resolve(context.Background(), Request{Address: "vault+", Host: defaultHost, UserAgent: chromeUA})
	require.NoError(t, err)
	assert.Equal(t, OutcomeChallenge, out.Kind)

	out, err = rs.Resolve(context.Background(), Request{Address: "vault", Host: defaultHost, Password: "wrong", UserAgent: chromeUA})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnauthorized, out.Kind)

	out, err = rs.Resolve(context.Background(), Request{Address: "vault", Host: defaultHost, Password: "hunter2", UserAgent: chromeUA})
	require.NoError(t, err)
	assert.Equal(t, OutcomeTarget, out.Kind)
	assert.Equal(t, "http://example.com/secret", out.Target)

	q.Stop()
	assert.Equal(t, 1, r.Links[0].VisitCount)
}

func TestResolveCustomDomainScope(t *testing.T) {
	r := repo.NewMemRepo()
	domain := r.AddDomain(model.Domain{Address: "go.corp.example", Homepage: "https://corp.example"})
	seedLink(t, r, model.Link{Address: "abc123", Target: "http://default.example"})
	seedLink(t, r, model.Link{Address: "abc123", Target: "http://scoped.example", DomainID: &domain.ID})
	rs, q := testResolver(r)
	defer q.Stop()

	out, err := rs.Resolve(context.Background(), Request{Address: "abc123", Host: "go.corp.example", UserAgent: chromeUA})
	require.NoError(t, err)
	assert.Equal(t, "http://scoped.example", out.Target)

	out, err = rs.Resolve(context.Background(), Request{Address: "abc123", Host: "LNKR.TO", UserAgent: chromeUA})
	require.NoError(t, err)
	assert.Equal(t, "http://default.example", out.Target)
}

func TestResolveCustomDomainHomepage(t *testing.T) {
	r := repo.NewMemRepo()
	r.AddDomain(model.Domain{Address: "go.corp.example", Homepage: "https://corp.example"})
	rs, q := testResolver(r)
	defer q.Stop()

	out, err := rs.Resolve(context.Background(), Request{Address: "nosuch", Host: "go.corp.example", UserAgent: chromeUA})
	require.NoError(t, err)
	assert.Equal(t, OutcomeHomepage, out.Kind)
	assert.Equal(t, "https://corp.example", out.Target)
}

type captureBeacon struct {
	messages chan interface{}
}

func (b *captureBeacon) Publish(_ string, message interface{}) error {
	b.messages <- message
	return nil
}

func TestResolveFiresBeacon(t *testing.T) {
	r := repo.NewMemRepo()
	owner := r.AddUser(model.User{Email: "a@example.com"})
	seedLink(t, r, model.Link{Address: "abc123", Target: "http://example.com", UserID: &owner.ID})
	rs, q := testResolver(r)
	defer q.Stop()

	beacon := &captureBeacon{messages: make(chan interface{}, 1)}
	rs.Beacon = beacon
	rs.BeaconQueue = "visits"

	_, err := rs.Resolve(context.Background(), Request{Address: "abc123", Host: defaultHost, UserAgent: chromeUA})
	require.NoError(t, err)

	select {
	case msg := <-beacon.messages:
		event, ok := msg.(visit.Event)
		require.True(t, ok)
		assert.Equal(t, r.Links[0].ID, event.LinkID)
	case <-time.After(time.Second):
		t.Fatal("beacon was never published")
	}
}

package admission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lnkr-app/lnkr/generator"
	"github.com/lnkr-app/lnkr/model"
	"github.com/lnkr-app/lnkr/repo"
	"github.com/lnkr-app/lnkr/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeReputation struct {
	enabled bool
	matched bool
}

func (f *fakeReputation) Enabled() bool { return f.enabled }

func (f *fakeReputation) CheckMalware(_ context.Context, _ string) (bool, error) {
	return f.matched, nil
}

func admitPipeline(r *repo.MemRepo, rep *fakeReputation) *Pipeline {
	p := NewPipeline(r, generator.New(6, r), rep, shared.NewNopLogger(), "lnkr.to", 50, false)
	p.LookupIP = func(_ context.Context, _ string) ([]string, error) {
		return nil, context.DeadlineExceeded
	}
	return p
}

func TestAdmitAnonymous(t *testing.T) {
	r := repo.NewMemRepo()
	p := admitPipeline(r, &fakeReputation{})

	result, err := p.Admit(context.Background(), CreateRequest{Target: "example.com/a"}, nil, "1.2.3.4")
	require.NoError(t, err)

	assert.Equal(t, "http://example.com/a", result.Link.Target)
	assert.Len(t, result.Link.Address, 6)
	assert.False(t, result.Link.Banned)
	assert.False(t, result.Reuse)
	assert.Nil(t, result.Link.UserID)
}

func TestAdmitNoPartialWrite(t *testing.T) {
	r := repo.NewMemRepo()
	p := admitPipeline(r, &fakeReputation{})

	_, err := p.Admit(context.Background(), CreateRequest{Target: "http://lnkr.to/loop"}, nil, "")
	assert.ErrorIs(t, err, ErrInvalidTarget)
	assert.Empty(t, r.Links)
}

func TestAdmitCustomAddressCollision(t *testing.T) {
	r := repo.NewMemRepo()
	actor := r.AddUser(model.User{Email: "a@example.com"})
	p := admitPipeline(r, &fakeReputation{})

	_, err := p.Admit(context.Background(), CreateRequest{Target: "example.com/1", CustomURL: "mine"}, actor, "")
	require.NoError(t, err)

	_, err = p.Admit(context.Background(), CreateRequest{Target: "example.com/2", CustomURL: "mine"}, actor, "")
	assert.ErrorIs(t, err, ErrAddressTaken)
	assert.Len(t, r.Links, 1)
}

func TestAdmitConcurrentSameCustomAddress(t *testing.T) {
	r := repo.NewMemRepo()
	actor := r.AddUser(model.User{Email: "a@example.com"})
	p := admitPipeline(r, &fakeReputation{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Admit(context.Background(), CreateRequest{
				Target:    "example.com/race",
				CustomURL: "contested",
			}, actor, "")
		}(i)
	}
	wg.Wait()

	var taken, ok int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, ErrAddressTaken):
			taken++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, taken)
	assert.Len(t, r.Links, 1)
}

func TestAdmitReuseIsIdempotent(t *testing.T) {
	r := repo.NewMemRepo()
	actor := r.AddUser(model.User{Email: "a@example.com"})
	p := admitPipeline(r, &fakeReputation{})

	first, err := p.Admit(context.Background(), CreateRequest{Target: "example.com/x", Reuse: true}, actor, "")
	require.NoError(t, err)
	assert.False(t, first.Reuse)

	second, err := p.Admit(context.Background(), CreateRequest{Target: "example.com/x", Reuse: true}, actor, "")
	require.NoError(t, err)
	assert.True(t, second.Reuse)
	assert.Equal(t, first.Link.Address, second.Link.Address)
	assert.Len(t, r.Links, 1)
}

func TestAdmitPasswordIsHashed(t *testing.T) {
	r := repo.NewMemRepo()
	actor := r.AddUser(model.User{Email: "a@example.com"})
	p := admitPipeline(r, &fakeReputation{})

	result, err := p.Admit(context.Background(), CreateRequest{Target: "example.com/p", Password: "hunter2"}, actor, "")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", result.Link.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(result.Link.Password), []byte("hunter2")))
}

func TestAdmitExpiryStoredAbsolute(t *testing.T) {
	r := repo.NewMemRepo()
	actor := r.AddUser(model.User{Email: "a@example.com"})
	p := admitPipeline(r, &fakeReputation{})
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p.nowFn = func() time.Time { return now }

	result, err := p.Admit(context.Background(), CreateRequest{Target: "example.com/e", ExpireIn: "8h"}, actor, "")
	require.NoError(t, err)
	require.NotNil(t, result.Link.ExpiresAt)
	assert.Equal(t, now.Add(8*time.Hour), *result.Link.ExpiresAt)
}

func TestAdmitDailyVolumeLimit(t *testing.T) {
	r := repo.NewMemRepo()
	actor := r.AddUser(model.User{Email: "a@example.com"})
	p := admitPipeline(r, &fakeReputation{})
	p.UserLimitPerDay = 1

	_, err := p.Admit(context.Background(), CreateRequest{Target: "example.com/1"}, actor, "")
	require.NoError(t, err)

	_, err = p.Admit(context.Background(), CreateRequest{Target: "example.com/2"}, actor, "")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestAdmitBannedTargetDomain(t *testing.T) {
	r := repo.NewMemRepo()
	r.AddDomain(model.Domain{Address: "evil.example.com", Banned: true})
	p := admitPipeline(r, &fakeReputation{})

	_, err := p.Admit(context.Background(), CreateRequest{Target: "http://evil.example.com/x"}, nil, "")
	assert.ErrorIs(t, err, ErrDomainBanned)
	assert.Empty(t, r.Links)
}

func TestAdmitBannedTargetHost(t *testing.T) {
	r := repo.NewMemRepo()
	r.AddHost(model.Host{Address: "203.0.113.9", Banned: true})
	p := admitPipeline(r, &fakeReputation{})
	p.LookupIP = func(_ context.Context, _ string) ([]string, error) {
		return []string{"203.0.113.9"}, nil
	}

	_, err := p.Admit(context.Background(), CreateRequest{Target: "example.com/x"}, nil, "")
	assert.ErrorIs(t, err, ErrHostBanned)
}

func TestAdmitMalwareDetection(t *testing.T) {
	r := repo.NewMemRepo()
	p := admitPipeline(r, &fakeReputation{enabled: true, matched: true})

	_, err := p.Admit(context.Background(), CreateRequest{Target: "example.com/bad"}, nil, "")
	assert.ErrorIs(t, err, ErrMalwareDetected)
	assert.Empty(t, r.Links)
}

func TestAdmitMalwareEscalatesToBan(t *testing.T) {
	r := repo.NewMemRepo()
	actor := r.AddUser(model.User{Email: "a@example.com", CooldownCount: 2})
	p := admitPipeline(r, &fakeReputation{enabled: true, matched: true})

	_, err := p.Admit(context.Background(), CreateRequest{Target: "example.com/bad"}, actor, "")
	assert.ErrorIs(t, err, ErrActorBanned)

	require.Len(t, r.Users, 1)
	assert.True(t, r.Users[0].Banned)
}

func TestAdmitActiveCooldown(t *testing.T) {
	r := repo.NewMemRepo()
	recent := time.Now().Add(-time.Hour)
	actor := r.AddUser(model.User{Email: "a@example.com", CooldownCount: 1, LastCooldown: &recent})
	p := admitPipeline(r, &fakeReputation{enabled: true})

	_, err := p.Admit(context.Background(), CreateRequest{Target: "example.com/x"}, actor, "")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestAdmitAnonymousIPCooldown(t *testing.T) {
	r := repo.NewMemRepo()
	p := admitPipeline(r, &fakeReputation{})
	p.NonUserCooldown = true

	_, err := p.Admit(context.Background(), CreateRequest{Target: "example.com/1"}, nil, "9.9.9.9")
	require.NoError(t, err)
	require.Len(t, r.IPs, 1)

	_, err = p.Admit(context.Background(), CreateRequest{Target: "example.com/2"}, nil, "9.9.9.9")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestAdmitBannedActor(t *testing.T) {
	r := repo.NewMemRepo()
	actor := r.AddUser(model.User{Email: "a@example.com", Banned: true})
	p := admitPipeline(r, &fakeReputation{})

	_, err := p.Admit(context.Background(), CreateRequest{Target: "example.com/x"}, actor, "")
	assert.ErrorIs(t, err, ErrActorBanned)
}

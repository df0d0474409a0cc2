// Package admission validates, deduplicates and persists new short links.
package admission

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/lnkr-app/lnkr/model"
	"github.com/lnkr-app/lnkr/repo"
	"github.com/lnkr-app/lnkr/shared"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

const (
	cooldownWindow = 12 * time.Hour
	// maxCooldowns is the cumulative malware-detection count after which
	// the actor is banned.
	maxCooldowns = 3
	dnsTimeout   = 3 * time.Second
)

// AddressGenerator produces a fresh address in the default scope.
type AddressGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// ReputationChecker is the external malware-lookup collaborator.
type ReputationChecker interface {
	Enabled() bool
	CheckMalware(ctx context.Context, target string) (bool, error)
}

// Result is a successful admission. Reuse marks the idempotent
// short-circuit: the returned link existed already and nothing was written.
type Result struct {
	Link  model.Link
	Reuse bool
}

type Pipeline struct {
	Repo            repo.Repository
	Gen             AddressGenerator
	Reputation      ReputationChecker
	Logger          *shared.Logger
	DefaultHost     string
	UserLimitPerDay int
	NonUserCooldown bool

	// LookupIP resolves a hostname to addresses for the host-ban check.
	// Overridable in tests; defaults to the system resolver.
	LookupIP func(ctx context.Context, host string) ([]string, error)

	nowFn func() time.Time
}

func NewPipeline(r repo.Repository, gen AddressGenerator, rep ReputationChecker, logger *shared.Logger, defaultHost string, userLimitPerDay int, nonUserCooldown bool) *Pipeline {
	return &Pipeline{
		Repo:            r,
		Gen:             gen,
		Reputation:      rep,
		Logger:          logger,
		DefaultHost:     defaultHost,
		UserLimitPerDay: userLimitPerDay,
		NonUserCooldown: nonUserCooldown,
	}
}

func (p *Pipeline) now() time.Time {
	if p.nowFn != nil {
		return p.nowFn()
	}
	return time.Now()
}

func (p *Pipeline) lookupIP(ctx context.Context, host string) ([]string, error) {
	if p.LookupIP != nil {
		return p.LookupIP(ctx, host)
	}
	ctx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()
	return net.DefaultResolver.LookupHost(ctx, host)
}

// checkCooldown rejects actors under an active malware cooldown and
// anonymous creators inside the per-IP daily window.
func (p *Pipeline) checkCooldown(ctx context.Context, actor *model.User, clientIP string) error {
	if actor != nil {
		if !p.Reputation.Enabled() {
			return nil
		}
		if actor.LastCooldown != nil && p.now().Sub(*actor.LastCooldown) < cooldownWindow {
			return fmt.Errorf("%w: malware cooldown active, wait 12h", ErrRateLimited)
		}
		return nil
	}

	if !p.NonUserCooldown || clientIP == "" {
		return nil
	}
	recent, err := p.Repo.HasRecentIP(ctx, clientIP, p.now().Add(-24*time.Hour))
	if err != nil {
		return err
	}
	if recent {
		return ErrRateLimited
	}
	return nil
}

// checkMalware runs the reputation lookup. A match escalates: the actor
// collects a cooldown, and three cumulative detections ban the account.
func (p *Pipeline) checkMalware(ctx context.Context, actor *model.User, target string) error {
	matched, err := p.Reputation.CheckMalware(ctx, target)
	if err != nil {
		// Fail open: reputation-service degradation must not block
		// admission.
		p.Logger.Warn("MalwareCheckFailed", zap.String("target", target), zap.Error(err))
		return nil
	}
	if !matched {
		return nil
	}

	if actor != nil {
		count, err := p.Repo.AddUserCooldown(ctx, actor.ID, p.now())
		if err != nil {
			return err
		}
		if count >= maxCooldowns {
			if err := p.Repo.BanUser(ctx, actor.ID); err != nil {
				return err
			}
			return ErrActorBanned
		}
	}
	return ErrMalwareDetected
}

func (p *Pipeline) checkDailyVolume(ctx context.Context, actor *model.User) error {
	if actor == nil {
		return nil
	}
	count, err := p.Repo.CountUserLinksSince(ctx, actor.ID, p.now().Add(-24*time.Hour))
	if err != nil {
		return err
	}
	if count >= int64(p.UserLimitPerDay) {
		return fmt.Errorf("%w: daily limit of %d links reached", ErrRateLimited, p.UserLimitPerDay)
	}
	return nil
}

// checkBannedDomain fails closed: a repository error rejects the admission
// rather than letting a previously banned domain through.
func (p *Pipeline) checkBannedDomain(ctx context.Context, targetHost string) error {
	domain, err := p.Repo.FindDomain(ctx, targetHost)
	if err != nil {
		return fmt.Errorf("domain ban check: %w", err)
	}
	if domain != nil && domain.Banned {
		return ErrDomainBanned
	}
	return nil
}

// checkBannedHost resolves the target hostname and matches the addresses
// against the banned-host table. DNS failure means no IP can be identified
// and the check is skipped; a repository error fails closed.
func (p *Pipeline) checkBannedHost(ctx context.Context, targetHost string) error {
	addrs, err := p.lookupIP(ctx, targetHost)
	if err != nil || len(addrs) == 0 {
		return nil
	}
	host, err := p.Repo.FindHost(ctx, addrs[0])
	if err != nil {
		return fmt.Errorf("host ban check: %w", err)
	}
	if host != nil && host.Banned {
		return ErrHostBanned
	}
	return nil
}

// Admit validates the request and creates (or reuses) a short link. All
// policy checks with no pairwise data dependency run concurrently and are
// joined before any branch; no write happens until every check has passed.
func (p *Pipeline) Admit(ctx context.Context, req CreateRequest, actor *model.User, clientIP string) (*Result, error) {
	if actor != nil && actor.Banned {
		return nil, ErrActorBanned
	}

	v, err := p.validate(ctx, req, actor)
	if err != nil {
		return nil, err
	}

	var (
		reuseLink *model.Link
		collision *model.Link
		generated string
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return p.checkCooldown(gctx, actor, clientIP) })
	g.Go(func() error { return p.checkMalware(gctx, actor, v.target) })
	g.Go(func() error { return p.checkDailyVolume(gctx, actor) })
	g.Go(func() error { return p.checkBannedDomain(gctx, v.targetHost) })
	g.Go(func() error { return p.checkBannedHost(gctx, v.targetHost) })

	if actor != nil && v.reuse {
		g.Go(func() error {
			link, err := p.Repo.FindLink(gctx, repo.LinkFilter{
				Target:    v.target,
				UserID:    &actor.ID,
				AnyDomain: true,
			})
			reuseLink = link
			return err
		})
	}

	if actor != nil && v.customURL != "" {
		g.Go(func() error {
			filter := repo.LinkFilter{Address: v.customURL}
			if v.domain != nil {
				filter.DomainID = &v.domain.ID
			}
			link, err := p.Repo.FindLink(gctx, filter)
			collision = link
			return err
		})
	} else {
		g.Go(func() error {
			address, err := p.Gen.Generate(gctx)
			generated = address
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if reuseLink != nil {
		return &Result{Link: *reuseLink, Reuse: true}, nil
	}
	if collision != nil {
		return nil, ErrAddressTaken
	}

	address := generated
	if actor != nil && v.customURL != "" {
		address = v.customURL
	}

	link := model.Link{
		Address:     address,
		Target:      v.target,
		Description: v.description,
		ExpiresAt:   v.expiresAt,
	}
	if actor != nil {
		link.UserID = &actor.ID
	}
	if v.domain != nil {
		link.DomainID = &v.domain.ID
	}
	if v.password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(v.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		link.Password = string(hash)
	}

	if err := p.Repo.CreateLink(ctx, &link); err != nil {
		// The storage constraint is the last line of defense against two
		// concurrent admissions racing for the same address.
		if errors.Is(err, repo.ErrDuplicateAddress) {
			return nil, ErrAddressTaken
		}
		return nil, err
	}

	if actor == nil && p.NonUserCooldown && clientIP != "" {
		if err := p.Repo.RecordIP(ctx, clientIP); err != nil {
			p.Logger.Warn("RecordIPFailed", zap.String("ip", clientIP), zap.Error(err))
		}
	}

	return &Result{Link: link}, nil
}

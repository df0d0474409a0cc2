// Package resolver turns an inbound short address plus host header into one
// of the fixed response strategies: redirect, password challenge, info page,
// ban notice or pass-through.
package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/lnkr-app/lnkr/model"
	"github.com/lnkr-app/lnkr/repo"
	"github.com/lnkr-app/lnkr/shared"
	"github.com/lnkr-app/lnkr/visit"
	"github.com/mileusna/useragent"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type OutcomeKind int

const (
	// OutcomePassThrough means unknown (or expired) address: the caller
	// falls through to its 404 handling. Deliberately indistinguishable
	// from "expired" to avoid leaking link existence.
	OutcomePassThrough OutcomeKind = iota
	// OutcomeRedirect is the default path: HTTP redirect to Target.
	OutcomeRedirect
	// OutcomeHomepage redirects (301) to a custom domain's homepage.
	OutcomeHomepage
	// OutcomeBanned renders the fixed ban notice route.
	OutcomeBanned
	// OutcomeInfo hands the target to an info render mode, no redirect.
	OutcomeInfo
	// OutcomeChallenge asks the client for the link password.
	OutcomeChallenge
	// OutcomeUnauthorized is a failed password attempt (401).
	OutcomeUnauthorized
	// OutcomeTarget returns the target in the body after a successful
	// password check. Credential flows never redirect.
	OutcomeTarget
)

type Outcome struct {
	Kind    OutcomeKind
	Target  string
	Address string
}

// Request carries everything the decision needs from the HTTP layer.
type Request struct {
	Address   string // may carry the trailing "+" info marker
	Host      string
	Password  string
	UserAgent string
	Referrer  string
	IP        string
}

// Beacon is the optional best-effort external analytics sink.
type Beacon interface {
	Publish(queue string, message interface{}) error
}

type Resolver struct {
	Repo        repo.Repository
	Queue       *visit.Queue
	Logger      *shared.Logger
	Tracer      *shared.Tracer
	DefaultHost string

	// Beacon, when set, receives a copy of every recorded visit.
	Beacon      Beacon
	BeaconQueue string

	nowFn func() time.Time
}

func New(r repo.Repository, queue *visit.Queue, logger *shared.Logger, tracer *shared.Tracer, defaultHost string) *Resolver {
	return &Resolver{
		Repo:        r,
		Queue:       queue,
		Logger:      logger,
		Tracer:      tracer,
		DefaultHost: defaultHost,
	}
}

func (rs *Resolver) now() time.Time {
	if rs.nowFn != nil {
		return rs.nowFn()
	}
	return time.Now()
}

// IsAutomatedAgent classifies the declared client identity as a bot. It
// gates analytics recording only, never the redirect itself.
func IsAutomatedAgent(agent string) bool {
	if agent == "" {
		return true
	}
	ua := useragent.Parse(agent)
	return ua.Bot
}

func (rs *Resolver) record(link *model.Link, req Request, isBot bool) {
	if link.UserID == nil || isBot {
		return
	}

	event := visit.Event{
		LinkID:     link.ID,
		VisitCount: link.VisitCount,
		UserAgent:  req.UserAgent,
		IP:         req.IP,
		Referrer:   req.Referrer,
		At:         rs.now(),
	}
	rs.Queue.Enqueue(event)

	if rs.Beacon != nil {
		go func() {
			if err := rs.Beacon.Publish(rs.BeaconQueue, event); err != nil {
				rs.Logger.Warn("BeaconPublishFailed", zap.Uint("link_id", link.ID), zap.Error(err))
			}
		}()
	}
}

// Resolve runs the decision state machine for one inbound request.
func (rs *Resolver) Resolve(ctx context.Context, req Request) (Outcome, error) {
	wantsInfo := strings.HasSuffix(req.Address, "+")
	address := strings.TrimSuffix(req.Address, "+")
	isBot := IsAutomatedAgent(req.UserAgent)
	customHost := !strings.EqualFold(req.Host, rs.DefaultHost)

	var domain *model.Domain
	if customHost {
		ctx2, span := rs.Tracer.StartSpan("ResolveDomain", ctx, trace.WithSpanKind(trace.SpanKindClient))
		var err error
		domain, err = rs.Repo.FindDomain(ctx2, req.Host)
		span.End()
		if err != nil {
			return Outcome{}, err
		}
	}

	filter := repo.LinkFilter{Address: address}
	if domain != nil {
		filter.DomainID = &domain.ID
	}

	ctx2, span := rs.Tracer.StartSpan("ResolveLink", ctx, trace.WithSpanKind(trace.SpanKindClient))
	link, err := rs.Repo.FindLink(ctx2, filter)
	span.End()
	if err != nil {
		return Outcome{}, err
	}

	// Expiry is a read-time predicate: an expired link resolves exactly
	// like a missing one.
	if link != nil && link.Expired(rs.now()) {
		link = nil
	}

	if link == nil {
		if customHost && domain != nil && domain.Homepage != "" {
			return Outcome{Kind: OutcomeHomepage, Target: domain.Homepage}, nil
		}
		return Outcome{Kind: OutcomePassThrough}, nil
	}

	if link.Banned {
		return Outcome{Kind: OutcomeBanned, Address: address}, nil
	}

	if wantsInfo && link.Password == "" {
		return Outcome{Kind: OutcomeInfo, Target: link.Target, Address: address}, nil
	}

	if link.Password != "" && req.Password == "" {
		return Outcome{Kind: OutcomeChallenge, Address: address}, nil
	}

	if link.Password != "" {
		if bcrypt.CompareHashAndPassword([]byte(link.Password), []byte(req.Password)) != nil {
			return Outcome{Kind: OutcomeUnauthorized, Address: address}, nil
		}
		rs.record(link, req, isBot)
		return Outcome{Kind: OutcomeTarget, Target: link.Target, Address: address}, nil
	}

	rs.record(link, req, isBot)
	return Outcome{Kind: OutcomeRedirect, Target: link.Target, Address: address}, nil
}

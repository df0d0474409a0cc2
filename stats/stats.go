// Package stats serves pre-aggregated, time-windowed link statistics from
// a cache-aside store to bound recomputation cost.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/lnkr-app/lnkr/model"
	"github.com/lnkr-app/lnkr/repo"
	"github.com/lnkr-app/lnkr/shared"
	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("could not find the short link")
	// ErrUnauthorized stays distinct from ErrNotFound: a wrong owner is
	// never conflated with a missing link.
	ErrUnauthorized = errors.New("you do not have access to this link's stats")
)

const (
	baseTTL = time.Minute
	maxTTL  = 10 * time.Minute

	hoursInDay  = 24
	daysInWeek  = 7
	daysInMonth = 30
	daysInYear  = 365
)

// Cache is the snapshot store. Any Get error counts as a miss: the cache
// is disposable and a lost entry only costs a recompute.
type Cache interface {
	Get(key string) (string, error)
	Set(key string, value interface{}, ttl time.Duration) error
}

type Service struct {
	Repo        repo.Repository
	Cache       Cache
	Logger      *shared.Logger
	DefaultHost string

	nowFn func() time.Time
}

func NewService(r repo.Repository, cache Cache, logger *shared.Logger, defaultHost string) *Service {
	return &Service{Repo: r, Cache: cache, Logger: logger, DefaultHost: defaultHost}
}

func (s *Service) now() time.Time {
	if s.nowFn != nil {
		return s.nowFn()
	}
	return time.Now()
}

// cacheTTL grows with traffic: a busy link's distribution is stable and
// its recomputation is the costly one.
func cacheTTL(visitCount int) time.Duration {
	scaled := time.Duration(visitCount/100) * time.Second
	if scaled < baseTTL {
		return baseTTL
	}
	if scaled > maxTTL {
		return maxTTL
	}
	return scaled
}

func cacheKey(address, domainAddress, identity string) string {
	return address + domainAddress + identity
}

// GetStats returns the snapshot for (address, domain) as seen by the
// requester, computing and caching it on miss.
func (s *Service) GetStats(ctx context.Context, address, domainAddress string, requester *model.User) (*model.StatsSnapshot, error) {
	if requester == nil {
		return nil, ErrUnauthorized
	}

	var domain *model.Domain
	if domainAddress != "" && !strings.EqualFold(domainAddress, s.DefaultHost) {
		var err error
		domain, err = s.Repo.FindDomain(ctx, domainAddress)
		if err != nil {
			return nil, err
		}
		if domain == nil {
			return nil, ErrNotFound
		}
	} else {
		domainAddress = ""
	}

	key := cacheKey(address, domainAddress, requester.Email)
	if cached, err := s.Cache.Get(key); err == nil && cached != "" {
		var snapshot model.StatsSnapshot
		if err := json.Unmarshal([]byte(cached), &snapshot); err == nil {
			return &snapshot, nil
		}
	}

	filter := repo.LinkFilter{Address: address}
	if domain != nil {
		filter.DomainID = &domain.ID
	}
	link, err := s.Repo.FindLink(ctx, filter)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrNotFound
	}

	owned := link.UserID != nil && *link.UserID == requester.ID
	if !owned && !requester.Admin {
		return nil, ErrUnauthorized
	}

	visits, err := s.Repo.FindVisits(ctx, link.ID, time.Time{})
	if err != nil {
		return nil, err
	}

	snapshot := s.aggregate(link, domainAddress, visits)

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	if err := s.Cache.Set(key, string(payload), cacheTTL(link.VisitCount)); err != nil {
		s.Logger.Warn("StatsCacheSetFailed", zap.String("key", key), zap.Error(err))
	}

	return snapshot, nil
}

func newBreakdowns() model.StatsBreakdowns {
	return model.StatsBreakdowns{
		Referrer: map[string]int{},
		Browser:  map[string]int{},
		OS:       map[string]int{},
		Country:  map[string]int{},
	}
}

func newPeriod(buckets int) model.StatsPeriod {
	return model.StatsPeriod{
		Views: make([]int, buckets),
		Stats: newBreakdowns(),
	}
}

func addToPeriod(p *model.StatsPeriod, v model.Visit, bucket int) {
	if bucket >= 0 && bucket < len(p.Views) {
		p.Views[bucket]++
	}
	p.Stats.Referrer[v.Referrer]++
	p.Stats.Browser[v.Browser]++
	p.Stats.OS[v.OS]++
	p.Stats.Country[v.Country]++
}

// aggregate folds the visit rows into the four fixed windows. Series are
// ordered oldest bucket first.
func (s *Service) aggregate(link *model.Link, domainAddress string, visits []model.Visit) *model.StatsSnapshot {
	now := s.now()

	snapshot := &model.StatsSnapshot{
		Address:   link.Address,
		Domain:    domainAddress,
		Target:    link.Target,
		Total:     link.VisitCount,
		Banned:    link.Banned,
		UpdatedAt: now,
		LastDay:   newPeriod(hoursInDay),
		LastWeek:  newPeriod(daysInWeek),
		LastMonth: newPeriod(daysInMonth),
		AllTime:   newPeriod(daysInYear),
	}

	for _, v := range visits {
		age := now.Sub(v.CreatedAt)
		if age < 0 {
			age = 0
		}

		hoursAgo := int(age.Hours())
		daysAgo := int(age.Hours() / 24)

		if hoursAgo < hoursInDay {
			addToPeriod(&snapshot.LastDay, v, hoursInDay-1-hoursAgo)
		}
		if daysAgo < daysInWeek {
			addToPeriod(&snapshot.LastWeek, v, daysInWeek-1-daysAgo)
		}
		if daysAgo < daysInMonth {
			addToPeriod(&snapshot.LastMonth, v, daysInMonth-1-daysAgo)
		}
		addToPeriod(&snapshot.AllTime, v, daysInYear-1-daysAgo)
	}

	return snapshot
}

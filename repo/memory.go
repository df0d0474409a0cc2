package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lnkr-app/lnkr/model"
)

// MemRepo is an in-memory Repository used by tests. It mirrors the SQL
// layer's semantics, including the atomic uniqueness guard in CreateLink.
type MemRepo struct {
	mu      sync.Mutex
	nextID  uint
	Links   []*model.Link
	Domains []*model.Domain
	Hosts   []*model.Host
	Users   []*model.User
	Visits  []*model.Visit
	IPs     []*model.IP
}

func NewMemRepo() *MemRepo {
	return &MemRepo{nextID: 1}
}

func (r *MemRepo) id() uint {
	id := r.nextID
	r.nextID++
	return id
}

func sameScope(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *MemRepo) findLinkLocked(filter LinkFilter) *model.Link {
	for _, l := range r.Links {
		if filter.Address != "" && l.Address != filter.Address {
			continue
		}
		if filter.Target != "" && l.Target != filter.Target {
			continue
		}
		if filter.UserID != nil && (l.UserID == nil || *l.UserID != *filter.UserID) {
			continue
		}
		if !filter.AnyDomain && !sameScope(l.DomainID, filter.DomainID) {
			continue
		}
		cp := *l
		return &cp
	}
	return nil
}

func (r *MemRepo) FindLink(_ context.Context, filter LinkFilter) (*model.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLinkLocked(filter), nil
}

func (r *MemRepo) CreateLink(_ context.Context, link *model.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.Links {
		if l.Address == link.Address && sameScope(l.DomainID, link.DomainID) {
			return ErrDuplicateAddress
		}
	}
	link.ID = r.id()
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	cp := *link
	r.Links = append(r.Links, &cp)
	return nil
}

func (r *MemRepo) IncrementVisitCount(_ context.Context, linkID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.Links {
		if l.ID == linkID {
			l.VisitCount++
			return nil
		}
	}
	return nil
}

func (r *MemRepo) DeleteLink(_ context.Context, address string, domainID *uint, userID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range r.Links {
		if l.Address == address && sameScope(l.DomainID, domainID) &&
			l.UserID != nil && *l.UserID == userID {
			r.Links = append(r.Links[:i], r.Links[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *MemRepo) ListUserLinks(_ context.Context, userID uint, limit, offset int) ([]model.Link, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var owned []model.Link
	for _, l := range r.Links {
		if l.UserID != nil && *l.UserID == userID {
			owned = append(owned, *l)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	total := int64(len(owned))
	if offset >= len(owned) {
		return nil, total, nil
	}
	owned = owned[offset:]
	if limit > 0 && limit < len(owned) {
		owned = owned[:limit]
	}
	return owned, total, nil
}

func (r *MemRepo) CountUserLinksSince(_ context.Context, userID uint, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, l := range r.Links {
		if l.UserID != nil && *l.UserID == userID && l.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (r *MemRepo) BanLink(_ context.Context, opts BanOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.Links {
		if l.Address == opts.Address && l.DomainID == nil {
			l.Banned = true
		}
	}
	if opts.HostIP != "" {
		found := false
		for _, h := range r.Hosts {
			if h.Address == opts.HostIP {
				h.Banned = true
				found = true
			}
		}
		if !found {
			r.Hosts = append(r.Hosts, &model.Host{ID: r.id(), Address: opts.HostIP, Banned: true})
		}
	}
	if opts.Domain != "" {
		found := false
		for _, d := range r.Domains {
			if d.Address == opts.Domain {
				d.Banned = true
				found = true
			}
		}
		if !found {
			r.Domains = append(r.Domains, &model.Domain{ID: r.id(), Address: opts.Domain, Banned: true})
		}
	}
	if opts.UserID != nil {
		for _, u := range r.Users {
			if u.ID == *opts.UserID {
				u.Banned = true
			}
		}
	}
	return nil
}

func (r *MemRepo) FindDomain(_ context.Context, address string) (*model.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.Domains {
		if d.Address == address {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemRepo) FindDomainByID(_ context.Context, id uint) (*model.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.Domains {
		if d.ID == id {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemRepo) FindHost(_ context.Context, ipAddress string) (*model.Host, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.Hosts {
		if h.Address == ipAddress {
			cp := *h
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemRepo) RecordVisit(_ context.Context, visit *model.Visit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	visit.ID = r.id()
	if visit.CreatedAt.IsZero() {
		visit.CreatedAt = time.Now()
	}
	cp := *visit
	r.Visits = append(r.Visits, &cp)
	return nil
}

func (r *MemRepo) FindVisits(_ context.Context, linkID uint, since time.Time) ([]model.Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var visits []model.Visit
	for _, v := range r.Visits {
		if v.LinkID == linkID && (since.IsZero() || v.CreatedAt.After(since)) {
			visits = append(visits, *v)
		}
	}
	sort.Slice(visits, func(i, j int) bool {
		return visits[i].CreatedAt.Before(visits[j].CreatedAt)
	})
	return visits, nil
}

func (r *MemRepo) FindUserByAPIKey(_ context.Context, key string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.Users {
		if u.APIKey == key {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemRepo) AddUserCooldown(_ context.Context, userID uint, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.Users {
		if u.ID == userID {
			u.CooldownCount++
			t := at
			u.LastCooldown = &t
			return u.CooldownCount, nil
		}
	}
	return 0, nil
}

func (r *MemRepo) BanUser(_ context.Context, userID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.Users {
		if u.ID == userID {
			u.Banned = true
		}
	}
	return nil
}

func (r *MemRepo) RecordIP(_ context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.IPs = append(r.IPs, &model.IP{ID: r.id(), Address: address, CreatedAt: time.Now()})
	return nil
}

func (r *MemRepo) HasRecentIP(_ context.Context, address string, since time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ip := range r.IPs {
		if ip.Address == address && ip.CreatedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

// AddUser seeds a user and returns it. Test helper.
func (r *MemRepo) AddUser(user model.User) *model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == 0 {
		user.ID = r.id()
	}
	cp := user
	r.Users = append(r.Users, &cp)
	return &cp
}

// AddDomain seeds a domain and returns it. Test helper.
func (r *MemRepo) AddDomain(domain model.Domain) *model.Domain {
	r.mu.Lock()
	defer r.mu.Unlock()
	if domain.ID == 0 {
		domain.ID = r.id()
	}
	cp := domain
	r.Domains = append(r.Domains, &cp)
	return &cp
}

// AddHost seeds a host record. Test helper.
func (r *MemRepo) AddHost(host model.Host) *model.Host {
	r.mu.Lock()
	defer r.mu.Unlock()
	if host.ID == 0 {
		host.ID = r.id()
	}
	cp := host
	r.Hosts = append(r.Hosts, &cp)
	return &cp
}

package repo

import (
	"context"
	"errors"
	"time"

	"github.com/lnkr-app/lnkr/model"
)

// ErrDuplicateAddress is returned by CreateLink when the (address, domain)
// pair already exists. The storage constraint is the authoritative guard
// against concurrent admissions racing for the same address.
var ErrDuplicateAddress = errors.New("address already exists")

// LinkFilter selects links. Zero-value string/pointer fields are ignored,
// except DomainID: unless AnyDomain is set, the domain scope is matched
// exactly and a nil DomainID means the default-domain scope.
type LinkFilter struct {
	Address   string
	Target    string
	UserID    *uint
	DomainID  *uint
	AnyDomain bool
}

// BanOptions drive the moderation path. Host, Domain and User cascade the
// ban onto the resolved IP, the target's domain record and the owner.
type BanOptions struct {
	Address  string
	HostIP   string
	Domain   string
	UserID   *uint
	BannedBy uint
}

type Repository interface {
	FindLink(ctx context.Context, filter LinkFilter) (*model.Link, error)
	CreateLink(ctx context.Context, link *model.Link) error
	// IncrementVisitCount adds one to the link's aggregate counter
	// atomically at the storage layer.
	IncrementVisitCount(ctx context.Context, linkID uint) error
	DeleteLink(ctx context.Context, address string, domainID *uint, userID uint) (bool, error)
	ListUserLinks(ctx context.Context, userID uint, limit, offset int) ([]model.Link, int64, error)
	CountUserLinksSince(ctx context.Context, userID uint, since time.Time) (int64, error)
	BanLink(ctx context.Context, opts BanOptions) error

	FindDomain(ctx context.Context, address string) (*model.Domain, error)
	FindDomainByID(ctx context.Context, id uint) (*model.Domain, error)
	FindHost(ctx context.Context, ipAddress string) (*model.Host, error)

	RecordVisit(ctx context.Context, visit *model.Visit) error
	FindVisits(ctx context.Context, linkID uint, since time.Time) ([]model.Visit, error)

	FindUserByAPIKey(ctx context.Context, key string) (*model.User, error)
	// AddUserCooldown appends a malware cooldown and returns the new
	// cumulative count.
	AddUserCooldown(ctx context.Context, userID uint, at time.Time) (int, error)
	BanUser(ctx context.Context, userID uint) error

	RecordIP(ctx context.Context, address string) error
	HasRecentIP(ctx context.Context, address string, since time.Time) (bool, error)
}

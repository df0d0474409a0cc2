package admission

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/lnkr-app/lnkr/model"
	str2duration "github.com/xhit/go-str2duration/v2"
)

const (
	maxTargetLength   = 2040
	minExpiry         = time.Minute
	minPasswordLength = 3
	maxPasswordLength = 64
	maxCustomLength   = 64
)

// reservedAddresses can never be claimed as custom addresses because they
// collide with the platform's own routes.
var reservedAddresses = []string{
	"login", "logout", "signup", "reset-password", "resetpassword",
	"url-password", "url-info", "settings", "stats", "verify", "api",
	"404", "static", "images", "banned", "terms", "privacy", "protected",
	"report", "pricing", "links", "metrics",
}

var customAddressPattern = regexp.MustCompile(`^[a-zA-Z0-9-_]+$`)

// CreateRequest is the typed admission input.
type CreateRequest struct {
	Target      string `json:"target"`
	Password    string `json:"password"`
	CustomURL   string `json:"customurl"`
	Reuse       bool   `json:"reuse"`
	ExpireIn    string `json:"expire_in"`
	Domain      string `json:"domain"`
	Description string `json:"description"`
}

// validated holds the normalized admission input after every field check
// has passed.
type validated struct {
	target      string
	targetHost  string
	password    string
	customURL   string
	reuse       bool
	expiresAt   *time.Time
	domain      *model.Domain
	description string
}

// AddProtocol prepends http:// when the target carries no scheme.
func AddProtocol(target string) string {
	if !strings.Contains(target, "://") {
		return "http://" + target
	}
	return target
}

func (p *Pipeline) validateTarget(v *validated, target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("%w: target is missing", ErrInvalidTarget)
	}
	if len(target) > maxTargetLength {
		return fmt.Errorf("%w: maximum URL length is %d", ErrInvalidTarget, maxTargetLength)
	}

	target = AddProtocol(target)
	parsed, err := url.Parse(target)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ErrInvalidTarget
	}
	if strings.EqualFold(parsed.Host, p.DefaultHost) {
		return fmt.Errorf("%w: %s URLs are not allowed", ErrInvalidTarget, p.DefaultHost)
	}

	v.target = target
	v.targetHost = parsed.Hostname()
	return nil
}

func (p *Pipeline) validatePassword(v *validated, password string, actor *model.User) error {
	if password == "" {
		return nil
	}
	if actor == nil {
		return ErrRegisteredOnly
	}
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return ErrInvalidPassword
	}
	v.password = password
	return nil
}

func (p *Pipeline) validateCustomURL(v *validated, custom string, actor *model.User) error {
	custom = strings.TrimSpace(custom)
	if custom == "" {
		return nil
	}
	if actor == nil {
		return ErrRegisteredOnly
	}
	if len(custom) > maxCustomLength {
		return fmt.Errorf("%w: length must be between 1 and %d", ErrInvalidCustom, maxCustomLength)
	}
	if !customAddressPattern.MatchString(custom) {
		return ErrInvalidCustom
	}
	lowered := strings.ToLower(custom)
	for _, reserved := range reservedAddresses {
		if reserved == lowered {
			return fmt.Errorf("%w: this address is reserved", ErrInvalidCustom)
		}
	}
	v.customURL = custom
	return nil
}

func (p *Pipeline) validateReuse(v *validated, reuse bool, actor *model.User) error {
	if !reuse {
		return nil
	}
	if actor == nil {
		return ErrRegisteredOnly
	}
	v.reuse = true
	return nil
}

func (p *Pipeline) validateExpiry(v *validated, expireIn string) error {
	expireIn = strings.TrimSpace(expireIn)
	if expireIn == "" {
		return nil
	}
	d, err := str2duration.ParseDuration(expireIn)
	if err != nil {
		return ErrInvalidExpiry
	}
	if d < minExpiry {
		return fmt.Errorf("%w: minimum expiry is 1 minute", ErrInvalidExpiry)
	}
	at := p.now().Add(d)
	v.expiresAt = &at
	return nil
}

func (p *Pipeline) validateDomain(ctx context.Context, v *validated, domain string, actor *model.User) error {
	domain = strings.TrimSpace(strings.ToLower(domain))
	if domain == "" {
		return nil
	}
	if actor == nil {
		return ErrRegisteredOnly
	}
	if parsed, err := url.Parse(AddProtocol(domain)); err == nil && parsed.Hostname() != "" {
		domain = parsed.Hostname()
	}
	// The default domain is the default scope, not a custom Domain record.
	if strings.EqualFold(domain, p.DefaultHost) {
		return nil
	}

	record, err := p.Repo.FindDomain(ctx, domain)
	if err != nil {
		return err
	}
	if record == nil || record.UserID == nil || *record.UserID != actor.ID {
		return ErrDomainNotOwned
	}
	v.domain = record
	return nil
}

// validate runs the ordered field pipeline, short-circuiting on the first
// blocking failure.
func (p *Pipeline) validate(ctx context.Context, req CreateRequest, actor *model.User) (*validated, error) {
	v := &validated{description: strings.TrimSpace(req.Description)}

	if err := p.validateTarget(v, req.Target); err != nil {
		return nil, err
	}
	if err := p.validatePassword(v, req.Password, actor); err != nil {
		return nil, err
	}
	if err := p.validateCustomURL(v, req.CustomURL, actor); err != nil {
		return nil, err
	}
	if err := p.validateReuse(v, req.Reuse, actor); err != nil {
		return nil, err
	}
	if err := p.validateExpiry(v, req.ExpireIn); err != nil {
		return nil, err
	}
	if err := p.validateDomain(ctx, v, req.Domain, actor); err != nil {
		return nil, err
	}

	return v, nil
}

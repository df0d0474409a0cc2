package model

import "time"

type User struct {
	ID            uint       `gorm:"primaryKey,autoIncrement" json:"id"`
	Email         string     `gorm:"uniqueIndex" json:"email"`
	APIKey        string     `gorm:"index" json:"-"`
	Admin         bool       `json:"admin"`
	Banned        bool       `json:"banned"`
	CooldownCount int        `json:"-"`
	LastCooldown  *time.Time `json:"-"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// Link maps a short address to a target URL. Address is unique within its
// domain scope; a null DomainID means the default-domain scope.
type Link struct {
	ID          uint       `gorm:"primaryKey,autoIncrement" json:"id"`
	Address     string     `gorm:"index:idx_address_domain,unique" json:"address"`
	Target      string     `json:"target"`
	Description string     `json:"description,omitempty"`
	DomainID    *uint      `gorm:"index:idx_address_domain,unique" json:"domain_id,omitempty"`
	UserID      *uint      `gorm:"index" json:"user_id,omitempty"`
	Password    string     `json:"-"`
	Banned      bool       `json:"banned"`
	VisitCount  int        `json:"visit_count"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// Expired reports whether the link is past its expiry at the given instant.
func (l *Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// Domain is a custom hostname a user may bind links to. The platform's own
// default domain is never stored as a Domain record.
type Domain struct {
	ID        uint      `gorm:"primaryKey,autoIncrement" json:"id"`
	Address   string    `gorm:"uniqueIndex" json:"address"`
	UserID    *uint     `gorm:"index" json:"user_id,omitempty"`
	Homepage  string    `json:"homepage,omitempty"`
	Banned    bool      `json:"banned"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Host is a resolved IP address remembered by the moderation path.
type Host struct {
	ID      uint   `gorm:"primaryKey,autoIncrement" json:"id"`
	Address string `gorm:"uniqueIndex" json:"address"`
	Banned  bool   `json:"banned"`
}

// Visit is an append-only record of one redirect, with classified metadata.
type Visit struct {
	ID        uint      `gorm:"primaryKey,autoIncrement" json:"id"`
	LinkID    uint      `gorm:"index" json:"link_id"`
	Browser   string    `json:"browser"`
	OS        string    `json:"os"`
	Country   string    `json:"country"`
	Referrer  string    `json:"referrer"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// IP records an anonymous creation against its source address, for the
// non-user cooldown policy.
type IP struct {
	ID        uint      `gorm:"primaryKey,autoIncrement" json:"id"`
	Address   string    `gorm:"index" json:"address"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

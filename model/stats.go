package model

import "time"

// Browser buckets a visit's client is classified into.
const (
	BrowserIE      = "ie"
	BrowserFirefox = "firefox"
	BrowserChrome  = "chrome"
	BrowserOpera   = "opera"
	BrowserSafari  = "safari"
	BrowserEdge    = "edge"
	BrowserOther   = "other"
)

// OS buckets a visit's client is classified into.
const (
	OSWindows = "windows"
	OSMacOS   = "macos"
	OSLinux   = "linux"
	OSAndroid = "android"
	OSIOS     = "ios"
	OSOther   = "other"
)

const (
	CountryUnknown = "Unknown"
	ReferrerDirect = "Direct"
)

type StatsBreakdowns struct {
	Referrer map[string]int `json:"referrer"`
	Browser  map[string]int `json:"browser"`
	OS       map[string]int `json:"os"`
	Country  map[string]int `json:"country"`
}

// StatsPeriod is one time window: a fixed-length bucketed view series plus
// categorical breakdowns.
type StatsPeriod struct {
	Views []int           `json:"views"`
	Stats StatsBreakdowns `json:"stats"`
}

// StatsSnapshot is the cached, time-windowed aggregation served to a link's
// owner. Entirely disposable: losing it only costs a recompute.
type StatsSnapshot struct {
	Address   string      `json:"address"`
	Domain    string      `json:"domain,omitempty"`
	Target    string      `json:"target"`
	Total     int         `json:"total"`
	Banned    bool        `json:"banned"`
	UpdatedAt time.Time   `json:"updated_at"`
	LastDay   StatsPeriod `json:"lastDay"`
	LastWeek  StatsPeriod `json:"lastWeek"`
	LastMonth StatsPeriod `json:"lastMonth"`
	AllTime   StatsPeriod `json:"allTime"`
}

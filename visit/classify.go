package visit

import (
	"net/url"
	"strings"

	"github.com/lnkr-app/lnkr/model"
	"github.com/mileusna/useragent"
)

// Ordered classification lists: the first bucket whose needle appears in
// the parsed agent family wins.
var browserBuckets = []struct {
	needle string
	bucket string
}{
	{"ie", model.BrowserIE},
	{"firefox", model.BrowserFirefox},
	{"chrome", model.BrowserChrome},
	{"opera", model.BrowserOpera},
	{"safari", model.BrowserSafari},
	{"edge", model.BrowserEdge},
}

var osBuckets = []struct {
	needle string
	bucket string
}{
	{"windows", model.OSWindows},
	{"mac", model.OSMacOS},
	{"linux", model.OSLinux},
	{"android", model.OSAndroid},
	{"ios", model.OSIOS},
}

// ClassifyAgent buckets the declared client identity string into the fixed
// browser and OS enums by case-insensitive substring match against the
// parsed agent family.
func ClassifyAgent(agent string) (browser string, os string) {
	ua := useragent.Parse(agent)

	browser = model.BrowserOther
	family := strings.ToLower(ua.Name)
	for _, b := range browserBuckets {
		if strings.Contains(family, b.needle) {
			browser = b.bucket
			break
		}
	}

	os = model.OSOther
	osFamily := strings.ToLower(ua.OS)
	for _, o := range osBuckets {
		if strings.Contains(osFamily, o.needle) {
			os = o.bucket
			break
		}
	}

	return browser, os
}

// ClassifyReferrer extracts the referrer hostname with literal dots
// replaced by a display-safe token, defaulting to Direct when absent.
func ClassifyReferrer(referrer string) string {
	if referrer == "" {
		return model.ReferrerDirect
	}
	parsed, err := url.Parse(referrer)
	if err != nil || parsed.Hostname() == "" {
		return model.ReferrerDirect
	}
	return strings.ReplaceAll(parsed.Hostname(), ".", "[dot]")
}

type Classifier struct {
	Geo GeoLocator
}

func NewClassifier(geo GeoLocator) *Classifier {
	if geo == nil {
		geo = NoopLocator{}
	}
	return &Classifier{Geo: geo}
}

// Classify turns a raw event into a Visit row's categorical fields.
func (c *Classifier) Classify(e Event) model.Visit {
	browser, os := ClassifyAgent(e.UserAgent)

	country := c.Geo.CountryCode(e.IP)
	if country == "" {
		country = model.CountryUnknown
	}

	return model.Visit{
		LinkID:    e.LinkID,
		Browser:   browser,
		OS:        os,
		Country:   country,
		Referrer:  ClassifyReferrer(e.Referrer),
		CreatedAt: e.At,
	}
}

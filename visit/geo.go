package visit

import (
	"net"

	"github.com/oschwald/geoip2-golang"
)

// GeoLocator resolves a source IP to an ISO country code. Empty string
// means unresolvable.
type GeoLocator interface {
	CountryCode(ip string) string
}

// NoopLocator is used when no GeoIP database is configured.
type NoopLocator struct{}

func (NoopLocator) CountryCode(string) string { return "" }

// MaxmindLocator reads country codes from a MaxMind MMDB file.
type MaxmindLocator struct {
	reader *geoip2.Reader
}

func OpenMaxmindLocator(path string) (*MaxmindLocator, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &MaxmindLocator{reader: reader}, nil
}

func (m *MaxmindLocator) CountryCode(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	record, err := m.reader.Country(parsed)
	if err != nil {
		return ""
	}
	return record.Country.IsoCode
}

func (m *MaxmindLocator) Close() error {
	return m.reader.Close()
}

// Package enrichment adds optional context to outbound reports. It is
// best-effort: a missing database or an unresolvable address never blocks
// the pipeline.
package enrichment

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
	"github.com/pterm/pterm"
)

// Location is the geographic context attached to a report when the
// forwarded client address resolves.
type Location struct {
	CountryCode string
	Country     string
	City        string
}

// GeoIPEnricher resolves client addresses against a local GeoLite2 City
// database. A nil *GeoIPEnricher is valid and resolves nothing, so callers
// do not need to branch on whether GeoIP is configured.
type GeoIPEnricher struct {
	reader *geoip2.Reader
	logger *pterm.Logger
}

// NewGeoIPEnricher opens the City database at dbPath.
func NewGeoIPEnricher(dbPath string, logger *pterm.Logger) (*GeoIPEnricher, error) {
	reader, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	logger.Info("GeoIP enrichment enabled", logger.Args("db", dbPath))
	return &GeoIPEnricher{reader: reader, logger: logger}, nil
}

// Lookup resolves one client address. The boolean is false when enrichment
// is disabled, the address is malformed, or the database has no record.
func (g *GeoIPEnricher) Lookup(address string) (Location, bool) {
	if g == nil || g.reader == nil || address == "" {
		return Location{}, false
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return Location{}, false
	}

	record, err := g.reader.City(ip)
	if err != nil {
		g.logger.Trace("GeoIP lookup failed", g.logger.Args("address", address, "error", err))
		return Location{}, false
	}
	if record.Country.IsoCode == "" {
		return Location{}, false
	}

	return Location{
		CountryCode: record.Country.IsoCode,
		Country:     record.Country.Names["en"],
		City:        record.City.Names["en"],
	}, true
}

// Close releases the database handle. Safe on a nil enricher.
func (g *GeoIPEnricher) Close() {
	if g != nil && g.reader != nil {
		g.reader.Close()
	}
}

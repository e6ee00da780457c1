// Package normalize holds the timezone and currency conversion helpers shared
// by every source adapter. All dates leave this package as naive UTC.
//
// Source timezones:
//   - GCSurplus (Canada): Eastern Time
//   - GSA (US): varies with the property's location
//   - Treasury (US): Eastern Time
//   - State Dept: timestamps already carry a UTC marker
package normalize

import (
	"strings"
	"time"

	_ "time/tzdata"
)

var (
	Eastern  = mustLoadLocation("America/New_York")
	Central  = mustLoadLocation("America/Chicago")
	Mountain = mustLoadLocation("America/Denver")
	Pacific  = mustLoadLocation("America/Los_Angeles")
	Alaska   = mustLoadLocation("America/Anchorage")
	Hawaii   = mustLoadLocation("Pacific/Honolulu")
)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// stateZones maps two-letter US state/territory codes to their primary zone.
// States that straddle a boundary are assigned the zone of the bulk of their
// population (matching how the auction sites present local times).
var stateZones = map[string]*time.Location{
	// Eastern
	"CT": Eastern, "DE": Eastern, "FL": Eastern, "GA": Eastern, "IN": Eastern,
	"KY": Eastern, "ME": Eastern, "MD": Eastern, "MA": Eastern, "MI": Eastern,
	"NH": Eastern, "NJ": Eastern, "NY": Eastern, "NC": Eastern, "OH": Eastern,
	"PA": Eastern, "RI": Eastern, "SC": Eastern, "VT": Eastern, "VA": Eastern,
	"WV": Eastern, "DC": Eastern,

	// Central
	"AL": Central, "AR": Central, "IL": Central, "IA": Central, "KS": Central,
	"LA": Central, "MN": Central, "MS": Central, "MO": Central, "NE": Central,
	"ND": Central, "OK": Central, "SD": Central, "TN": Central, "TX": Central,
	"WI": Central,

	// Mountain
	"AZ": Mountain, "CO": Mountain, "ID": Mountain, "MT": Mountain,
	"NM": Mountain, "UT": Mountain, "WY": Mountain,

	// Pacific
	"CA": Pacific, "NV": Pacific, "OR": Pacific, "WA": Pacific,

	"AK": Alaska,
	"HI": Hawaii,

	// Territories
	"PR": mustLoadLocation("America/Puerto_Rico"),
	"VI": mustLoadLocation("America/St_Thomas"),
	"GU": mustLoadLocation("Pacific/Guam"),
	"MP": mustLoadLocation("Pacific/Saipan"),
	"AS": mustLoadLocation("Pacific/Pago_Pago"),
}

// zoneAbbrevs maps timezone abbreviations as rendered on auction detail pages
// to IANA zones. DST variants map to the same zone; the zone's own rules pick
// the correct offset for the date being converted.
var zoneAbbrevs = map[string]*time.Location{
	"ET": Eastern, "EST": Eastern, "EDT": Eastern,
	"CT": Central, "CST": Central, "CDT": Central,
	"MT": Mountain, "MST": Mountain, "MDT": Mountain,
	"PT": Pacific, "PST": Pacific, "PDT": Pacific,
	"AKT": Alaska, "AKST": Alaska, "AKDT": Alaska,
	"HT": Hawaii, "HST": Hawaii, "HAST": Hawaii,
	"UTC": time.UTC, "GMT": time.UTC, "Z": time.UTC,
}

// ZoneForState returns the timezone for a two-letter US state code,
// defaulting to Eastern when the code is unknown.
func ZoneForState(code string) *time.Location {
	if loc, ok := stateZones[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return loc
	}
	return Eastern
}

// ZoneForAbbrev resolves a timezone abbreviation (e.g. "EDT", "PT").
func ZoneForAbbrev(abbrev string) (*time.Location, bool) {
	loc, ok := zoneAbbrevs[strings.ToUpper(strings.TrimSpace(abbrev))]
	return loc, ok
}

// ToUTC reinterprets a naive local datetime in the given zone and converts it
// to naive UTC.
func ToUTC(dt time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = Eastern
	}
	local := time.Date(dt.Year(), dt.Month(), dt.Day(), dt.Hour(), dt.Minute(), dt.Second(), dt.Nanosecond(), loc)
	return local.UTC()
}

// EndOfDay anchors a date-only value to 23:59:59. Ambiguous day-only closing
// dates must err toward "still open" rather than prematurely expired.
func EndOfDay(dt time.Time) time.Time {
	return time.Date(dt.Year(), dt.Month(), dt.Day(), 23, 59, 59, 0, dt.Location())
}

// ParseInZone tries each layout in order against the raw string, anchoring
// date-only layouts to end of day, and returns the result as naive UTC.
func ParseInZone(raw string, layouts []string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		dt, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if !strings.Contains(layout, "15") {
			dt = EndOfDay(dt)
		}
		return ToUTC(dt, loc), true
	}
	return time.Time{}, false
}

// ParseEasternDate parses the date formats used by GCSurplus and similar
// Eastern-time listings.
func ParseEasternDate(raw string) (time.Time, bool) {
	return ParseInZone(raw, []string{
		"2006-01-02 15:04:05",
		"2006-01-02",
		"02/01/2006",
		"01/02/2006",
	}, Eastern)
}

// ParseTreasuryDate parses Treasury listing dates such as
// "Friday, January 30, 2026" (with or without the weekday prefix).
func ParseTreasuryDate(raw string) (time.Time, bool) {
	return ParseInZone(raw, []string{
		"Monday, January 2, 2006",
		"January 2, 2006",
	}, Eastern)
}

// ParseLocationDate parses a timestamp whose zone must be inferred from the
// property's US state. ISO strings carrying their own offset win outright.
func ParseLocationDate(raw string, stateCode string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if strings.Contains(raw, "T") {
		if dt, err := time.Parse(time.RFC3339, raw); err == nil {
			return dt.UTC(), true
		}
		if dt, err := time.Parse("2006-01-02T15:04:05", raw); err == nil {
			return ToUTC(dt, ZoneForState(stateCode)), true
		}
	}
	return ParseInZone(raw, []string{
		"2006-01-02 15:04:05",
		"2006-01-02",
		"01/02/2006",
	}, ZoneForState(stateCode))
}

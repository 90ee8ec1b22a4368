// Package fields extracts values from loosely-typed backend records.
//
// The backend has historically spelled the same concept several ways (for
// example the written exam fee). Each concept is described by an ordered
// Candidates list; lookups try the names in order and take the first present
// value.
package fields

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Record is one decoded JSON object.
type Record = map[string]any

// Candidates is an ordered list of field names that may carry the same value.
type Candidates []string

// Number converts v to a float64. JSON numbers are accepted as-is; strings are
// stripped of everything but digits, '.' and '-' before parsing, so "15,000원"
// yields 15000. Anything else, including strings with no digits, is absent.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case float32:
		if math.IsNaN(float64(n)) {
			return 0, false
		}
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		return parseCleaned(string(n))
	case string:
		return parseCleaned(n)
	}
	return 0, false
}

func parseCleaned(s string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	if cleaned == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// NumberPtr is Number returning nil when absent.
func NumberPtr(v any) *float64 {
	f, ok := Number(v)
	if !ok {
		return nil
	}
	return &f
}

// FirstPresent returns the value of the first candidate whose key exists with a
// non-null value. Present-but-unparseable values still win; this mirrors the
// backend contract where the preferred spelling, when sent, is authoritative.
func (c Candidates) FirstPresent(rec Record) (any, bool) {
	for _, key := range c {
		if v, ok := rec[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// FirstNumber returns the first candidate that parses as a number.
func (c Candidates) FirstNumber(rec Record) (float64, bool) {
	for _, key := range c {
		if f, ok := Number(rec[key]); ok {
			return f, true
		}
	}
	return 0, false
}

// FirstString returns the first candidate holding a non-empty string.
func (c Candidates) FirstString(rec Record) (string, bool) {
	for _, key := range c {
		if s := String(rec[key]); s != "" {
			return s, true
		}
	}
	return "", false
}

// String returns v when it is a string, "" otherwise.
func String(v any) string {
	s, _ := v.(string)
	return s
}

// Schema holds the candidate lists for every concept the catalog extracts.
type Schema struct {
	WrittenFee   Candidates `yaml:"written_fee"`
	PracticalFee Candidates `yaml:"practical_fee"`
	Lat          Candidates `yaml:"lat"`
	Lon          Candidates `yaml:"lon"`
	SiteName     Candidates `yaml:"site_name"`
	SiteAddress  Candidates `yaml:"site_address"`
}

// DefaultSchema returns the field spellings the backend is known to send.
func DefaultSchema() Schema {
	return Schema{
		WrittenFee:   Candidates{"docExamFee", "writtenFee", "docfee", "exprnFee", "docExamfee"},
		PracticalFee: Candidates{"pracExamFee", "practicalFee", "prcExamFee", "prcExamfee"},
		Lat:          Candidates{"lat", "latitude", "latd", "plceLoctGid"},
		Lon:          Candidates{"lon", "longitude", "lond"},
		SiteName:     Candidates{"siteNm", "examAreaNm", "examAreaGbNm", "brchNm", "name", "facNm"},
		SiteAddress:  Candidates{"address", "addr", "streetAddress", "examAreaNm"},
	}
}

// WithDefaults fills empty lists from DefaultSchema.
func (s Schema) WithDefaults() Schema {
	d := DefaultSchema()
	if len(s.WrittenFee) == 0 {
		s.WrittenFee = d.WrittenFee
	}
	if len(s.PracticalFee) == 0 {
		s.PracticalFee = d.PracticalFee
	}
	if len(s.Lat) == 0 {
		s.Lat = d.Lat
	}
	if len(s.Lon) == 0 {
		s.Lon = d.Lon
	}
	if len(s.SiteName) == 0 {
		s.SiteName = d.SiteName
	}
	if len(s.SiteAddress) == 0 {
		s.SiteAddress = d.SiteAddress
	}
	return s
}

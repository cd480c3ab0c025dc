package domain

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrMissingIdentity marks a record that cannot be keyed: after parsing it has
// no station code or no observation date. Such records are dropped, never
// partially stored.
var ErrMissingIdentity = errors.New("record has no station id or observation date")

var (
	dateLayouts = []string{"2006-01-02", "01/02/2006"}

	// The third layout is the compact form used by the CDEC telemetry feed,
	// e.g. "20220102 0000".
	dateTimeLayouts = []string{"2006-01-02 15:04:05", "01/02/2006 15:04:05", "20060102 1504"}

	// missingSentinels are upstream spellings of "no reading".
	missingSentinels = []string{"na", "n/a", "unavailable"}
)

// Normalize converts one raw row, keyed by CSV header name, into a canonical
// RawObservation. It is pure and total: every field degrades independently
// (malformed value or date columns become nil/zero), and the only rejection is
// ErrMissingIdentity when neither identity field survives parsing.
//
// Header names may use the CSV spelling ("OBS DATE", "DATE TIME") or the
// transport spelling ("OBS_DATE", "DATE_TIME").
//
// ObsDateTime keeps only the date component of the parsed timestamp,
// normalized to midnight UTC; the upstream time-of-day is not trustworthy.
func Normalize(row map[string]string) (RawObservation, error) {
	obs := RawObservation{
		StationID:    field(row, "STATION_ID"),
		DurationCode: field(row, "DURATION"),
		SensorNumber: field(row, "SENSOR_NUMBER"),
		SensorType:   field(row, "SENSOR_TYPE"),
		Units:        field(row, "UNITS"),
		DataFlag:     field(row, "DATA_FLAG"),
	}

	obs.Value = parseValue(field(row, "VALUE"))
	obs.ObsDate = parseDate(field(row, "OBS DATE"))
	obs.ObsDateTime = parseDateTime(field(row, "DATE TIME"))

	// A record whose OBS DATE column failed to parse can still be keyed by
	// the date component of its telemetry timestamp.
	if obs.ObsDate.IsZero() && obs.ObsDateTime != nil {
		obs.ObsDate = *obs.ObsDateTime
	}

	if obs.StationID == "" || obs.ObsDate.IsZero() {
		return RawObservation{}, ErrMissingIdentity
	}
	return obs, nil
}

// field looks up a trimmed column value, trying the underscore spelling when
// the header contains a space. Empty after trim means absent.
func field(row map[string]string, key string) string {
	if v, ok := row[key]; ok {
		return strings.TrimSpace(v)
	}
	if alt := strings.ReplaceAll(key, " ", "_"); alt != key {
		return strings.TrimSpace(row[alt])
	}
	return ""
}

// parseValue coerces the VALUE column to a float. Missing sentinels and parse
// failures both yield nil; a bad number never rejects the whole record.
func parseValue(raw string) *float64 {
	if raw == "" {
		return nil
	}
	lower := strings.ToLower(raw)
	for _, s := range missingSentinels {
		if lower == s {
			return nil
		}
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseDate tries the accepted date layouts in order; first parse wins.
// Returns the zero time when none parse.
func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

// parseDateTime tries the accepted datetime layouts in order and truncates
// the result to midnight UTC of the parsed date.
func parseDateTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range dateTimeLayouts {
		t, err := time.ParseInLocation(layout, raw, time.UTC)
		if err != nil {
			continue
		}
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return &day
	}
	return nil
}

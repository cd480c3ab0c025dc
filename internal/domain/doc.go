// Package domain models California Data Exchange Center (CDEC) reservoir
// level data.
//
// # Data Source
//
// Daily reservoir storage readings come from the CDEC CSV servlet at
// https://cdec.water.ca.gov/dynamicapp/req/CSVDataServlet, queried per station
// with a sensor selector and a bounded date range. The response is CSV text
// with the header:
//
//	STATION_ID, DURATION, SENSOR_NUMBER, SENSOR_TYPE, DATE TIME, OBS DATE, VALUE, DATA_FLAG, UNITS
//
// Note the literal spaces in "DATE TIME" and "OBS DATE". The same record also
// travels over the message transport as flat JSON with underscores in those
// two key names; [Normalize] accepts either spelling.
//
// # CDEC Data Conventions
//
// Station codes are 3-letter identifiers (ORO = Lake Oroville, SHA = Shasta
// Lake, ...). The full set of monitored reservoirs is in [Stations].
//
// Dates:
//
//	OBS DATE  — "YYYY-MM-DD" or "MM/DD/YYYY".
//	DATE TIME — "YYYY-MM-DD HH:MM:SS", "MM/DD/YYYY HH:MM:SS", or the compact
//	            telemetry form "YYYYMMDD HHMM" (e.g. "20220102 0000").
//
// Only the date component of DATE TIME is trustworthy upstream; the parsed
// value is normalized to midnight UTC of that date.
//
// Values:
//
//	Numeric, possibly with thousands separators ("1,234.5"). The sentinels
//	"na", "n/a" and "unavailable" (any case) mean the reading is missing.
//	A malformed number degrades to missing rather than rejecting the record.
//
// A record that ends up with no station code or no observation date cannot be
// keyed in the store and is rejected with [ErrMissingIdentity].
//
// # Transport Payloads
//
// Two JSON shapes are in use on the station topics: the full telemetry record
// above, and the compact summary form {"DATE":"YYYY-MM-DD","FEET":450.2}
// produced by replay. Consumers decide the shape by the presence of the FEET
// key.
package domain

package domain

import (
	"time"
)

// Station pairs a CDEC station code with its display name.
type Station struct {
	Name   string // display name, used for staging filenames
	CdecID string // 3-letter CDEC code
}

// Stations is the fixed table of monitored reservoirs. Order is the order in
// which fetch runs visit stations.
var Stations = []Station{
	{Name: "Shasta_Lake", CdecID: "SHA"},
	{Name: "Lake_Oroville", CdecID: "ORO"},
	{Name: "Trinity_Lake", CdecID: "CLE"},
	{Name: "New_Melones_Lake", CdecID: "NML"},
	{Name: "San_Luis_Reservoir", CdecID: "SNL"},
	{Name: "Don_Pedro_Reservoir", CdecID: "DNP"},
	{Name: "Lake_Berryessa", CdecID: "BER"},
	{Name: "Folsom_Lake", CdecID: "FOL"},
	{Name: "New_Bullards_Bar_Reservoir", CdecID: "BUL"},
	{Name: "Pine_Flat_Lake", CdecID: "PNF"},
}

// StationCodes returns the CdecID of every monitored station, in table order.
func StationCodes() []string {
	codes := make([]string, len(Stations))
	for i, s := range Stations {
		codes[i] = s.CdecID
	}
	return codes
}

// RawObservation is one sensor reading in canonical form. Value is nil when
// the upstream reported the reading as unavailable or unparseable; ObsDateTime
// is nil when the telemetry timestamp column was absent or malformed.
type RawObservation struct {
	StationID    string     `json:"station_id"`
	DurationCode string     `json:"duration_code"`
	SensorNumber string     `json:"sensor_number"`
	SensorType   string     `json:"sensor_type"`
	ObsDate      time.Time  `json:"observation_date"`
	ObsDateTime  *time.Time `json:"observation_datetime,omitempty"`
	Value        *float64   `json:"value,omitempty"`
	Units        string     `json:"units"`
	DataFlag     string     `json:"data_flag,omitempty"`
}

// FilteredReading is the per-station-per-day summary row used by the replay
// path. The legacy schema enforces no uniqueness on (CdecID, Date); consumers
// needing uniqueness must deduplicate.
type FilteredReading struct {
	Date   time.Time `json:"date"`
	CdecID string    `json:"cdec_id"`
	Feet   float64   `json:"feet"`
}

// ReservoirConfig is an operator-supplied replay directive. The config file
// holds a JSON array of these, replaced wholesale on update.
type ReservoirConfig struct {
	Name      string `json:"name"`
	CdecID    string `json:"cdecId" binding:"required"`
	StartDate string `json:"startDate" binding:"required"`
	EndDate   string `json:"endDate" binding:"required"`
}

// SummaryPayload is the compact replay message shape published per stored row.
type SummaryPayload struct {
	Date string  `json:"DATE"`
	Feet float64 `json:"FEET"`
}

// StationSummary aggregates all stored feet values for one station.
type StationSummary struct {
	CdecID  string  `json:"cdec_id"`
	MaxFeet float64 `json:"max_feet"`
	MinFeet float64 `json:"min_feet"`
	AvgFeet float64 `json:"avg_feet"`
}

// DateOnly formats a time as the wire date form used across payloads and the
// upstream API.
func DateOnly(t time.Time) string {
	return t.Format("2006-01-02")
}

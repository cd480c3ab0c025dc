package domain

import (
	"fmt"
	"strings"
)

// TopicScheme selects how station topics are named on the transport. Two
// schemes are in use by upstream producers; which one a deployment speaks is
// configuration, not code.
type TopicScheme string

const (
	// SchemeStation names topics "station-<CODE>" with the uppercase CDEC code.
	SchemeStation TopicScheme = "station"
	// SchemeReservoir names topics "reservoir.<code>" with the lowercase code.
	// The legacy MQTT deployment used a slash separator; Kafka forbids slashes
	// in topic names, so this scheme uses the dot namespace convention.
	SchemeReservoir TopicScheme = "reservoir"
)

// Valid reports whether s is a known scheme.
func (s TopicScheme) Valid() bool {
	return s == SchemeStation || s == SchemeReservoir
}

// TopicForStation derives the topic name for a station code under the scheme.
func TopicForStation(scheme TopicScheme, cdecID string) string {
	switch scheme {
	case SchemeReservoir:
		return "reservoir." + strings.ToLower(cdecID)
	default:
		return "station-" + strings.ToUpper(cdecID)
	}
}

// StationFromTopic recovers the uppercase CDEC code from a topic name in
// either scheme.
func StationFromTopic(topic string) (string, error) {
	switch {
	case strings.HasPrefix(topic, "station-"):
		return strings.ToUpper(strings.TrimPrefix(topic, "station-")), nil
	case strings.HasPrefix(topic, "reservoir."):
		return strings.ToUpper(strings.TrimPrefix(topic, "reservoir.")), nil
	}
	return "", fmt.Errorf("topic %q matches no station scheme", topic)
}

// StationTopics derives the topic for every monitored station under the scheme.
func StationTopics(scheme TopicScheme) []string {
	topics := make([]string, len(Stations))
	for i, s := range Stations {
		topics[i] = TopicForStation(scheme, s.CdecID)
	}
	return topics
}

package domain

import "time"

// EventStationUpdated is the event type of a rewritten index entry.
const EventStationUpdated = "station.updated"

// StationEvent announces that a run rewrote a station's series and index entry.
type StationEvent struct {
	RunID       string
	Mode        string
	ProcessedAt time.Time
	Station     StationRecord
}

// NewStationEvent stamps rec with the current time.
func NewStationEvent(runID, mode string, rec StationRecord) StationEvent {
	return StationEvent{
		RunID:       runID,
		Mode:        mode,
		ProcessedAt: clock.Now().UTC(),
		Station:     rec,
	}
}

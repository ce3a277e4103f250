// Package events provides an event system for threat, quorum and fail-safe
// notifications.
package events

import "time"

// EventType represents the type of event
type EventType string

const (
	// EventThreatStart is emitted when a threat actor begins its attack window
	EventThreatStart EventType = "threat_start"
	// EventThreatEnd is emitted when a threat actor finishes (or is aborted)
	EventThreatEnd EventType = "threat_end"
	// EventThreatSkipped is emitted when a threat actor could not be started
	EventThreatSkipped EventType = "threat_skipped"
	// EventVoteCast is emitted when a monitor vote is accepted by the quorum monitor
	EventVoteCast EventType = "vote_cast"
	// EventFailSafeTriggered is emitted when the fail-safe leaves the ARMED state
	EventFailSafeTriggered EventType = "fail_safe_triggered"
	// EventFailSafeCompleted is emitted when the fail-safe reaches COMPLETED
	EventFailSafeCompleted EventType = "fail_safe_completed"
	// EventHeartbeat is emitted on every host runtime tick
	EventHeartbeat EventType = "heartbeat"
	// EventShutdown is emitted once when the host shuts down
	EventShutdown EventType = "shutdown"
)

// Event represents a harness event
type Event struct {
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	ScenarioID string    `json:"scenario_id,omitempty"`
	Data       EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	Index         int     `json:"index,omitempty"`
	ThreatType    string  `json:"threat_type,omitempty"`
	Intensity     string  `json:"intensity,omitempty"`
	DurationMs    int     `json:"duration_ms,omitempty"`
	Aborted       bool    `json:"aborted,omitempty"`
	MonitorID     string  `json:"monitor_id,omitempty"`
	Verdict       string  `json:"verdict,omitempty"`
	Reason        string  `json:"reason,omitempty"`
	ContainmentMs float64 `json:"containment_ms,omitempty"`
	Tick          uint32  `json:"tick,omitempty"`
	Status        string  `json:"status,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// NewThreatStartEvent creates a threat start event
func NewThreatStartEvent(scenarioID string, index int, threatType, intensity string, durationMs int) Event {
	return Event{
		Type:       EventThreatStart,
		Timestamp:  time.Now(),
		ScenarioID: scenarioID,
		Data: EventData{
			Index:      index,
			ThreatType: threatType,
			Intensity:  intensity,
			DurationMs: durationMs,
		},
	}
}

// NewThreatEndEvent creates a threat end event
func NewThreatEndEvent(scenarioID string, index int, threatType string, aborted bool) Event {
	return Event{
		Type:       EventThreatEnd,
		Timestamp:  time.Now(),
		ScenarioID: scenarioID,
		Data: EventData{
			Index:      index,
			ThreatType: threatType,
			Aborted:    aborted,
		},
	}
}

// NewThreatSkippedEvent creates a threat skipped event
func NewThreatSkippedEvent(scenarioID string, index int, threatType string, err error) Event {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return Event{
		Type:       EventThreatSkipped,
		Timestamp:  time.Now(),
		ScenarioID: scenarioID,
		Data: EventData{
			Index:      index,
			ThreatType: threatType,
			Error:      errMsg,
		},
	}
}

// NewVoteCastEvent creates a vote cast event
func NewVoteCastEvent(scenarioID, monitorID, verdict string) Event {
	return Event{
		Type:       EventVoteCast,
		Timestamp:  time.Now(),
		ScenarioID: scenarioID,
		Data: EventData{
			MonitorID: monitorID,
			Verdict:   verdict,
		},
	}
}

// NewFailSafeTriggeredEvent creates a fail-safe triggered event
func NewFailSafeTriggeredEvent(scenarioID, reason string) Event {
	return Event{
		Type:       EventFailSafeTriggered,
		Timestamp:  time.Now(),
		ScenarioID: scenarioID,
		Data: EventData{
			Reason: reason,
		},
	}
}

// NewFailSafeCompletedEvent creates a fail-safe completed event
func NewFailSafeCompletedEvent(scenarioID, reason string, containmentMs float64) Event {
	return Event{
		Type:       EventFailSafeCompleted,
		Timestamp:  time.Now(),
		ScenarioID: scenarioID,
		Data: EventData{
			Reason:        reason,
			ContainmentMs: containmentMs,
		},
	}
}

// NewHeartbeatEvent creates a heartbeat event for the given host tick
func NewHeartbeatEvent(tick uint32) Event {
	return Event{
		Type:      EventHeartbeat,
		Timestamp: time.Now(),
		Data: EventData{
			Tick:   tick,
			Status: "ok",
		},
	}
}

// NewShutdownEvent creates a shutdown event carrying the final tick
func NewShutdownEvent(finalTick uint32) Event {
	return Event{
		Type:      EventShutdown,
		Timestamp: time.Now(),
		Data: EventData{
			Tick:   finalTick,
			Status: "completed",
		},
	}
}

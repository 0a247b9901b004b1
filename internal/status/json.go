package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/dishwasher/internal/event"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event            string     `json:"event,omitempty"`
	Reason           string     `json:"reason,omitempty"`
	Door             string     `json:"door"`
	Salt             string     `json:"salt"`
	Leak             string     `json:"leak"`
	SprayContact     string     `json:"spray_contact"`
	WaterLevel       int32      `json:"water_level_mm"`
	Temperature      int32      `json:"temperature_c"`
	CircCurrent      int32      `json:"circ_current_ma"`
	DrainCurrent     int32      `json:"drain_current_ma"`
	Relays           []string   `json:"relays"`
	Program          string     `json:"program"`
	State            string     `json:"state"`
	RemainingSeconds int64      `json:"remaining_seconds"`
	TimeFactor       int32      `json:"time_factor"`
	Faults           []string   `json:"faults"`
	Events           int        `json:"events"`
	UptimeSeconds    int64      `json:"uptime_seconds"`
	StartTime        string     `json:"start_time"`
	Timestamp        string     `json:"timestamp"`
	MQTT             MQTTStatus `json:"mqtt"`
	Config           ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of controller config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	DebounceMs  int64  `json:"debounce_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	Simulated   bool   `json:"simulated"`
}

func known(s string) string {
	if s == "Invalid" {
		return "UNKNOWN"
	}
	return s
}

func buildInner(snap Snapshot) StatusInner {
	relays := []string{}
	for a := event.Actuator(0); a < event.ActuatorCount; a++ {
		if snap.Relay(a) {
			relays = append(relays, a.String())
		}
	}
	faults := []string{}
	for _, f := range snap.Faults.Flags() {
		faults = append(faults, f.String())
	}

	return StatusInner{
		Door:             known(snap.Door.String()),
		Salt:             known(snap.Salt.String()),
		Leak:             known(snap.Leak.String()),
		SprayContact:     known(snap.SprayContact.String()),
		WaterLevel:       snap.WaterLevel,
		Temperature:      snap.Temperature,
		CircCurrent:      snap.CircCurrent,
		DrainCurrent:     snap.DrainCurrent,
		Relays:           relays,
		Program:          snap.Program.String(),
		State:            snap.State.String(),
		RemainingSeconds: int64(snap.Remaining().Truncate(time.Second).Seconds()),
		TimeFactor:       snap.TimeFactor,
		Faults:           faults,
		Events:           snap.EventCount,
		UptimeSeconds:    int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:        snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:        snap.Now.UTC().Format(time.RFC3339),
		MQTT:             MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			DebounceMs:  snap.Config.DebounceMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			Simulated:   snap.Config.Simulated,
		},
	}
}

// FormatJSON returns the JSON status document (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// Package mqtt provides MQTT publishing and the command subscription, with
// an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/sweeney/dishwasher/internal/event"
)

// Topic suffixes below the configured prefix.
const (
	TopicEvents  = "events"
	TopicSystem  = "system"
	TopicCommand = "command"
)

// ErrNotConnected is returned while the broker is unreachable. The message
// has been buffered and is replayed on reconnect.
var ErrNotConnected = errors.New("mqtt: not connected")

// ErrInvalidCommand is returned by ParseCommand for unusable payloads.
var ErrInvalidCommand = errors.New("mqtt: invalid command")

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a controller event observed at the given time.
	// Returns error if publishing fails (should not crash the process).
	Publish(at time.Time, ev event.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(ev SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// CommandHandler receives events decoded from the command topic.
type CommandHandler func(ev event.Event)

// Topic joins prefix and suffix.
func Topic(prefix, suffix string) string {
	if prefix == "" {
		return suffix
	}
	return prefix + "/" + suffix
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Dishwasher EventPayload `json:"dishwasher"`
}

// EventPayload contains the event details in their canonical text form.
type EventPayload struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Value     string `json:"value"`
}

// FormatPayload creates the JSON payload for a controller event.
func FormatPayload(at time.Time, ev event.Event) ([]byte, error) {
	payload := Payload{
		Dishwasher: EventPayload{
			Timestamp: at.UTC().Format(time.RFC3339),
			Type:      ev.TypeName(),
			Value:     ev.ValueText(),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(ev SystemEvent) ([]byte, error) {
	if ev.RawPayload != nil {
		return ev.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
			Event:     ev.Event,
			Reason:    ev.Reason,
		},
	}
	return json.Marshal(payload)
}

// Command is the payload accepted on the command topic. Exactly one of
// the fields is set: a program name such as "Fast", or a single key as
// typed on the console.
type Command struct {
	Program string `json:"program,omitempty"`
	Key     string `json:"key,omitempty"`
}

// ParseCommand decodes a command payload into the event it requests.
func ParseCommand(payload []byte) (event.Event, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return event.Event{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	switch {
	case cmd.Program != "" && cmd.Key != "":
		return event.Event{}, fmt.Errorf("%w: both program and key set", ErrInvalidCommand)
	case cmd.Program != "":
		p, ok := event.ParseProgram(cmd.Program)
		if !ok || p == event.ProgramNone {
			return event.Event{}, fmt.Errorf("%w: unknown program %q", ErrInvalidCommand, cmd.Program)
		}
		return event.NewProgram(p), nil
	case cmd.Key != "":
		r, size := utf8.DecodeRuneInString(cmd.Key)
		if r == utf8.RuneError || size != len(cmd.Key) {
			return event.Event{}, fmt.Errorf("%w: key must be one character", ErrInvalidCommand)
		}
		return event.New(event.KeyPressed, r), nil
	}
	return event.Event{}, fmt.Errorf("%w: empty command", ErrInvalidCommand)
}

package cargo

import (
	"bytes"
	"encoding/json"
)

// Event is one record of cargo's JSON message stream.
//
// The concrete types are [ArtifactEvent], [FinishedEvent], [DiagnosticEvent],
// [TextEvent] and [OtherEvent].
type Event interface {
	event()
}

// ArtifactEvent reports that a compilation unit was produced.
type ArtifactEvent struct {
	Artifact Artifact
}

// FinishedEvent is the last structured record of a build.
type FinishedEvent struct {
	Success bool
}

// DiagnosticEvent carries a compiler diagnostic.
type DiagnosticEvent struct {
	// Target is the name of the target being compiled.
	Target string
	// Level is the diagnostic severity, e.g. "warning" or "error".
	Level string
	// Message is the bare diagnostic text.
	Message string
	// Rendered is the diagnostic as rustc would print it, if available.
	Rendered string
}

// TextEvent is a line of output that is not a cargo message, for example the
// output of a program started by cargo run.
type TextEvent struct {
	Line string
}

// OtherEvent is a structured message cargo-pgo has no use for, such as
// build-script-executed.
type OtherEvent struct {
	Reason string
	Raw    []byte
}

func (ArtifactEvent) event()   {}
func (FinishedEvent) event()   {}
func (DiagnosticEvent) event() {}
func (TextEvent) event()       {}
func (OtherEvent) event()      {}

// Text returns the diagnostic the way it should be shown to a user.
func (d DiagnosticEvent) Text() string {
	if d.Rendered != "" {
		return d.Rendered
	}

	return d.Message
}

type rawMessage struct {
	Executable *string    `json:"executable"`
	Success    *bool      `json:"success"`
	Message    *rawDiag   `json:"message"`
	Profile    rawProfile `json:"profile"`
	Reason     string     `json:"reason"`
	PackageID  string     `json:"package_id"`
	Target     rawTarget  `json:"target"`
	Filenames  []string   `json:"filenames"`
	Fresh      bool       `json:"fresh"`
}

type rawTarget struct {
	Name string   `json:"name"`
	Kind []string `json:"kind"`
}

type rawProfile struct {
	Test bool `json:"test"`
}

type rawDiag struct {
	Rendered *string `json:"rendered"`
	Message  string  `json:"message"`
	Level    string  `json:"level"`
}

// ParseEvent decodes a single line of cargo output. Lines that are not JSON
// objects with a "reason" field become a [TextEvent].
func ParseEvent(line []byte) Event {
	line = bytes.TrimRight(line, "\r\n")

	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return TextEvent{Line: string(line)}
	}

	var msg rawMessage

	err := json.Unmarshal(trimmed, &msg)
	if err != nil || msg.Reason == "" {
		return TextEvent{Line: string(line)}
	}

	switch msg.Reason {
	case "compiler-artifact":
		a := Artifact{
			PackageID: msg.PackageID,
			Target:    msg.Target.Name,
			Kind:      kindFromTarget(msg.Target.Kind, msg.Profile.Test),
			Filenames: msg.Filenames,
			Fresh:     msg.Fresh,
		}
		if msg.Executable != nil {
			a.Executable = *msg.Executable
		}

		return ArtifactEvent{Artifact: a}

	case "build-finished":
		return FinishedEvent{Success: msg.Success != nil && *msg.Success}

	case "compiler-message":
		if msg.Message == nil {
			break
		}

		d := DiagnosticEvent{
			Target:  msg.Target.Name,
			Level:   msg.Message.Level,
			Message: msg.Message.Message,
		}
		if msg.Message.Rendered != nil {
			d.Rendered = *msg.Message.Rendered
		}

		return d
	}

	raw := make([]byte, len(trimmed))
	copy(raw, trimmed)

	return OtherEvent{Reason: msg.Reason, Raw: raw}
}

// Package router dispatches the events of a cargo build.
//
// Artifacts with an executable go to a callback, compiler notices about
// functions without profile data are counted, and all other output is
// relayed to the user unchanged.
package router

import (
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/ianlancetaylor/demangle"

	"go.jacobcolvin.com/cargo-pgo/cargo"
)

// missingProfileRe matches LLVM's -pgo-warn-missing-function notice. The
// module is either a "<module>: " prefix or an " in <module>" suffix.
var missingProfileRe = regexp.MustCompile(
	`(?:^|\s)(?:(\S+): )?no profile data available for function (\S+)(?: in (?:module )?(\S+))?`,
)

// MissingProfile is a function that was compiled without profile data.
type MissingProfile struct {
	// Function is the demangled function name.
	Function string
	// Module is the compilation unit the notice referred to, if known.
	Module string
}

// ParseMissingProfile extracts a [MissingProfile] from diagnostic text.
func ParseMissingProfile(text string) (MissingProfile, bool) {
	m := missingProfileRe.FindStringSubmatch(text)
	if m == nil {
		return MissingProfile{}, false
	}

	module := m[3]
	if module == "" {
		module = m[1]
	}

	return MissingProfile{
		Function: demangle.Filter(strings.TrimRight(m[2], ".,;")),
		Module:   module,
	}, true
}

// Source yields build events, see [cargo.Build.Events].
type Source interface {
	Events() iter.Seq2[cargo.Event, error]
}

// Router routes build events. The zero value relays output to [os.Stdout]
// and ignores artifacts.
type Router struct {
	// Stdout receives relayed output.
	Stdout io.Writer
	// OnArtifact is called for each artifact that has an executable.
	OnArtifact func(cargo.Artifact) error
	// OnFinished is called when cargo reports the end of the build.
	OnFinished func(success bool)
	Logger     *slog.Logger

	missing []MissingProfile
}

// Route handles a single event. It returns the error of [Router.OnArtifact].
func (r *Router) Route(ev cargo.Event) error {
	switch ev := ev.(type) {
	case cargo.ArtifactEvent:
		if ev.Artifact.Executable == "" || r.OnArtifact == nil {
			return nil
		}

		return r.OnArtifact(ev.Artifact)

	case cargo.FinishedEvent:
		if r.OnFinished != nil {
			r.OnFinished(ev.Success)
		}

	case cargo.DiagnosticEvent:
		if mp, ok := ParseMissingProfile(ev.Message); ok {
			r.missing = append(r.missing, mp)
			return nil
		}

		r.write(ev.Text())

	case cargo.TextEvent:
		r.write(ev.Line)

	case cargo.OtherEvent:
		r.logger().Debug("cargo message", slog.String("reason", ev.Reason))
	}

	return nil
}

// Drain routes every event of src. It stops at the first read or handler
// error; the caller still has to wait for the build to finish.
func (r *Router) Drain(src Source) error {
	for ev, err := range src.Events() {
		if err != nil {
			return err
		}

		err = r.Route(ev)
		if err != nil {
			return err
		}
	}

	return nil
}

// MissingProfiles returns the notices counted so far.
func (r *Router) MissingProfiles() []MissingProfile {
	return r.missing
}

// Report logs one warning summarizing the missing-profile notices, with the
// function names at debug level. It does nothing when there were none.
func (r *Router) Report() {
	if len(r.missing) == 0 {
		return
	}

	logger := r.logger()
	logger.Warn(fmt.Sprintf("%d functions were compiled without profile data", len(r.missing)),
		slog.String("hint", "run the instrumented binary on a more representative workload"),
	)

	for _, mp := range r.missing {
		logger.Debug("no profile data",
			slog.String("function", mp.Function),
			slog.String("module", mp.Module),
		)
	}
}

func (r *Router) write(text string) {
	w := r.Stdout
	if w == nil {
		w = os.Stdout
	}

	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	_, err := io.WriteString(w, text)
	if err != nil {
		r.logger().Debug("relay build output", slog.Any("err", err))
	}
}

func (r *Router) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}

	return slog.Default()
}

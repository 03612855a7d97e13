// Package gate decides once, at startup, whether the orchestrator runs for
// this deployment and fixes the identity used on every invocation.
package gate

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/vietddude/orchestrator/internal/core/config"
)

type State string

const (
	StateGated State = "gated"
	StateArmed State = "armed"
)

// Settings is the identity every invocation is submitted under.
// It is fixed for the lifetime of the process.
type Settings struct {
	Identity string
	Org      string
}

// Decision is the outcome of evaluating the gate.
type Decision struct {
	State    State
	Settings Settings
}

// Armed reports whether the pipeline should be built.
func (d Decision) Armed() bool {
	return d.State == StateArmed
}

// Evaluate checks the identity's org against the allow-list.
func Evaluate(allowedOrgs []string, id config.Identity) Decision {
	if id.Org == "" || !slices.Contains(allowedOrgs, id.Org) {
		return Decision{State: StateGated}
	}
	return Decision{
		State: StateArmed,
		Settings: Settings{
			Identity: id.ServiceUser,
			Org:      id.Org,
		},
	}
}

// Announce logs the outcome of the gate.
func Announce(log *slog.Logger, allowedOrgs []string, d Decision) {
	if !d.Armed() {
		log.Info("Orchestrator enabled for " + strings.Join(allowedOrgs, ", ") + " only")
		return
	}
	log.Info("**************    ORCHESTRATOR     ******************")
	log.Info("Orchestrator armed", "admin", d.Settings.Identity, "org", d.Settings.Org)
	log.Info("**************                     ******************")
}

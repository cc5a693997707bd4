package process

import (
	"fmt"
	"strings"

	"github.com/loykin/switchr/internal/logger"
)

// Spec describes one relay process. The command is an explicit argv: relay
// command lines are built programmatically, never through a shell.
type Spec struct {
	Role    string        `json:"role"`
	Command string        `json:"command"`
	Args    []string      `json:"args"`
	WorkDir string        `json:"workdir,omitempty"`
	Env     []string      `json:"env,omitempty"`
	Log     logger.Config `json:"-"`
}

// Validate checks the minimal invariants before a Spec is handed to a Handle.
func (s Spec) Validate() error {
	if s.Role == "" {
		return fmt.Errorf("process spec: role is required")
	}
	if s.Command == "" {
		return fmt.Errorf("process spec %s: command is required", s.Role)
	}
	return nil
}

// Commandline renders the argv as a single line for logs and status output.
func (s Spec) Commandline() string {
	if len(s.Args) == 0 {
		return s.Command
	}
	return s.Command + " " + strings.Join(s.Args, " ")
}

// Package privilege decides how this run obtains root for the base system
// tools and gates every privileged step on that decision.
package privilege

import (
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/breeze-rmm/osupgrade/internal/logging"
)

var log = logging.L("privilege")

// elevatedCommands lists the base system tools that modify the installed system.
var elevatedCommands = map[string]bool{
	"sysupgrade": true,
	"syspatch":   true,
	"pkg_add":    true,
	"fw_update":  true,
}

// RequiresElevation returns true if the command needs root privileges.
func RequiresElevation(command string) bool {
	return elevatedCommands[filepath.Base(command)]
}

// Credential is the means by which this run executes commands as root.
// An empty Program means the process already runs as root.
type Credential struct {
	Program string
}

// Wrap prefixes argv with the elevation program, if any.
func (c Credential) Wrap(argv []string) []string {
	if c.Program == "" {
		return argv
	}
	wrapped := make([]string, 0, len(argv)+1)
	wrapped = append(wrapped, c.Program)
	return append(wrapped, argv...)
}

func (c Credential) String() string {
	if c.Program == "" {
		return "root"
	}
	return filepath.Base(c.Program)
}

// Seams for tests.
var (
	isRoot   = IsRunningAsRoot
	lookPath = exec.LookPath
)

// Detect resolves the credential for the whole run from the configured
// elevation preference (auto, doas, sudo or none). It returns nil when no
// elevation is available.
func Detect(preference string) *Credential {
	preference = strings.ToLower(strings.TrimSpace(preference))
	if preference == "none" {
		return nil
	}
	if isRoot() {
		return &Credential{}
	}

	var candidates []string
	switch preference {
	case "doas", "sudo":
		candidates = []string{preference}
	default:
		candidates = []string{"doas", "sudo"}
	}

	for _, name := range candidates {
		if path, err := lookPath(name); err == nil {
			log.Debug("elevation program found", "program", path)
			return &Credential{Program: path}
		}
	}

	log.Debug("no elevation program found", "preference", preference)
	return nil
}

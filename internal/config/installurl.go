package config

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/breeze-rmm/osupgrade/internal/logging"
)

const (
	// DefaultInstallURLPath is the installurl(5) file consulted by the base system tools.
	DefaultInstallURLPath = "/etc/installurl"

	// DefaultMirror is used when installurl(5) is absent or empty.
	DefaultMirror = "https://cdn.openbsd.org/pub/OpenBSD"
)

var log = logging.L("config")

// ReadInstallURL returns the repository base URL from the installurl(5) file
// at path: the first non-blank line that is not a comment, without trailing
// slashes. fallback is returned when the file is missing, unreadable or has
// no usable line.
func ReadInstallURL(path, fallback string) string {
	fallback = strings.TrimRight(fallback, "/")

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("cannot read installurl, using default mirror", "path", path, "error", err)
		}
		return fallback
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return strings.TrimRight(line, "/")
	}

	log.Debug("installurl has no usable line, using default mirror", "path", path)
	return fallback
}

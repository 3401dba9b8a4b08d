// Package availability decides whether the release after the running one
// has been published on the configured mirror.
//
// A release counts as published once its SHA256.sig manifest can be fetched.
// The manifest's contents are not inspected.
package availability

import (
	"context"
	"fmt"
	"strings"

	"github.com/breeze-rmm/osupgrade/internal/logging"
	"github.com/breeze-rmm/osupgrade/internal/release"
)

var log = logging.L("availability")

// ManifestName is the signed checksum file present in every release directory.
const ManifestName = "SHA256.sig"

// Fetcher performs a read-only fetch of a URL. Any error means the resource
// is not reachable.
type Fetcher interface {
	Fetch(ctx context.Context, url string) error
}

// ProbeError records why the candidate manifest could not be fetched.
type ProbeError struct {
	URL string
	Err error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.URL, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// Result is the outcome of a probe.
type Result struct {
	Current   release.Version
	Next      release.Version
	URL       string
	Available bool
	// Err is set when Available is false. It is informational only.
	Err error
}

// Probe checks a mirror for the next release.
type Probe struct {
	fetcher Fetcher
}

func New(fetcher Fetcher) *Probe {
	return &Probe{fetcher: fetcher}
}

// CandidateURL builds {base}/{next}/{arch}/SHA256.sig.
func CandidateURL(base string, next release.Version, arch string) string {
	return fmt.Sprintf("%s/%s/%s/%s", strings.TrimRight(base, "/"), next, arch, ManifestName)
}

// Check reports whether the release after current is available for arch on
// the mirror at base. Fetch failures make the result NotAvailable; they are
// never returned as errors.
func (p *Probe) Check(ctx context.Context, current release.Version, arch, base string) Result {
	next := current.Next()
	url := CandidateURL(base, next, arch)

	result := Result{Current: current, Next: next, URL: url}
	if err := p.fetcher.Fetch(ctx, url); err != nil {
		result.Err = &ProbeError{URL: url, Err: err}
		log.Info("next release not available", "current", current.String(), "next", next.String(), "url", url, "error", err)
		return result
	}

	result.Available = true
	log.Info("next release available", "current", current.String(), "next", next.String(), "url", url)
	return result
}

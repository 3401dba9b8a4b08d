package patching

import (
	"context"

	"github.com/breeze-rmm/osupgrade/internal/privilege"
)

// AvailablePatch describes a binary patch that has not been applied yet.
type AvailablePatch struct {
	ID       string // e.g. "002_openssh"
	Provider string
	Title    string
}

// InstallResult captures the outcome of installing a provider's pending patches.
type InstallResult struct {
	Provider  string
	Installed []string
}

// PatchProvider is implemented by sources of binary patches. Every call runs
// privileged commands, so the caller passes the credential explicitly.
type PatchProvider interface {
	ID() string
	Name() string
	Scan(ctx context.Context, cred privilege.Credential) ([]AvailablePatch, error)
	InstallAll(ctx context.Context, cred privilege.Credential) (InstallResult, error)
}

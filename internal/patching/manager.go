package patching

import (
	"context"
	"fmt"

	"github.com/breeze-rmm/osupgrade/internal/logging"
	"github.com/breeze-rmm/osupgrade/internal/privilege"
)

var log = logging.L("patching")

// PatchManager coordinates patch providers.
type PatchManager struct {
	providers     []PatchProvider
	providerIndex map[string]PatchProvider
}

// NewPatchManager creates a PatchManager with the given providers.
func NewPatchManager(providers ...PatchProvider) *PatchManager {
	index := make(map[string]PatchProvider, len(providers))
	for _, provider := range providers {
		index[provider.ID()] = provider
	}

	return &PatchManager{
		providers:     providers,
		providerIndex: index,
	}
}

// Scan collects pending patches from every provider, in provider order. The
// first provider error aborts the scan so nothing is installed from a
// partial listing.
func (m *PatchManager) Scan(ctx context.Context, cred privilege.Credential) ([]AvailablePatch, error) {
	var patches []AvailablePatch

	for _, provider := range m.providers {
		providerPatches, err := provider.Scan(ctx, cred)
		if err != nil {
			return nil, fmt.Errorf("%s scan failed: %w", provider.ID(), err)
		}

		logging.FromContext(ctx, log).Debug("provider scan complete", "provider", provider.ID(), "pending", len(providerPatches))
		patches = append(patches, decorate(provider.ID(), providerPatches)...)
	}

	return patches, nil
}

// InstallPending runs InstallAll once for each provider that has at least one
// entry in pending. Providers are visited in registration order and the first
// failure stops the run.
func (m *PatchManager) InstallPending(ctx context.Context, cred privilege.Credential, pending []AvailablePatch) ([]InstallResult, error) {
	byProvider := make(map[string][]string)
	for _, patch := range pending {
		byProvider[patch.Provider] = append(byProvider[patch.Provider], patch.ID)
	}

	for providerID := range byProvider {
		if !m.HasProvider(providerID) {
			return nil, fmt.Errorf("unknown patch provider: %s", providerID)
		}
	}

	var results []InstallResult
	for _, provider := range m.providers {
		ids, ok := byProvider[provider.ID()]
		if !ok {
			continue
		}

		result, err := provider.InstallAll(ctx, cred)
		if err != nil {
			return results, fmt.Errorf("%s install failed: %w", provider.ID(), err)
		}
		if result.Provider == "" {
			result.Provider = provider.ID()
		}
		result.Installed = ids
		results = append(results, result)
	}

	return results, nil
}

func decorate(providerID string, patches []AvailablePatch) []AvailablePatch {
	decorated := make([]AvailablePatch, 0, len(patches))
	for _, patch := range patches {
		patch.Provider = providerID
		decorated = append(decorated, patch)
	}
	return decorated
}

// HasProvider reports whether the provider is registered.
func (m *PatchManager) HasProvider(providerID string) bool {
	_, ok := m.providerIndex[providerID]
	return ok
}

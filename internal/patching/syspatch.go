package patching

import (
	"bytes"
	"context"
	"unicode/utf8"

	"github.com/breeze-rmm/osupgrade/internal/executor"
	"github.com/breeze-rmm/osupgrade/internal/privilege"
)

const syspatchPath = "/usr/sbin/syspatch"

// Runner executes commands on behalf of a provider.
type Runner interface {
	Status(ctx context.Context, cred privilege.Credential, argv ...string) error
	Output(ctx context.Context, cred privilege.Credential, argv ...string) (executor.Outcome, error)
}

// SyspatchProvider integrates with syspatch(8).
type SyspatchProvider struct {
	runner Runner
}

func NewSyspatchProvider(runner Runner) *SyspatchProvider {
	return &SyspatchProvider{runner: runner}
}

func (s *SyspatchProvider) ID() string {
	return "syspatch"
}

func (s *SyspatchProvider) Name() string {
	return "OpenBSD syspatch"
}

// Scan lists the patches syspatch -c reports as missing, in its order. A dry
// run produces no output and therefore no patches.
func (s *SyspatchProvider) Scan(ctx context.Context, cred privilege.Credential) ([]AvailablePatch, error) {
	argv := []string{syspatchPath, "-c"}

	outcome, err := s.runner.Output(ctx, cred, argv...)
	if err != nil {
		return nil, err
	}
	if outcome.Simulated {
		return nil, nil
	}
	if outcome.ExitCode != 0 {
		return nil, &executor.CommandError{Argv: cred.Wrap(argv), ExitCode: outcome.ExitCode, Stderr: outcome.Stderr}
	}

	names, err := ParsePatchNames(outcome.Stdout)
	if err != nil {
		return nil, err
	}

	patches := make([]AvailablePatch, 0, len(names))
	for _, name := range names {
		patches = append(patches, AvailablePatch{ID: name, Title: name})
	}
	return patches, nil
}

// InstallAll applies every pending patch with a bare syspatch run.
func (s *SyspatchProvider) InstallAll(ctx context.Context, cred privilege.Credential) (InstallResult, error) {
	if err := s.runner.Status(ctx, cred, syspatchPath); err != nil {
		return InstallResult{}, err
	}
	return InstallResult{Provider: s.ID()}, nil
}

// ParsePatchNames splits newline-delimited output into patch names, dropping
// blank lines and keeping the reported order.
func ParsePatchNames(out []byte) ([]string, error) {
	var names []string
	for i, segment := range bytes.Split(out, []byte("\n")) {
		segment = bytes.TrimSuffix(segment, []byte("\r"))
		if len(bytes.TrimSpace(segment)) == 0 {
			continue
		}
		if !utf8.Valid(segment) {
			return nil, &DecodeError{Line: i, Bytes: segment}
		}
		names = append(names, string(segment))
	}
	return names, nil
}

// Package upgrade sequences the OpenBSD update steps: release upgrade via
// sysupgrade(8), binary patches via syspatch(8), and packages via pkg_add(1).
//
// Every privileged command goes through privilege.WithPrivilege, so a run
// without elevation reports what it skipped and changes nothing.
package upgrade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/breeze-rmm/osupgrade/internal/availability"
	"github.com/breeze-rmm/osupgrade/internal/config"
	"github.com/breeze-rmm/osupgrade/internal/logging"
	"github.com/breeze-rmm/osupgrade/internal/patching"
	"github.com/breeze-rmm/osupgrade/internal/privilege"
	"github.com/breeze-rmm/osupgrade/internal/release"
	"github.com/breeze-rmm/osupgrade/internal/sysinfo"
)

var log = logging.L("upgrade")

const (
	sysupgradePath = "/usr/sbin/sysupgrade"
	pkgAddPath     = "/usr/sbin/pkg_add"
)

// State is where a step ended up.
type State string

const (
	StateNoUpdate         State = "no_update"
	StateUpdateAvailable  State = "update_available"
	StateInstalled        State = "installed"
	StateSkipped          State = "skipped"
	StateNoPatches        State = "no_patches"
	StatePatchesInstalled State = "patches_installed"
	StateFailed           State = "failed"
)

// Reporter is the user-facing sink for step progress.
type Reporter interface {
	Separator(title string)
	Infof(format string, args ...any)
	Successf(format string, args ...any)
	Warnf(format string, args ...any)
}

// Runner executes status-checked commands.
type Runner interface {
	Status(ctx context.Context, cred privilege.Credential, argv ...string) error
}

// Checker probes the mirror for the next release.
type Checker interface {
	Check(ctx context.Context, current release.Version, arch, base string) availability.Result
}

// Patcher lists and installs binary patches.
type Patcher interface {
	Scan(ctx context.Context, cred privilege.Credential) ([]patching.AvailablePatch, error)
	InstallPending(ctx context.Context, cred privilege.Credential, pending []patching.AvailablePatch) ([]patching.InstallResult, error)
}

// Deps are the collaborators an Orchestrator drives. Credential may be nil.
type Deps struct {
	Identity   sysinfo.Provider
	Probe      Checker
	Runner     Runner
	Patches    Patcher
	Reporter   Reporter
	Credential *privilege.Credential
	Repository string
}

// Orchestrator runs the update steps for one invocation.
type Orchestrator struct {
	deps Deps
}

func New(deps Deps) *Orchestrator {
	return &Orchestrator{deps: deps}
}

// CheckResult is the outcome of a read-only availability check.
type CheckResult struct {
	Identity sysinfo.Identity
	availability.Result
}

// StepResult summarizes one step.
type StepResult struct {
	Step      string
	State     State
	Candidate release.Version
	Pending   []patching.AvailablePatch
}

// Check identifies the running system and probes the mirror for the next
// release. It runs no privileged command.
func (o *Orchestrator) Check(ctx context.Context) (CheckResult, error) {
	id, err := o.deps.Identity.Identify(ctx)
	if err != nil {
		return CheckResult{}, fmt.Errorf("identify system: %w", err)
	}

	current, err := release.Parse(id.Release)
	if err != nil {
		return CheckResult{Identity: id}, err
	}

	result := o.deps.Probe.Check(ctx, current, id.Machine, o.deps.Repository)
	return CheckResult{Identity: id, Result: result}, nil
}

// SystemUpgrade upgrades to the next release when the mirror has it.
func (o *Orchestrator) SystemUpgrade(ctx context.Context) (StepResult, error) {
	res := StepResult{Step: config.StepUpgrade}
	o.deps.Reporter.Separator("OpenBSD Update")

	check, err := o.Check(ctx)
	if err != nil {
		res.State = StateFailed
		return res, err
	}

	if !check.Available {
		o.deps.Reporter.Infof("No update available (checked %s)", check.URL)
		res.State = StateNoUpdate
		return res, nil
	}

	res.Candidate = check.Next
	res.State = StateUpdateAvailable
	o.deps.Reporter.Infof("Update available: %s -> %s", check.Current, check.Next)

	ran := false
	err = privilege.WithPrivilege(o.deps.Credential, o.deps.Reporter, "system upgrade", func(cred privilege.Credential) error {
		ran = true
		return o.deps.Runner.Status(ctx, cred, sysupgradePath, "-n")
	})
	if err != nil {
		res.State = StateFailed
		return res, fmt.Errorf("sysupgrade: %w", err)
	}
	if !ran {
		res.State = StateSkipped
		return res, nil
	}

	res.State = StateInstalled
	o.deps.Reporter.Successf("Reboot to finish the upgrade to %s", check.Next)
	return res, nil
}

// Patches lists pending binary patches and installs them if there are any.
func (o *Orchestrator) Patches(ctx context.Context) (StepResult, error) {
	res := StepResult{Step: config.StepPatches, State: StateSkipped}
	o.deps.Reporter.Separator("OpenBSD Patches")

	err := privilege.WithPrivilege(o.deps.Credential, o.deps.Reporter, "binary patches", func(cred privilege.Credential) error {
		pending, err := o.deps.Patches.Scan(ctx, cred)
		if err != nil {
			return err
		}
		res.Pending = pending

		for _, patch := range pending {
			o.deps.Reporter.Infof("Pending patch: %s", patch.ID)
		}
		if len(pending) == 0 {
			o.deps.Reporter.Infof("No pending patches")
			res.State = StateNoPatches
			return nil
		}

		if _, err := o.deps.Patches.InstallPending(ctx, cred, pending); err != nil {
			return err
		}
		res.State = StatePatchesInstalled
		o.deps.Reporter.Successf("Installed %d patch(es)", len(pending))
		return nil
	})
	if err != nil {
		res.State = StateFailed
		return res, fmt.Errorf("syspatch: %w", err)
	}
	return res, nil
}

// Packages updates installed packages with pkg_add -u.
func (o *Orchestrator) Packages(ctx context.Context) error {
	o.deps.Reporter.Separator("OpenBSD Packages")

	return privilege.WithPrivilege(o.deps.Credential, o.deps.Reporter, "package update", func(cred privilege.Credential) error {
		if err := o.deps.Runner.Status(ctx, cred, pkgAddPath, "-u"); err != nil {
			return fmt.Errorf("pkg_add: %w", err)
		}
		return nil
	})
}

// Run executes the named steps in order. A failing step is reported and the
// remaining steps still run; all failures are returned together.
func (o *Orchestrator) Run(ctx context.Context, steps []string) error {
	var errs []error

	for _, step := range steps {
		logger := logging.WithStep(log, step)
		stepCtx := logging.NewContext(ctx, logger)
		start := time.Now()

		var err error
		switch step {
		case config.StepUpgrade:
			_, err = o.SystemUpgrade(stepCtx)
		case config.StepPatches:
			_, err = o.Patches(stepCtx)
		case config.StepPackages:
			err = o.Packages(stepCtx)
		default:
			err = fmt.Errorf("unknown step %q", step)
		}

		if err != nil {
			logger.Error("step failed", logging.KeyError, err, logging.KeyDurationMs, time.Since(start).Milliseconds())
			o.deps.Reporter.Warnf("%s failed: %v", step, err)
			errs = append(errs, fmt.Errorf("%s: %w", step, err))
			continue
		}
		logger.Info("step complete", logging.KeyDurationMs, time.Since(start).Milliseconds())
	}

	return errors.Join(errs...)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/osupgrade/internal/audit"
	"github.com/breeze-rmm/osupgrade/internal/availability"
	"github.com/breeze-rmm/osupgrade/internal/config"
	"github.com/breeze-rmm/osupgrade/internal/executor"
	"github.com/breeze-rmm/osupgrade/internal/httputil"
	"github.com/breeze-rmm/osupgrade/internal/logging"
	"github.com/breeze-rmm/osupgrade/internal/patching"
	"github.com/breeze-rmm/osupgrade/internal/privilege"
	"github.com/breeze-rmm/osupgrade/internal/report"
	"github.com/breeze-rmm/osupgrade/internal/sysinfo"
	"github.com/breeze-rmm/osupgrade/internal/upgrade"
)

var version = "0.1.0"

// Flag values. Those left unset defer to the config file.
var (
	cfgFile   string
	dryRun    bool
	elevation string
	logLevel  string
	logFormat string
)

// Loaded in PersistentPreRunE.
var (
	cfg       *config.Config
	logCloser io.Closer
	trail     *audit.Logger
	invoked   string
)

var rootCmd = &cobra.Command{
	Use:   "breeze-osupgrade",
	Short: "Upgrade OpenBSD releases, binary patches and packages",
	Long: `breeze-osupgrade checks the configured mirror for the next OpenBSD release and
runs sysupgrade(8), syspatch(8) and pkg_add(1) through doas or sudo.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var runCmd = &cobra.Command{
	Use:   "run [step...]",
	Short: "Run the enabled steps (upgrade, patches, packages)",
	Args: func(cmd *cobra.Command, args []string) error {
		for _, step := range args {
			if err := config.ValidateStep(step); err != nil {
				return err
			}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := cfg.EnabledSteps
		if len(args) > 0 {
			steps = make([]string, len(args))
			for i, step := range args {
				steps[i] = config.NormalizeStep(step)
			}
		}
		return newOrchestrator(cmd.OutOrStdout()).Run(cmd.Context(), steps)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether the next release is published, without changing anything",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newOrchestrator(cmd.OutOrStdout()).Check(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Current release: %s (%s)\n", result.Current, result.Identity.Machine)
		if result.Available {
			fmt.Fprintf(out, "Release %s is available: %s\n", result.Next, result.URL)
		} else {
			fmt.Fprintf(out, "Release %s is not available: %s\n", result.Next, result.URL)
		}
		return nil
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade to the next release if it is published",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := newOrchestrator(cmd.OutOrStdout()).SystemUpgrade(cmd.Context())
		return err
	},
}

var patchesCmd = &cobra.Command{
	Use:   "patches",
	Short: "List and install pending binary patches",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := newOrchestrator(cmd.OutOrStdout()).Patches(cmd.Context())
		return err
	},
}

var packagesCmd = &cobra.Command{
	Use:   "packages",
	Short: "Update installed packages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return newOrchestrator(cmd.OutOrStdout()).Packages(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "breeze-osupgrade v%s\n", version)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is "+config.DefaultConfigFile+")")
	flags.BoolVarP(&dryRun, "dry-run", "n", false, "print the commands that would run without running them")
	flags.StringVar(&elevation, "elevation", "", "how to obtain root: auto, doas, sudo or none")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&logFormat, "log-format", "", "log format: text or json")

	rootCmd.AddCommand(runCmd, checkCmd, upgradeCmd, patchesCmd, packagesCmd, configCmd, auditCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := executeRoot(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// executeRoot runs the root command and then closes what setup opened,
// whether or not the command succeeded.
func executeRoot(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	finish(err)
	return err
}

func finish(runErr error) {
	if trail != nil {
		details := map[string]any{"command": invoked, "status": "ok"}
		if runErr != nil {
			details["status"] = "error"
			details["error"] = runErr.Error()
		}
		trail.Log(audit.EventRunStop, details)
		_ = trail.Close()
		trail = nil
	}
	if logCloser != nil {
		_ = logCloser.Close()
		logCloser = nil
	}
}

func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("dry-run") {
		loaded.DryRun = dryRun
	}
	if flags.Changed("elevation") {
		loaded.Elevation = elevation
	}
	if flags.Changed("log-level") {
		loaded.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		loaded.LogFormat = logFormat
	}

	if result := loaded.ValidateTiered(); result.HasFatals() {
		return fmt.Errorf("invalid config: %w", errors.Join(result.Fatals...))
	}

	output, closer, err := logging.OpenOutput(loaded.LogFile, loaded.LogMaxSizeMB, loaded.LogMaxBackups)
	if err != nil {
		return err
	}
	logging.Init(loaded.LogFormat, loaded.LogLevel, output)

	cfg = loaded
	logCloser = closer
	invoked = cmd.CommandPath()

	if cfg.AuditFile != "" {
		trail, err = audit.Open(cfg.AuditFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			logging.L("main").Warn("audit trail disabled", "path", cfg.AuditFile, logging.KeyError, err)
			trail = nil
		} else {
			trail.Log(audit.EventRunStart, map[string]any{
				"command": invoked,
				"version": version,
				"dryRun":  cfg.DryRun,
			})
		}
	}
	return nil
}

func newOrchestrator(out io.Writer) *upgrade.Orchestrator {
	mode := executor.ModeFor(cfg.DryRun)
	opts := executor.Options{
		Timeout:      time.Duration(cfg.CommandTimeoutSeconds) * time.Second,
		DryRunOutput: out,
		Terminal:     out,
	}
	if trail != nil {
		opts.Recorder = trail
	}
	runner := executor.New(mode, opts)

	cred := privilege.Detect(cfg.Elevation)
	repository := config.ReadInstallURL(cfg.InstallURLPath, cfg.DefaultMirror)

	logging.L("main").Info("starting",
		"version", version,
		"mode", mode.String(),
		"elevation", credentialName(cred),
		"repository", repository,
	)

	return upgrade.New(upgrade.Deps{
		Identity:   sysinfo.NewHostProvider(),
		Probe:      availability.New(httputil.NewClient(time.Duration(cfg.ProbeTimeoutSeconds) * time.Second)),
		Runner:     runner,
		Patches:    patching.NewPatchManager(patching.NewSyspatchProvider(runner)),
		Reporter:   report.New(out),
		Credential: cred,
		Repository: repository,
	})
}

func credentialName(cred *privilege.Credential) string {
	if cred == nil {
		return "none"
	}
	return cred.String()
}

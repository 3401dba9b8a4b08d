package privilege

// Warner receives the notice emitted when a step is skipped.
type Warner interface {
	Warnf(format string, args ...any)
}

// WithPrivilege runs action with cred. When cred is nil the step is skipped:
// a warning is emitted and nil is returned without calling action. Otherwise
// action's result is returned unchanged.
func WithPrivilege(cred *Credential, warn Warner, step string, action func(Credential) error) error {
	if cred == nil {
		warn.Warnf("No elevation detected. Skipping %s", step)
		log.Warn("step skipped without elevation", "step", step)
		return nil
	}
	return action(*cred)
}

package privilege

import (
	"errors"
	"fmt"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWarner struct {
	lines []string
}

func (w *recordingWarner) Warnf(format string, args ...any) {
	w.lines = append(w.lines, fmt.Sprintf(format, args...))
}

func stubDetect(t *testing.T, root bool, available ...string) {
	t.Helper()
	origRoot, origLook := isRoot, lookPath
	t.Cleanup(func() { isRoot, lookPath = origRoot, origLook })

	isRoot = func() bool { return root }
	lookPath = func(name string) (string, error) {
		for _, a := range available {
			if a == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", exec.ErrNotFound
	}
}

func TestWithPrivilegeSkipsWithoutCredential(t *testing.T) {
	warn := &recordingWarner{}
	called := false

	err := WithPrivilege(nil, warn, "system upgrade", func(Credential) error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, []string{"No elevation detected. Skipping system upgrade"}, warn.lines)
}

func TestWithPrivilegePropagatesActionResult(t *testing.T) {
	warn := &recordingWarner{}
	boom := errors.New("boom")
	var got Credential

	err := WithPrivilege(&Credential{Program: "/usr/bin/doas"}, warn, "patches", func(c Credential) error {
		got = c
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "/usr/bin/doas", got.Program)
	assert.Empty(t, warn.lines)
}

func TestDetect(t *testing.T) {
	t.Run("none never elevates", func(t *testing.T) {
		stubDetect(t, true, "doas")
		assert.Nil(t, Detect("none"))
	})

	t.Run("root runs directly", func(t *testing.T) {
		stubDetect(t, true)
		assert.Equal(t, &Credential{}, Detect("auto"))
	})

	t.Run("auto prefers doas", func(t *testing.T) {
		stubDetect(t, false, "sudo", "doas")
		assert.Equal(t, &Credential{Program: "/usr/bin/doas"}, Detect("auto"))
	})

	t.Run("auto falls back to sudo", func(t *testing.T) {
		stubDetect(t, false, "sudo")
		assert.Equal(t, &Credential{Program: "/usr/bin/sudo"}, Detect(""))
	})

	t.Run("explicit program must exist", func(t *testing.T) {
		stubDetect(t, false, "doas")
		assert.Nil(t, Detect("sudo"))
	})
}

func TestCredentialWrap(t *testing.T) {
	argv := []string{"/usr/sbin/syspatch", "-c"}
	assert.Equal(t, argv, Credential{}.Wrap(argv))
	assert.Equal(t, []string{"/usr/bin/doas", "/usr/sbin/syspatch", "-c"}, Credential{Program: "/usr/bin/doas"}.Wrap(argv))
	assert.Equal(t, "doas", Credential{Program: "/usr/bin/doas"}.String())
	assert.Equal(t, "root", Credential{}.String())
}

func TestRequiresElevation(t *testing.T) {
	assert.True(t, RequiresElevation("/usr/sbin/sysupgrade"))
	assert.True(t, RequiresElevation("pkg_add"))
	assert.False(t, RequiresElevation("/usr/bin/ftp"))
}

// Package report writes the user-facing progress of an upgrade run.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

const separatorWidth = 60

// Reporter prints step separators, informational lines and warnings.
type Reporter struct {
	out  io.Writer
	head *color.Color
	info *color.Color
	warn *color.Color
}

// New returns a Reporter writing to out (os.Stdout when nil). Colour follows
// fatih/color's terminal detection and NO_COLOR.
func New(out io.Writer) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	return &Reporter{
		out:  out,
		head: color.New(color.Bold),
		info: color.New(color.FgGreen),
		warn: color.New(color.FgYellow),
	}
}

// Separator prints a titled rule that starts a step.
func (r *Reporter) Separator(title string) {
	line := "―― " + title + " "
	if pad := separatorWidth - len([]rune(line)); pad > 0 {
		line += strings.Repeat("―", pad)
	}
	_, _ = r.head.Fprintln(r.out, "\n"+line)
}

func (r *Reporter) Infof(format string, args ...any) {
	_, _ = fmt.Fprintln(r.out, fmt.Sprintf(format, args...))
}

// Successf prints a line highlighting a completed action.
func (r *Reporter) Successf(format string, args ...any) {
	_, _ = r.info.Fprintln(r.out, fmt.Sprintf(format, args...))
}

func (r *Reporter) Warnf(format string, args ...any) {
	_, _ = r.warn.Fprintln(r.out, fmt.Sprintf(format, args...))
}

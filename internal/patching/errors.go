package patching

import "fmt"

// DecodeError indicates a line of patch-check output was not valid UTF-8.
type DecodeError struct {
	Line  int // 0-based index of the newline-separated segment
	Bytes []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("patch name on line %d is not valid UTF-8: %q", e.Line+1, e.Bytes)
}

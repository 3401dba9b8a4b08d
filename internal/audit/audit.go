// Package audit keeps a tamper-evident JSONL trail of the commands a run
// executed. Each entry carries the SHA-256 of the previous one, and the chain
// continues across runs appending to the same file.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/breeze-rmm/osupgrade/internal/logging"
)

var log = logging.L("audit")

// Event types for audit logging.
const (
	EventRunStart        = "run_start"
	EventCommandExecuted = "command_executed"
	EventRunStop         = "run_stop"
)

const genesisHash = "genesis"

// Entry is a single audit log record.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	EventType string         `json:"eventType"`
	Details   map[string]any `json:"details,omitempty"`
	PrevHash  string         `json:"prevHash"`
	EntryHash string         `json:"entryHash"`
}

// Logger appends hash-chained entries to a rotating file.
type Logger struct {
	mu       sync.Mutex
	out      *logging.RotatingWriter
	prevHash string
	now      func() time.Time
}

// Open starts (or resumes) the audit trail at path.
func Open(path string, maxSizeMB, maxBackups int) (*Logger, error) {
	prev, err := lastHash(path)
	if err != nil {
		return nil, err
	}

	out, err := logging.NewRotatingWriter(path, maxSizeMB, maxBackups)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	log.Debug("audit trail opened", "path", path)
	return &Logger{out: out, prevHash: prev, now: time.Now}, nil
}

// Log writes one entry. The chain only advances after a successful write.
// Safe to call on a nil receiver (no-op).
func (l *Logger) Log(eventType string, details map[string]any) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		EventType: eventType,
		Details:   details,
		PrevHash:  l.prevHash,
	}

	hash, err := computeHash(entry)
	if err != nil {
		log.Error("failed to hash audit entry", "error", err, "eventType", eventType)
		return
	}
	entry.EntryHash = hash

	data, err := json.Marshal(entry)
	if err != nil {
		log.Error("failed to marshal audit entry", "error", err, "eventType", eventType)
		return
	}

	if _, err := l.out.Write(append(data, '\n')); err != nil {
		log.Error("failed to write audit entry", "error", err, "eventType", eventType)
		return
	}
	l.prevHash = hash
}

// RecordCommand logs a command that reached the process layer.
func (l *Logger) RecordCommand(argv []string, exitCode int, runErr error) {
	details := map[string]any{
		"argv":     argv,
		"exitCode": exitCode,
	}
	if runErr != nil {
		details["error"] = runErr.Error()
	}
	l.Log(EventCommandExecuted, details)
}

// Close closes the audit file. Safe to call on a nil receiver.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	return l.out.Close()
}

// Verify checks the hash chain of the entries in path and returns the number
// of entries read. The first entry must link to genesis unless a rotated
// backup (path.1) holds the earlier part of the chain.
func Verify(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	prev := ""
	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return count, fmt.Errorf("entry %d: %w", count+1, err)
		}
		if count == 0 && entry.PrevHash != genesisHash {
			if _, err := os.Stat(path + ".1"); err != nil {
				return count, fmt.Errorf("entry 1: chain does not start at genesis (prevHash %s) and no rotated backup exists", entry.PrevHash)
			}
		}
		if count > 0 && entry.PrevHash != prev {
			return count, fmt.Errorf("entry %d: chain broken (prevHash %s, want %s)", count+1, entry.PrevHash, prev)
		}
		want, err := computeHash(entry)
		if err != nil {
			return count, err
		}
		if entry.EntryHash != want {
			return count, fmt.Errorf("entry %d: hash mismatch", count+1)
		}
		prev = entry.EntryHash
		count++
	}
	return count, scanner.Err()
}

// computeHash produces the SHA-256 hash for an audit entry. Fields are
// length-prefixed so that no field can bleed into the next.
func computeHash(entry Entry) (string, error) {
	h := sha256.New()
	for _, field := range []string{entry.Timestamp, entry.EventType, entry.PrevHash} {
		fmt.Fprintf(h, "%d:%s", len(field), field)
	}
	if entry.Details != nil {
		detailBytes, err := json.Marshal(entry.Details)
		if err != nil {
			return "", fmt.Errorf("marshal details for hash: %w", err)
		}
		fmt.Fprintf(h, "%d:", len(detailBytes))
		h.Write(detailBytes)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// lastHash returns the entryHash of the final line in path, or the genesis
// marker when the file is missing or empty.
func lastHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return genesisHash, nil
		}
		return "", fmt.Errorf("read audit log: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	last := lines[len(lines)-1]
	if last == "" {
		return genesisHash, nil
	}

	var entry Entry
	if err := json.Unmarshal([]byte(last), &entry); err != nil || entry.EntryHash == "" {
		log.Warn("audit log tail unreadable, starting a new chain", "path", path, "error", err)
		return genesisHash, nil
	}
	return entry.EntryHash, nil
}

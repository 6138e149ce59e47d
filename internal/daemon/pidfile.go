package daemon

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shirou/gopsutil/v4/process"
)

// PIDInfo contains daemon process metadata stored in the PID record.
type PIDInfo struct {
	PID        int       `json:"pid"`
	Port       uint16    `json:"port,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	InstanceID string    `json:"instance_id,omitempty"`
	Executable string    `json:"executable,omitempty"`
}

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewInstanceID returns a fresh ULID identifying one daemon run. It is
// written to the PID record and reported by health so a PID record left by
// an earlier run can be told apart from the daemon answering on the port.
func NewInstanceID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}

// WritePIDFileJSON writes process information to the PID record.
func WritePIDFileJSON(path string, info PIDInfo) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal PID info: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// ReadPIDFileJSON reads process information from the PID record.
// A record holding just a decimal pid is accepted too.
func ReadPIDFileJSON(path string) (PIDInfo, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304 - path inside the alfred directory
	if err != nil {
		// Unwrapped so callers can test for os.ErrNotExist.
		return PIDInfo{}, err
	}

	var info PIDInfo
	if err := json.Unmarshal(data, &info); err == nil && info.PID > 0 {
		return info, nil
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return PIDInfo{}, fmt.Errorf("invalid PID file format in %s", path)
	}
	return PIDInfo{PID: pid}, nil
}

// CheckPIDFileJSON checks if the PID record exists and if its process is running.
// Returns: (running bool, PIDInfo, error)
//   - running: true if the process is alive, false if stale or absent
//   - PIDInfo: record contents (zero value if absent)
//   - error: any error reading the record (nil if absent)
func CheckPIDFileJSON(path string) (bool, PIDInfo, error) {
	info, err := ReadPIDFileJSON(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, PIDInfo{}, nil
		}
		return false, PIDInfo{}, err
	}
	return IsProcessRunning(info.PID), info, nil
}

// RemovePIDFile removes the PID record. A missing record is not an error.
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// IsProcessRunning reports whether a process with the given pid exists.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid)) //nolint:gosec // G115 - pids fit in int32
	return err == nil && exists
}

// looksLikeDaemon reports whether pid runs an executable named like exe.
// Unknown names count as a match so a live record is never clobbered.
func looksLikeDaemon(pid int, exe string) bool {
	proc, err := process.NewProcess(int32(pid)) //nolint:gosec // G115 - pids fit in int32
	if err != nil {
		return false
	}
	name, err := proc.Name()
	if err != nil || name == "" {
		return true
	}
	want := filepath.Base(exe)
	return want == "" || strings.HasPrefix(name, want) || strings.HasPrefix(want, name)
}

// LiveDaemon returns the PID record at path when it names a running daemon
// process. A record without an executable is matched against name.
func LiveDaemon(path, name string) (PIDInfo, bool) {
	running, info, err := CheckPIDFileJSON(path)
	if err != nil || !running {
		return PIDInfo{}, false
	}
	exe := info.Executable
	if exe == "" {
		exe = name
	}
	if !looksLikeDaemon(info.PID, exe) {
		return PIDInfo{}, false
	}
	return info, true
}

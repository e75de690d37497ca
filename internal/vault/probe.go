// internal/vault/probe.go
package vault

import (
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessProbe reports whether the monitored service appears to be running.
type ProcessProbe interface {
	IsRunning() bool
}

// ProbeFunc adapts a function to ProcessProbe.
type ProbeFunc func() bool

// IsRunning calls f.
func (f ProbeFunc) IsRunning() bool { return f() }

type processInfo struct {
	PID     int32
	Name    string
	Cmdline string
}

// ProcessDetector looks for a Codex process by command line and by the PID in
// Codex's lock file.
type ProcessDetector struct {
	pattern  string
	lockPath string
	selfPID  int32

	listProcesses func() ([]processInfo, error)
	pidExists     func(pid int32) (bool, error)
}

// NewProcessDetector matches processes whose command line contains pattern,
// or whose name is exactly "codex", and honours the lock file at lockPath.
func NewProcessDetector(pattern, lockPath string) *ProcessDetector {
	return &ProcessDetector{
		pattern:       pattern,
		lockPath:      lockPath,
		selfPID:       int32(os.Getpid()),
		listProcesses: listProcesses,
		pidExists:     process.PidExists,
	}
}

// IsRunning reports true if any other matching process exists or the lock file
// is held.
func (d *ProcessDetector) IsRunning() bool {
	return d.matchProcess() || d.lockHeld()
}

func (d *ProcessDetector) matchProcess() bool {
	procs, err := d.listProcesses()
	if err != nil {
		return false
	}
	for _, p := range procs {
		if p.PID == d.selfPID {
			continue
		}
		if p.Name == "codex" {
			return true
		}
		if d.pattern != "" && strings.Contains(p.Cmdline+" ", d.pattern) {
			return true
		}
	}
	return false
}

// lockHeld treats an unreadable PID in an existing lock file as held.
func (d *ProcessDetector) lockHeld() bool {
	if d.lockPath == "" {
		return false
	}
	data, err := os.ReadFile(d.lockPath)
	if err != nil {
		return !os.IsNotExist(err)
	}

	pid, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 32)
	if err != nil || pid <= 0 {
		return true
	}

	alive, err := d.pidExists(int32(pid))
	if err != nil {
		return true
	}
	return alive
}

func listProcesses() ([]processInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	infos := make([]processInfo, 0, len(procs))
	for _, p := range procs {
		info := processInfo{PID: p.Pid}
		// Processes can exit between listing and inspection
		if name, err := p.Name(); err == nil {
			info.Name = name
		}
		if cmdline, err := p.Cmdline(); err == nil {
			info.Cmdline = cmdline
		}
		infos = append(infos, info)
	}
	return infos, nil
}

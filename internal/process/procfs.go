package process

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultProcRoot is where procfs is normally mounted.
const DefaultProcRoot = "/proc"

// commLen is the kernel's TASK_COMM_LEN minus the trailing NUL.
const commLen = 15

// Table is the process-table view the supervisor relies on.
type Table interface {
	// IsAlive reports whether pid exists and is not a zombie.
	IsAlive(pid int) bool
	// FindByName returns the pids whose executable name equals name.
	FindByName(name string) ([]int, error)
	// Signal delivers sig to pid.
	Signal(pid int, sig unix.Signal) error
}

// ProcFS implements Table by reading procfs.
type ProcFS struct {
	// Root is the procfs mount point.
	Root string
	// Kill delivers signals. Defaults to unix.Kill.
	Kill func(pid int, sig unix.Signal) error
}

// NewProcFS returns a ProcFS rooted at /proc.
func NewProcFS() *ProcFS {
	return &ProcFS{Root: DefaultProcRoot, Kill: unix.Kill}
}

// IsAlive inspects <root>/<pid>/stat. An unreadable stat file means the
// process is gone; a zombie ("Z") counts as dead. A stat line that cannot
// be parsed is treated as alive.
func (p *ProcFS) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	data, err := os.ReadFile(filepath.Join(p.root(), strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	state, ok := parseState(string(data))
	if !ok {
		return true
	}
	return state != "Z"
}

// parseState extracts the state field from a stat line of the form
// "pid (comm) S ...". The comm field may itself contain spaces or
// parentheses, so the split happens at the last ')'.
func parseState(stat string) (string, bool) {
	idx := strings.LastIndexByte(stat, ')')
	if idx < 0 {
		return "", false
	}
	fields := strings.Fields(stat[idx+1:])
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

// FindByName scans procfs for processes whose comm equals name, the way
// pgrep -x does. Names longer than the kernel comm limit are compared on
// the truncated prefix. Results are sorted by pid.
func (p *ProcFS) FindByName(name string) ([]int, error) {
	entries, err := os.ReadDir(p.root())
	if err != nil {
		return nil, fmt.Errorf("failed to read process table: %w", err)
	}

	want := name
	if len(want) > commLen {
		want = want[:commLen]
	}

	self := os.Getpid()
	var pids []int
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid == self {
			continue
		}
		comm, err := os.ReadFile(filepath.Join(p.root(), entry.Name(), "comm"))
		if err != nil {
			// Raced with exit.
			continue
		}
		if strings.TrimSpace(string(comm)) == want {
			pids = append(pids, pid)
		}
	}
	sort.Ints(pids)
	return pids, nil
}

// Signal sends sig to pid.
func (p *ProcFS) Signal(pid int, sig unix.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	kill := p.Kill
	if kill == nil {
		kill = unix.Kill
	}
	if err := kill(pid, sig); err != nil {
		return fmt.Errorf("failed to send %s to %d: %w", unix.SignalName(sig), pid, err)
	}
	return nil
}

func (p *ProcFS) root() string {
	if p.Root == "" {
		return DefaultProcRoot
	}
	return p.Root
}

// StartTime approximates when pid started from the modification time of
// its procfs directory.
func (p *ProcFS) StartTime(pid int) (time.Time, error) {
	info, err := os.Stat(filepath.Join(p.root(), strconv.Itoa(pid)))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat process %d: %w", pid, err)
	}
	return info.ModTime(), nil
}

package process

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/oklog/ulid/v2"
)

// Environment variables that turn a re-executed host binary into the
// intermediate process of a detached spawn.
const (
	EnvDetachTarget  = "SPOTIFYCTL_DETACH_TARGET"
	EnvDetachHandoff = "SPOTIFYCTL_DETACH_HANDOFF"
)

// Exit codes of the intermediate process.
const (
	exitStartFailed   = 3
	exitHandoffFailed = 4
)

// Spawner starts a process that outlives the caller and returns its pid.
type Spawner interface {
	Spawn(ctx context.Context, path string, args []string) (int, error)
}

// Detacher spawns processes through two detach steps. The host binary is
// re-executed in a new session; that intermediate starts the target with
// its standard streams on the null device, writes the target pid to a
// handoff file, and exits without waiting. The target is reparented to
// init and never becomes a zombie of the caller.
//
// Hosts must call HandleDetach at the very start of main.
type Detacher struct {
	// Executable is the binary re-executed as the intermediate. Defaults
	// to os.Executable().
	Executable string
	// Dir holds handoff files. Defaults to os.TempDir().
	Dir string
}

// NewDetacher returns a Detacher using the running executable.
func NewDetacher() *Detacher {
	return &Detacher{}
}

// Spawn starts path with args fully detached and returns the final pid.
func (d *Detacher) Spawn(ctx context.Context, path string, args []string) (int, error) {
	self := d.Executable
	if self == "" {
		exe, err := os.Executable()
		if err != nil {
			return 0, fmt.Errorf("failed to resolve own executable: %w", err)
		}
		self = exe
	}

	dir := d.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	handoff := filepath.Join(dir, "spotifyctl-"+ulid.Make().String()+".pid")
	defer os.Remove(handoff)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, self, args...)
	cmd.Env = append(os.Environ(),
		EnvDetachTarget+"="+path,
		EnvDetachHandoff+"="+handoff,
	)
	cmd.Stderr = &stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return 0, fmt.Errorf("failed to spawn %s: %s: %w", path, msg, err)
		}
		return 0, fmt.Errorf("failed to spawn %s: %w", path, err)
	}

	data, err := os.ReadFile(handoff)
	if err != nil {
		return 0, fmt.Errorf("failed to read handoff file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in handoff file %q", strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// HandleDetach runs the intermediate step when the process was started by
// Detacher.Spawn and exits; otherwise it returns immediately.
func HandleDetach() {
	target := os.Getenv(EnvDetachTarget)
	if target == "" {
		return
	}
	os.Exit(runIntermediate(target, os.Getenv(EnvDetachHandoff), os.Args[1:]))
}

func runIntermediate(target, handoff string, args []string) int {
	cmd := exec.Command(target, args...)
	cmd.Env = stripDetachEnv(os.Environ())
	// nil Stdin/Stdout/Stderr attach the null device.

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "start %s: %v\n", target, err)
		return exitStartFailed
	}

	pid := cmd.Process.Pid
	if err := writeHandoff(handoff, pid); err != nil {
		fmt.Fprintf(os.Stderr, "write handoff: %v\n", err)
		_ = cmd.Process.Kill()
		return exitHandoffFailed
	}

	_ = cmd.Process.Release()
	return 0
}

// writeHandoff writes pid atomically so the reader never sees a partial
// file.
func writeHandoff(path string, pid int) error {
	if path == "" {
		return fmt.Errorf("no handoff path")
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(strconv.Itoa(pid)), 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func stripDetachEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if strings.HasPrefix(kv, EnvDetachTarget+"=") || strings.HasPrefix(kv, EnvDetachHandoff+"=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

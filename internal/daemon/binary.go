package daemon

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/jmylchreest/spotifyctl/internal/config"
	"github.com/jmylchreest/spotifyctl/internal/model"
)

// EnvBinaryPath overrides the daemon executable when no path is configured.
const EnvBinaryPath = "SPOTIFYCTL_SPOTIFYD_PATH"

// BinaryResolver locates the daemon executable.
type BinaryResolver struct {
	Getenv   func(string) string
	LookPath func(string) (string, error)
	// BinDir is the user-local download location.
	BinDir string
}

// NewBinaryResolver returns a resolver over the real environment.
func NewBinaryResolver() *BinaryResolver {
	return &BinaryResolver{
		Getenv:   os.Getenv,
		LookPath: exec.LookPath,
		BinDir:   config.BinDir(),
	}
}

// Resolve tries, in order: the configured path, the EnvBinaryPath
// override, <BinDir>/<name>, then name on PATH. Candidates that do not
// exist are skipped.
func (r *BinaryResolver) Resolve(configured, name string) (string, error) {
	if configured != "" && isFile(configured) {
		return configured, nil
	}
	if env := r.Getenv(EnvBinaryPath); env != "" && isFile(env) {
		return env, nil
	}
	if r.BinDir != "" {
		local := filepath.Join(r.BinDir, name)
		if isFile(local) {
			return local, nil
		}
	}
	path, err := r.LookPath(name)
	if err != nil {
		return "", model.NewError(model.KindBinaryMissing, "resolve binary", err)
	}
	return path, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

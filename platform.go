package carousel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// DirPlatform downloads artifacts into a directory and has no share primitive.
type DirPlatform struct {
	Dir string
}

func (p *DirPlatform) NativeShare() bool              { return false }
func (p *DirPlatform) Handheld() bool                 { return false }
func (p *DirPlatform) CanShare(files []Artifact) bool { return false }

func (p *DirPlatform) Share(ctx context.Context, req ShareRequest) error {
	return ErrShareUnavailable
}

// Download writes data to Dir/name, creating Dir when needed.
func (p *DirPlatform) Download(ctx context.Context, name string, data []byte) error {
	dir := p.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	Logger().Info("saved", "path", path, "bytes", len(data))
	return nil
}

// cancelExitCode is the exit status share commands use for a dismissed sheet.
const cancelExitCode = 130

// ExecPlatform shares through an external command such as termux-share. The
// command is run once per share call with the file paths appended to Args.
// Files are staged in a temporary directory for the duration of the call.
// Downloads fall back to the embedded DirPlatform.
type ExecPlatform struct {
	DirPlatform

	Command string
	Args    []string
	// MaxFiles is the most files the command accepts per call; 0 means no limit.
	MaxFiles int
	// HandheldOverride forces handheld detection when non-nil.
	HandheldOverride *bool
}

func (p *ExecPlatform) NativeShare() bool {
	if p.Command == "" {
		return false
	}
	_, err := exec.LookPath(p.Command)
	return err == nil
}

// Handheld reports true on android and ios unless overridden.
func (p *ExecPlatform) Handheld() bool {
	if p.HandheldOverride != nil {
		return *p.HandheldOverride
	}
	return runtime.GOOS == "android" || runtime.GOOS == "ios"
}

func (p *ExecPlatform) CanShare(files []Artifact) bool {
	if !p.NativeShare() || len(files) == 0 {
		return false
	}
	return p.MaxFiles <= 0 || len(files) <= p.MaxFiles
}

func (p *ExecPlatform) Share(ctx context.Context, req ShareRequest) error {
	if !p.NativeShare() {
		return ErrShareUnavailable
	}
	dir, err := os.MkdirTemp("", "carousel-share-")
	if err != nil {
		return fmt.Errorf("stage share files: %w", err)
	}
	defer os.RemoveAll(dir)

	args := append([]string(nil), p.Args...)
	for _, f := range req.Files {
		path := filepath.Join(dir, filepath.Base(f.Name))
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			return fmt.Errorf("stage %s: %w", f.Name, err)
		}
		args = append(args, path)
	}

	cmd := exec.CommandContext(ctx, p.Command, args...)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == cancelExitCode {
		return ErrShareCancelled
	}
	return fmt.Errorf("%s: %w: %s", p.Command, err, out)
}

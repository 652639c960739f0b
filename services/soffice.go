package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// sofficeFlags match the sidecar's headless invocation so one-shot runs
// behave like the long-lived service.
var sofficeFlags = []string{
	"--headless",
	"--invisible",
	"--nocrashreport",
	"--nodefault",
	"--nofirststartwizard",
	"--nologo",
	"--norestore",
}

// SofficeRunner invokes the native converter binary directly, one process
// per attempt, against a private temporary working directory.
type SofficeRunner struct {
	binary string
}

func NewSofficeRunner(binary string) *SofficeRunner {
	if binary == "" {
		binary = "soffice"
	}
	return &SofficeRunner{binary: binary}
}

// Available reports whether the converter binary can be found at all. The
// strategy chain skips the direct attempt when it cannot.
func (r *SofficeRunner) Available() bool {
	_, err := exec.LookPath(r.binary)
	return err == nil
}

// DocxToHTML converts by writing the input into a fresh temp dir, running
// the converter against it, and reading the produced file back. The dir is
// removed on every path, including timeout; ctx expiry kills the process.
func (r *SofficeRunner) DocxToHTML(ctx context.Context, input []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "docbridge-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inputPath := filepath.Join(dir, "input.docx")
	if err := os.WriteFile(inputPath, input, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write input: %w", err)
	}

	// Each run gets its own profile dir; concurrent soffice processes
	// sharing a profile deadlock on its lock file.
	profile := fmt.Sprintf("-env:UserInstallation=file://%s", filepath.Join(dir, "profile"))

	args := append([]string{profile}, sofficeFlags...)
	args = append(args, "--convert-to", "html:HTML (StarWriter)", "--outdir", dir, inputPath)

	cmd := exec.CommandContext(ctx, r.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("soffice timed out: %w", ctx.Err())
		}
		return nil, fmt.Errorf("soffice failed: %w: %s", err, stderr.String())
	}

	outputPath := filepath.Join(dir, "input.html")
	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("soffice produced no output: %w: %s", err, stderr.String())
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("soffice produced an empty document")
	}

	return data, nil
}

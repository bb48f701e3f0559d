// Package deps checks that the external tools vtranscoder drives are installed.
package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Requirement defines an external dependency vtranscoder relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// VersionFlag, when set, is passed to the binary to capture its version line.
	VersionFlag string
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Resolved    string
	Description string
	Optional    bool
	Available   bool
	Version     string
	Detail      string
}

const versionTimeout = 5 * time.Second

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Resolved = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// CheckVersions is CheckBinaries followed by a version probe for every
// available requirement that declares a VersionFlag. A failed probe leaves
// the dependency available with an explanatory detail.
func CheckVersions(ctx context.Context, requirements []Requirement) []Status {
	results := CheckBinaries(requirements)
	for i, req := range requirements {
		if !results[i].Available || req.VersionFlag == "" {
			continue
		}
		version, err := Version(ctx, results[i].Resolved, req.VersionFlag)
		if err != nil {
			results[i].Detail = err.Error()
			continue
		}
		results[i].Version = version
	}
	return results
}

// Version runs command with flag and returns the first non-empty output line.
func Version(ctx context.Context, command, flag string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, command, flag).CombinedOutput()
	if err != nil && len(out) == 0 {
		return "", fmt.Errorf("%s %s: %w", command, flag, err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line, nil
		}
	}
	return "", fmt.Errorf("%s %s: no version output", command, flag)
}

package keychain

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// RunRotationCommand executes a rotation script and captures its stdout.
// The script must print the new value to stdout (and only the value).
func RunRotationCommand(ctx context.Context, command string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", errors.New("empty rotation command")
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("exit code %d: %s", exitErr.ExitCode(), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return strings.TrimRight(string(output), "\n"), nil
}

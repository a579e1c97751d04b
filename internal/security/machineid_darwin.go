//go:build darwin

package security

import (
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strings"
)

var platformUUID = regexp.MustCompile(`"IOPlatformUUID"\s*=\s*"([^"]+)"`)

func readMachineID(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "ioreg", "-rd1", "-c", "IOPlatformExpertDevice").Output()
	if err != nil {
		return "", err
	}
	m := platformUUID.FindSubmatch(out)
	if m == nil {
		return "", errors.New("IOPlatformUUID not found in ioreg output")
	}
	return string(m[1]), nil
}

func readCPUID(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "sysctl", "-n", "machdep.cpu.brand_string").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

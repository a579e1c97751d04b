//go:build linux

package security

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	machineIDPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}
	cpuInfoPath    = "/proc/cpuinfo"
)

func readMachineID(context.Context) (string, error) {
	var errs []error
	for _, path := range machineIDPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
		errs = append(errs, fmt.Errorf("%s is empty", path))
	}
	return "", errors.Join(errs...)
}

// readCPUID returns the first processor's model string. ARM kernels report it
// under "Hardware" or "Model" instead of "model name".
func readCPUID(context.Context) (string, error) {
	data, err := os.ReadFile(cpuInfoPath)
	if err != nil {
		return "", err
	}
	return parseCPUInfo(data)
}

func parseCPUInfo(data []byte) (string, error) {
	found := map[string]string{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, seen := found[key]; !seen {
			found[key] = strings.TrimSpace(value)
		}
	}
	for _, key := range []string{"model name", "Hardware", "Model", "cpu model"} {
		if v := found[key]; v != "" {
			return v, nil
		}
	}
	return "", errors.New("no processor model in cpuinfo")
}

//go:build !linux && !windows && !darwin

package security

import (
	"context"
	"errors"
	"runtime"
)

var errUnsupportedOS = errors.New("fingerprint source not implemented for " + runtime.GOOS)

func readMachineID(context.Context) (string, error) {
	return "", errUnsupportedOS
}

func readCPUID(context.Context) (string, error) {
	return "", errUnsupportedOS
}

//go:build windows

package security

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sys/windows/registry"
)

func readMachineID(context.Context) (string, error) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, `SOFTWARE\Microsoft\Cryptography`, registry.QUERY_VALUE|registry.WOW64_64KEY)
	if err != nil {
		return "", err
	}
	defer k.Close()

	guid, _, err := k.GetStringValue("MachineGuid")
	if err != nil {
		return "", err
	}
	return guid, nil
}

func readCPUID(context.Context) (string, error) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, `HARDWARE\DESCRIPTION\System\CentralProcessor\0`, registry.QUERY_VALUE)
	if err == nil {
		defer k.Close()
		if name, _, err := k.GetStringValue("ProcessorNameString"); err == nil && name != "" {
			return name, nil
		}
	}

	if id := os.Getenv("PROCESSOR_IDENTIFIER"); id != "" {
		return id, nil
	}
	return "", errors.New("processor identifier unavailable")
}

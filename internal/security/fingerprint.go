package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/enrferaba/Grabadora-Intento4/internal/infrastructure"
)

// Placeholders substituted for components that cannot be read. A fingerprint
// built from any of them is less unique than a complete one.
const (
	UnknownMachineID = "unknown-machine-id"
	UnknownMAC       = "unknown-mac"
	UnknownCPU       = "unknown-cpu"
)

// Component names, in the order they are digested.
const (
	ComponentMachineID = "machine_id"
	ComponentMAC       = "mac_address"
	ComponentCPU       = "cpu_id"
)

// DeviceFingerprint identifies the current machine. Only the digest leaves the
// process; the raw components are never serialized.
type DeviceFingerprint struct {
	Fingerprint string    `json:"fingerprint"`
	Degraded    []string  `json:"degraded,omitempty"`
	OS          string    `json:"os"`
	Platform    string    `json:"platform"`
	GeneratedAt time.Time `json:"generated_at"`

	components map[string]string
}

// IsDegraded reports whether any component fell back to its placeholder.
func (f *DeviceFingerprint) IsDegraded() bool {
	return len(f.Degraded) > 0
}

// Sources reads the raw fingerprint components. Tests replace them.
type Sources struct {
	MachineID func(ctx context.Context) (string, error)
	MAC       func(ctx context.Context) (string, error)
	CPU       func(ctx context.Context) (string, error)
}

// DefaultSources reads the components from the running OS.
func DefaultSources() Sources {
	return Sources{
		MachineID: readMachineID,
		MAC:       primaryMAC,
		CPU:       readCPUID,
	}
}

// FingerprintOptions configures a FingerprintManager. Zero values select the
// OS sources and the default logger.
type FingerprintOptions struct {
	Sources Sources
	Logger  *slog.Logger

	// Degraded, when set, counts fingerprints built with placeholders.
	Degraded metric.Int64Counter
}

// FingerprintManager caches the first complete device fingerprint. Degraded
// results are not cached, so a transient read failure heals on the next call.
type FingerprintManager struct {
	sources  Sources
	logger   *slog.Logger
	degraded metric.Int64Counter

	group      singleflight.Group
	cacheMutex sync.RWMutex
	cache      *DeviceFingerprint
}

// NewFingerprintManager creates a fingerprint manager.
func NewFingerprintManager(opts FingerprintOptions) *FingerprintManager {
	defaults := DefaultSources()
	if opts.Sources.MachineID == nil {
		opts.Sources.MachineID = defaults.MachineID
	}
	if opts.Sources.MAC == nil {
		opts.Sources.MAC = defaults.MAC
	}
	if opts.Sources.CPU == nil {
		opts.Sources.CPU = defaults.CPU
	}
	return &FingerprintManager{
		sources:  opts.Sources,
		logger:   infrastructure.WithComponent(opts.Logger, "fingerprint"),
		degraded: opts.Degraded,
	}
}

// GenerateFingerprint returns the device fingerprint: the hex SHA-256 of
// machine_id|mac_address|cpu_id. It never fails; unreadable components are
// replaced by their placeholder and listed in Degraded.
func (fm *FingerprintManager) GenerateFingerprint(ctx context.Context) *DeviceFingerprint {
	fm.cacheMutex.RLock()
	cached := fm.cache
	fm.cacheMutex.RUnlock()
	if cached != nil {
		return cached.clone()
	}

	v, _, _ := fm.group.Do("fingerprint", func() (any, error) {
		fm.cacheMutex.Lock()
		defer fm.cacheMutex.Unlock()
		if fm.cache != nil {
			return fm.cache, nil
		}
		// A cancelled caller must not turn into a placeholder component.
		fp := fm.compute(context.WithoutCancel(ctx))
		if !fp.IsDegraded() {
			fm.cache = fp
		}
		return fp, nil
	})
	return v.(*DeviceFingerprint).clone()
}

func (fm *FingerprintManager) compute(ctx context.Context) *DeviceFingerprint {
	start := time.Now()

	steps := []struct {
		name     string
		read     func(context.Context) (string, error)
		fallback string
	}{
		{ComponentMachineID, fm.sources.MachineID, UnknownMachineID},
		{ComponentMAC, fm.sources.MAC, UnknownMAC},
		{ComponentCPU, fm.sources.CPU, UnknownCPU},
	}

	fp := &DeviceFingerprint{
		OS:         runtime.GOOS,
		Platform:   runtime.GOARCH,
		components: make(map[string]string, len(steps)),
	}
	factors := make([]string, 0, len(steps))
	for _, step := range steps {
		value, err := step.read(ctx)
		value = normalizeComponent(step.name, value)
		if err == nil && value == "" {
			err = errors.New("empty value")
		}
		if err != nil {
			value = step.fallback
			fp.Degraded = append(fp.Degraded, step.name)
			fm.logger.WarnContext(ctx, "fingerprint component unavailable, using placeholder",
				slog.String("part", step.name),
				slog.String("error", err.Error()),
			)
		}
		fp.components[step.name] = value
		factors = append(factors, value)
	}

	sum := sha256.Sum256([]byte(strings.Join(factors, "|")))
	fp.Fingerprint = hex.EncodeToString(sum[:])
	fp.GeneratedAt = time.Now()

	if fp.IsDegraded() && fm.degraded != nil {
		fm.degraded.Add(ctx, 1, metric.WithAttributes(
			attribute.StringSlice("components", fp.Degraded),
		))
	}

	fm.logger.InfoContext(ctx, "device fingerprint generated",
		slog.String("fingerprint", fp.Fingerprint[:12]),
		slog.Int("degraded", len(fp.Degraded)),
		slog.String("os", fp.OS),
		slog.Duration("generation_time", time.Since(start)),
	)
	return fp
}

// DeviceHash returns the fingerprint digest. It satisfies the license
// package's device identifier.
func (fm *FingerprintManager) DeviceHash(ctx context.Context) (string, error) {
	return fm.GenerateFingerprint(ctx).Fingerprint, nil
}

// ValidateFingerprint compares the current fingerprint with a stored one.
func (fm *FingerprintManager) ValidateFingerprint(ctx context.Context, stored string) bool {
	return fm.GenerateFingerprint(ctx).Fingerprint == strings.ToLower(strings.TrimSpace(stored))
}

// GetFingerprintComponents returns the normalized raw components for local
// diagnostics. Callers must not send them off the machine.
func (fm *FingerprintManager) GetFingerprintComponents(ctx context.Context) map[string]string {
	fp := fm.GenerateFingerprint(ctx)
	out := make(map[string]string, len(fp.components))
	for k, v := range fp.components {
		out[k] = v
	}
	return out
}

// ClearCache forgets the cached fingerprint so the next call recomputes it.
func (fm *FingerprintManager) ClearCache() {
	fm.cacheMutex.Lock()
	defer fm.cacheMutex.Unlock()
	fm.cache = nil
}

func (f *DeviceFingerprint) clone() *DeviceFingerprint {
	c := *f
	c.Degraded = append([]string(nil), f.Degraded...)
	return &c
}

func normalizeComponent(name, value string) string {
	value = strings.Join(strings.Fields(value), " ")
	if name == ComponentCPU {
		return value
	}
	return strings.ToLower(value)
}

// primaryMAC returns the address of the first up, non-loopback interface,
// falling back to any interface with a hardware address.
func primaryMAC(context.Context) (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to get network interfaces: %w", err)
	}
	return pickMAC(interfaces)
}

func pickMAC(interfaces []net.Interface) (string, error) {
	usable := func(iface net.Interface) (string, bool) {
		if len(iface.HardwareAddr) == 0 {
			return "", false
		}
		mac := iface.HardwareAddr.String()
		return mac, mac != "" && mac != "00:00:00:00:00:00"
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if mac, ok := usable(iface); ok {
			return mac, nil
		}
	}
	for _, iface := range interfaces {
		if mac, ok := usable(iface); ok {
			return mac, nil
		}
	}
	return "", errors.New("no valid MAC address found")
}

package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DeviceIdentifier yields the current machine's device hash.
type DeviceIdentifier interface {
	DeviceHash(ctx context.Context) (string, error)
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// Provider answers "what is the license decision right now".
type Provider func(ctx context.Context) Decision

// StaticProvider always returns d.
func StaticProvider(d Decision) Provider {
	return func(context.Context) Decision { return d }
}

// Options configures a Manager. Only Store is required.
type Options struct {
	Store *Store

	// Verifier checks signed tokens. When it is nil, VerifierErr explains
	// why (for example ErrNoPublicKey or a KeyFormatError) and signed
	// licenses evaluate inactive with the matching reason.
	Verifier    *Verifier
	VerifierErr error

	Legacy         *LegacyVerifier
	LegacyFeatures []string

	Device   DeviceIdentifier
	Clock    Clock
	CacheTTL time.Duration
	Logger   *slog.Logger
	Metrics  *Metrics
}

// Manager loads the installed license, verifies it on the appropriate path
// and evaluates it for this device.
type Manager struct {
	store          *Store
	verifier       *Verifier
	verifierErr    error
	legacy         *LegacyVerifier
	legacyFeatures []string
	device         DeviceIdentifier
	clock          Clock
	cache          *decisionCache
	logger         *slog.Logger
	metrics        *Metrics
}

// NewManager builds a manager from opts.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("license manager requires a store")
	}

	m := &Manager{
		store:          opts.Store,
		verifier:       opts.Verifier,
		verifierErr:    opts.VerifierErr,
		legacy:         opts.Legacy,
		legacyFeatures: NormalizeFeatures(opts.LegacyFeatures),
		device:         opts.Device,
		clock:          opts.Clock,
		cache:          newDecisionCache(opts.CacheTTL),
		logger:         opts.Logger,
		metrics:        opts.Metrics,
	}
	if m.verifier == nil && m.verifierErr == nil {
		m.verifierErr = ErrNoPublicKey
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With(slog.String("component", "license"))
	if m.metrics == nil {
		m.metrics = noopMetrics()
	}
	return m, nil
}

// NewVerifierFromConfig resolves the public key and builds a verifier. The
// returned error is suitable for Options.VerifierErr.
func NewVerifierFromConfig(inlineKey, keyPath string, algorithms []string) (*Verifier, error) {
	key, err := ResolvePublicKey(inlineKey, keyPath)
	if err != nil {
		return nil, err
	}
	return NewVerifier(key, algorithms...)
}

// Path returns the license file location.
func (m *Manager) Path() string {
	return m.store.Path()
}

// Now returns the manager's notion of the current time.
func (m *Manager) Now() time.Time {
	return m.clock()
}

// DeviceHash returns this machine's device hash, or "" when no identifier is
// configured.
func (m *Manager) DeviceHash(ctx context.Context) (string, error) {
	if m.device == nil {
		return "", nil
	}
	return m.device.DeviceHash(ctx)
}

// Status returns the current decision, answering from the cache when the
// previous evaluation is recent enough.
func (m *Manager) Status(ctx context.Context) Decision {
	now := m.clock()
	if d, ok := m.cache.get(now); ok {
		m.metrics.CacheHits.Add(ctx, 1)
		return d
	}
	m.metrics.CacheMisses.Add(ctx, 1)
	return m.evaluate(ctx, now)
}

// Revalidate discards the cached decision and evaluates again from disk.
func (m *Manager) Revalidate(ctx context.Context) Decision {
	m.cache.invalidate()
	d := m.evaluate(ctx, m.clock())
	m.logInfo(ctx, "revalidate", "license revalidated", decisionAttrs(d)...)
	return d
}

// CacheStats reports decision cache usage.
func (m *Manager) CacheStats() CacheStats {
	return m.cache.stats()
}

// Provider exposes Status as a Provider.
func (m *Manager) Provider() Provider {
	return m.Status
}

func (m *Manager) evaluate(ctx context.Context, now time.Time) Decision {
	ctx, span := otel.Tracer(TracerName).Start(ctx, "license.evaluate")
	defer span.End()
	start := time.Now()

	var d Decision
	f, err := m.store.Load()
	if err != nil {
		d = DecisionFromError(err)
		if errors.Is(err, ErrNotFound) {
			m.logDebug(ctx, "evaluate", "no license installed", slog.String("path", m.store.Path()))
		} else {
			m.logWarn(ctx, "evaluate", "license file could not be used",
				slog.String("path", m.store.Path()), slog.String("error", err.Error()))
		}
	} else {
		d = m.Resolve(ctx, f, now)
	}

	m.cache.set(d, now)
	m.metrics.recordEvaluation(ctx, d, time.Since(start))
	annotateSpan(span, d)
	return d
}

// Resolve verifies f on the path its contents select and evaluates it at now.
// A signed token takes precedence over legacy fields; the legacy path is used
// only when no token is present.
func (m *Manager) Resolve(ctx context.Context, f *File, now time.Time) Decision {
	src, err := m.verify(f)
	if err != nil {
		d := DecisionFromError(err)
		d.Source = f.Kind()
		m.logWarn(ctx, "verify", "license rejected",
			slog.String("source", d.Source), slog.String("reason", d.Reason), slog.String("error", err.Error()))
		return d
	}

	device := ""
	if _, signed := src.(SignedSource); signed && m.device != nil {
		if device, err = m.device.DeviceHash(ctx); err != nil {
			m.logWarn(ctx, "fingerprint", "device hash unavailable", slog.String("error", err.Error()))
		}
	}

	d := EvaluateSource(src, device, now)
	if !d.Active {
		m.logInfo(ctx, "evaluate", "license inactive", decisionAttrs(d)...)
	}
	return d
}

func (m *Manager) verify(f *File) (Source, error) {
	switch {
	case f.Signed():
		if m.verifier == nil {
			return nil, m.verifierErr
		}
		claims, err := m.verifier.DecodeAndVerify(f.Token)
		if err != nil {
			return nil, err
		}
		return SignedSource{Claims: claims}, nil
	case f.Legacy != nil:
		if err := m.legacy.Verify(f.Legacy); err != nil {
			return nil, err
		}
		return LegacySource{License: f.Legacy, Features: m.legacyFeatures}, nil
	default:
		return nil, ErrNotFound
	}
}

// RejectedError is returned by Import when the license parses but would not
// be active on this device.
type RejectedError struct {
	Decision Decision
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("license rejected: %s", e.Decision.Reason)
}

// Import verifies raw license content and, when it yields an active decision,
// installs it atomically. A rejected license never replaces the current one.
func (m *Manager) Import(ctx context.Context, raw []byte) (Decision, error) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, "license.import")
	defer span.End()

	f, err := ParseFile(raw)
	if err != nil {
		m.metrics.recordImport(ctx, "malformed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed license")
		return DecisionFromError(err), err
	}

	d := m.Resolve(ctx, f, m.clock())
	annotateSpan(span, d)
	if !d.Active {
		m.metrics.recordImport(ctx, "rejected")
		return d, &RejectedError{Decision: d}
	}

	if err := m.store.Save(f); err != nil {
		m.metrics.recordImport(ctx, "io_error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		m.logError(ctx, "import", "failed to save license", slog.String("error", err.Error()))
		return DecisionFromError(err), err
	}

	m.cache.set(d, m.clock())
	m.metrics.recordImport(ctx, "installed")

	attrs := append(decisionAttrs(d), slog.String("path", m.store.Path()))
	if f.Signed() {
		attrs = append(attrs, slog.String("token_digest", TokenDigest(f.Token)))
	}
	m.logInfo(ctx, "import", "license installed", attrs...)
	return d, nil
}

// Remove uninstalls the license and forgets the cached decision.
func (m *Manager) Remove(ctx context.Context) error {
	m.cache.invalidate()
	if err := m.store.Remove(); err != nil {
		return err
	}
	m.logInfo(ctx, "remove", "license removed", slog.String("path", m.store.Path()))
	return nil
}

func annotateSpan(span trace.Span, d Decision) {
	span.SetAttributes(
		attribute.Bool("license.active", d.Active),
		attribute.Bool("license.in_grace", d.InGrace),
		attribute.String("license.plan", d.Plan),
		attribute.String("license.source", d.Source),
	)
	if d.Reason != "" {
		span.SetAttributes(attribute.String("license.reason", d.Reason))
	}
}

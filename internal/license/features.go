package license

import (
	"errors"
	"fmt"
	"slices"
)

// Feature identifiers granted by licenses.
const (
	FeatureSummaryExtractive = "summary:extractive"
	FeatureSummaryRedacted   = "summary:redacted"
	FeatureExportMarkdown    = "export:markdown"
	FeatureExportJSON        = "export:json"
	FeatureExportDocx        = "export:docx"

	// FeatureAll grants every feature to an active license.
	FeatureAll = "*"
)

// AllFeatures lists every concrete feature identifier.
var AllFeatures = []string{
	FeatureExportDocx,
	FeatureExportJSON,
	FeatureExportMarkdown,
	FeatureSummaryExtractive,
	FeatureSummaryRedacted,
}

// featureAliases maps identifiers written by the first issuer, which named
// summary modes in Spanish, onto the current ones.
var featureAliases = map[string]string{
	"summary:redactado":  FeatureSummaryRedacted,
	"summary:extractivo": FeatureSummaryExtractive,
}

// FreeTier is available without a license.
var FreeTier = []string{FeatureSummaryExtractive, FeatureExportMarkdown, FeatureExportJSON}

// ErrFeatureNotLicensed is matched by FeatureError.
var ErrFeatureNotLicensed = errors.New("feature not licensed")

// FeatureError reports a gated feature the current decision does not grant.
type FeatureError struct {
	Feature string
	Reason  string
}

func (e *FeatureError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("feature %q not licensed", e.Feature)
	}
	return fmt.Sprintf("feature %q not licensed: %s", e.Feature, e.Reason)
}

func (e *FeatureError) Unwrap() error {
	return ErrFeatureNotLicensed
}

// Gate decides feature access from a decision. Features in the free set are
// always allowed; the rest need an active decision that lists them or the
// wildcard.
type Gate struct {
	free []string
}

// NewGate returns a gate with the given free features. With no arguments it
// uses FreeTier.
func NewGate(free ...string) *Gate {
	if len(free) == 0 {
		free = FreeTier
	}
	return &Gate{free: NormalizeFeatures(free)}
}

// Allows reports whether feature may be used under d.
func (g *Gate) Allows(d Decision, feature string) bool {
	if slices.Contains(g.free, feature) {
		return true
	}
	return HasFeature(d, feature) || HasFeature(d, FeatureAll)
}

// Require returns a FeatureError when feature is not allowed.
func (g *Gate) Require(d Decision, feature string) error {
	if g.Allows(d, feature) {
		return nil
	}
	reason := d.Reason
	if d.Active {
		reason = "not included in plan " + d.Plan
	}
	return &FeatureError{Feature: feature, Reason: reason}
}

// SummaryMode returns the summary mode to use. A mode that is not allowed
// degrades to extractive and the FeatureError says why.
func (g *Gate) SummaryMode(d Decision, requested string) (string, error) {
	if err := g.Require(d, "summary:"+requested); err != nil {
		return "extractive", err
	}
	return requested, nil
}

// ExportFormat checks that format may be exported under d.
func (g *Gate) ExportFormat(d Decision, format string) error {
	return g.Require(d, "export:"+format)
}

// Available lists every concrete feature allowed under d.
func (g *Gate) Available(d Decision) []string {
	out := make([]string, 0, len(AllFeatures))
	for _, f := range AllFeatures {
		if g.Allows(d, f) {
			out = append(out, f)
		}
	}
	return out
}

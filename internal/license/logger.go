package license

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"unicode/utf8"
)

func (m *Manager) logInfo(ctx context.Context, action, msg string, attrs ...slog.Attr) {
	m.logger.LogAttrs(ctx, slog.LevelInfo, msg, append(attrs, slog.String("action", action))...)
}

func (m *Manager) logWarn(ctx context.Context, action, msg string, attrs ...slog.Attr) {
	m.logger.LogAttrs(ctx, slog.LevelWarn, msg, append(attrs, slog.String("action", action))...)
}

func (m *Manager) logError(ctx context.Context, action, msg string, attrs ...slog.Attr) {
	m.logger.LogAttrs(ctx, slog.LevelError, msg, append(attrs, slog.String("action", action))...)
}

func (m *Manager) logDebug(ctx context.Context, action, msg string, attrs ...slog.Attr) {
	m.logger.LogAttrs(ctx, slog.LevelDebug, msg, append(attrs, slog.String("action", action))...)
}

// decisionAttrs summarizes a decision without personal data.
func decisionAttrs(d Decision) []slog.Attr {
	attrs := []slog.Attr{
		slog.Bool("active", d.Active),
		slog.Bool("in_grace", d.InGrace),
		slog.String("plan", d.Plan),
		slog.String("source", d.Source),
		slog.Int("features", len(d.Features)),
	}
	if d.Reason != "" {
		attrs = append(attrs, slog.String("reason", d.Reason))
	}
	if d.Subject != "" {
		attrs = append(attrs, slog.String("subject", MaskEmail(d.Subject)))
	}
	if d.TokenID != "" {
		attrs = append(attrs, slog.String("token_id", d.TokenID))
	}
	return attrs
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	first, _ := utf8.DecodeRuneInString(local)
	return string(first) + "***@" + domain
}

// TokenDigest identifies a token in logs by the first 16 hex characters of
// its SHA-256.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:16]
}

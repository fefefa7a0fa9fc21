package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

type langCtxKey struct{}

var (
	mu       sync.RWMutex
	bundle   *i18n.Bundle
	fallback string
	tags     []language.Tag // matcher order, default language first
	matcher  language.Matcher
)

// Init loads the translation bundle with lang as the default language.
func Init(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", lang, err)
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return fmt.Errorf("read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		if _, err := b.ParseMessageFileBytes(data, e.Name()); err != nil {
			return fmt.Errorf("parse locale file %s: %w", e.Name(), err)
		}
		slog.Debug("loaded locale file", "file", e.Name())
	}

	supported := []language.Tag{tag}
	for _, t := range b.LanguageTags() {
		if t != tag {
			supported = append(supported, t)
		}
	}

	mu.Lock()
	bundle = b
	fallback = tag.String()
	tags = supported
	matcher = language.NewMatcher(supported)
	mu.Unlock()
	return nil
}

// Supported lists the loaded languages, default first.
func Supported() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.String())
	}
	return out
}

// NewLocalizer creates a localizer preferring lang, then the default.
func NewLocalizer(lang string) *i18n.Localizer {
	mu.RLock()
	defer mu.RUnlock()
	return i18n.NewLocalizer(bundle, lang, fallback)
}

// Negotiate picks the best loaded language for an Accept-Language header.
func Negotiate(acceptLanguage string) string {
	mu.RLock()
	defer mu.RUnlock()
	if matcher == nil || acceptLanguage == "" {
		return fallback
	}
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return fallback
	}
	_, idx, conf := matcher.Match(prefs...)
	if conf == language.No {
		return fallback
	}
	return tags[idx].String()
}

// WithLocalizer stores a localizer and its language in the context.
func WithLocalizer(ctx context.Context, lang string, loc *i18n.Localizer) context.Context {
	ctx = context.WithValue(ctx, ctxKey{}, loc)
	return context.WithValue(ctx, langCtxKey{}, lang)
}

// Lang returns the language chosen for ctx.
func Lang(ctx context.Context) string {
	if l, ok := ctx.Value(langCtxKey{}).(string); ok {
		return l
	}
	mu.RLock()
	defer mu.RUnlock()
	return fallback
}

func localizerFromCtx(ctx context.Context) *i18n.Localizer {
	if loc, ok := ctx.Value(ctxKey{}).(*i18n.Localizer); ok {
		return loc
	}
	return NewLocalizer(Lang(ctx))
}

// T translates a message by ID. Missing IDs come back unchanged.
func T(ctx context.Context, msgID string) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID})
}

// Td translates a message by ID with template data.
func Td(ctx context.Context, msgID string, data map[string]any) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID, TemplateData: data})
}

// Tp translates a pluralized message by ID.
func Tp(ctx context.Context, msgID string, count int) string {
	return localize(ctx, &i18n.LocalizeConfig{
		MessageID:    msgID,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
}

func localize(ctx context.Context, cfg *i18n.LocalizeConfig) string {
	s, err := localizerFromCtx(ctx).Localize(cfg)
	if err != nil {
		slog.Warn("missing translation", "id", cfg.MessageID, "error", err)
		return cfg.MessageID
	}
	return s
}

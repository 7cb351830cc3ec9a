package translatable

import (
	"context"
)

type localeContextKey struct{}

// WithLocale binds the request locale to the context. Repositories resolve
// their current locale from here, falling back to the configured default
// when no locale is bound.
func WithLocale(ctx context.Context, locale string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if locale == "" {
		return ctx
	}
	return context.WithValue(ctx, localeContextKey{}, locale)
}

// LocaleFromContext retrieves the bound locale, if any.
func LocaleFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	locale, ok := ctx.Value(localeContextKey{}).(string)
	return locale, ok && locale != ""
}

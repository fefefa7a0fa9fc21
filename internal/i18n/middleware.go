package i18n

import "net/http"

// Middleware picks a language per request from the lang query parameter or
// Accept-Language and injects the matching localizer.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := r.URL.Query().Get("lang")
			if lang == "" {
				lang = Negotiate(r.Header.Get("Accept-Language"))
			} else {
				lang = Negotiate(lang)
			}
			ctx := WithLocalizer(r.Context(), lang, NewLocalizer(lang))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

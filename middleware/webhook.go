package middleware

import (
	"log/slog"
	"net/http"
)

// SignatureChecker validates the X-Twilio-Signature of a webhook call.
type SignatureChecker interface {
	Valid(url string, params map[string]string, signature string) bool
}

// TwilioSignatureMiddleware rejects webhook calls whose signature does not
// match publicURL and the posted form. A nil checker disables the check.
func TwilioSignatureMiddleware(checker SignatureChecker, publicURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if checker == nil {
				next.ServeHTTP(w, r)
				return
			}
			if err := r.ParseForm(); err != nil {
				respondWithError(w, http.StatusBadRequest, "Invalid form body")
				return
			}

			params := make(map[string]string, len(r.PostForm))
			for key := range r.PostForm {
				params[key] = r.PostForm.Get(key)
			}

			url := publicURL
			if url == "" {
				url = "https://" + r.Host + r.URL.RequestURI()
			}
			if !checker.Valid(url, params, r.Header.Get("X-Twilio-Signature")) {
				slog.WarnContext(r.Context(), "webhook signature rejected", "request_id", GetRequestID(r.Context()))
				respondWithError(w, http.StatusForbidden, "Invalid signature")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package session

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
)

// Middleware loads the session of the authenticated principal and writes it
// back before the response header is sent. Requests without a principal pass
// through untouched.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFrom(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		s := m.Load(r, p.UserID)
		cw := &commitWriter{ResponseWriter: w, commit: func() {
			if err := m.Save(w, s); err != nil {
				zctx.From(r.Context()).Error("Save session", zap.Error(err))
			}
		}}
		next.ServeHTTP(cw, r.WithContext(With(r.Context(), s)))
		cw.flush()
	})
}

// commitWriter runs commit once, right before the header is written.
type commitWriter struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (w *commitWriter) flush() {
	if !w.committed {
		w.committed = true
		w.commit()
	}
}

func (w *commitWriter) WriteHeader(code int) {
	w.flush()
	w.ResponseWriter.WriteHeader(code)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	w.flush()
	return w.ResponseWriter.Write(b)
}

func (w *commitWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

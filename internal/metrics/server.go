package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

const pprofPrefix = "/debug/pprof/"

// ServerConfig controls the HTTP endpoint.
//
// Security:
//   - pprof on a non-loopback address requires Token.
//   - When Token is set every route (healthz included) requires it.
type ServerConfig struct {
	Addr  string
	Token string
	Pprof bool
}

// Mux returns the routes served for cfg. It reports whether pprof was mounted.
func (m *Metrics) Mux(cfg ServerConfig) (*http.ServeMux, bool) {
	wrap := func(h http.Handler) http.Handler { return withAuth(cfg.Token, h) }

	mux := http.NewServeMux()
	mux.Handle("/metrics", wrap(m.Handler()))
	mux.Handle("/healthz", wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})))

	pprofOn := cfg.Pprof && (strings.TrimSpace(cfg.Token) != "" || isLoopbackAddr(cfg.Addr))
	if pprofOn {
		mux.Handle(pprofPrefix, wrap(http.HandlerFunc(hpprof.Index)))
		mux.Handle(pprofPrefix+"cmdline", wrap(http.HandlerFunc(hpprof.Cmdline)))
		mux.Handle(pprofPrefix+"profile", wrap(http.HandlerFunc(hpprof.Profile)))
		mux.Handle(pprofPrefix+"symbol", wrap(http.HandlerFunc(hpprof.Symbol)))
		mux.Handle(pprofPrefix+"trace", wrap(http.HandlerFunc(hpprof.Trace)))
	}
	return mux, pprofOn
}

// Serve exposes the endpoint until ctx is done.
func (m *Metrics) Serve(ctx context.Context, cfg ServerConfig, log logx.Logger) error {
	if log.IsZero() {
		log = logx.Nop()
	}
	mux, pprofOn := m.Mux(cfg)
	if cfg.Pprof && !pprofOn {
		log.Error("pprof not mounted: non-loopback addr requires metrics.token", logx.String("addr", cfg.Addr))
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
	}
	log.Info("metrics listening",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("pprof", pprofOn),
		logx.Bool("token_set", strings.TrimSpace(cfg.Token) != ""),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// withAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func withAuth(token string, h http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			h.ServeHTTP(w, r)
			return
		}
		unauthorized(w)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// empty host means all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

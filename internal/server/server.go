package server

import (
	"context"
	"crypto/tls"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/antoine78910/ecomefficiency-sub002/internal/constants"
	"github.com/antoine78910/ecomefficiency-sub002/internal/proxy"
	"github.com/antoine78910/ecomefficiency-sub002/internal/security"
	"github.com/antoine78910/ecomefficiency-sub002/internal/utils"
)

type Server struct {
	Proxies     map[string]*proxy.Proxy
	Limiter     *security.RequestLimiter
	AuditLogger *security.AuditLogger
	Port        string
	UseTLS      bool
}

func NewServer() (*Server, error) {
	auditLogger, err := security.GetAuditLogger()
	if err != nil {
		log.Printf("Warning: Failed to initialize audit logger: %v", err)
	}

	s := &Server{
		Proxies:     make(map[string]*proxy.Proxy),
		Limiter:     security.NewRequestLimiter(security.NewCounterStore(), constants.DefaultRateLimit, constants.RateLimitWindow),
		AuditLogger: auditLogger,
	}

	for _, cfg := range buildTargets() {
		s.Proxies[cfg.Name] = proxy.New(cfg, auditLogger)
		log.Printf("🌐 Target %s → %s (base %s)", cfg.Name, cfg.Origin.Host, cfg.Route.BasePath)
	}

	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(constants.EndpointHealth, s.HandleHealth)
	mux.HandleFunc(constants.EndpointNewSession, s.HandleNewSession)

	for _, p := range s.Proxies {
		route := p.Config().Route
		limited := s.limit(p)
		mux.Handle(route.BasePath, limited)
		mux.Handle(route.BasePath+"/", limited)
		mux.Handle(route.AssetBase+"/", limited)
	}

	var handler http.Handler = mux
	handler = RecoveryMiddleware(handler)
	handler = CorsMiddleware(handler)
	handler = security.SecurityHeaders(handler)
	handler = GzipMiddleware(handler)
	return handler
}

// limit enforces the per-IP request budget on proxied routes. The limiter
// fails open: an unreachable counter store never takes the proxy down.
func (s *Server) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := security.GetClientIP(r)
		if !s.Limiter.Allow(r.Context(), ip) {
			if s.AuditLogger != nil {
				s.AuditLogger.LogRateLimit(ip, r.URL.Path)
			}
			http.Error(w, constants.MsgRateLimitExceeded, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Run() {
	s.Port = utils.GetEnv("PORT", constants.DefaultPort)
	certFile := utils.GetEnv("PROXY_CERT_FILE", "certs/server.crt")
	keyFile := utils.GetEnv("PROXY_KEY_FILE", "certs/server.key")
	domain := utils.GetEnv("PROXY_DOMAIN", "")

	handler := s.Handler()

	useTLS := false
	var tlsConfig *tls.Config
	var acmeManager *autocert.Manager

	if domain != "" {
		acmeManager = &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(domain),
			Cache:      autocert.DirCache(utils.GetEnv("PROXY_CERT_CACHE", "certs")),
		}
		tlsConfig = acmeManager.TLSConfig()
		useTLS = true
	} else if strings.ToLower(utils.GetEnv("PROXY_ENABLE_TLS", "false")) == "true" {
		if _, err := os.Stat(certFile); err == nil {
			if _, err := os.Stat(keyFile); err == nil {
				useTLS = true
			}
		}
		if !useTLS {
			log.Printf("Warning: PROXY_ENABLE_TLS is true but certs not found at %s", certFile)
		}
	}
	s.UseTLS = useTLS

	var h2Handler http.Handler
	if useTLS {
		h2Handler = handler
	} else {
		h2Handler = h2c.NewHandler(handler, &http2.Server{})
	}

	server := &http.Server{
		Addr:              ":" + s.Port,
		Handler:           h2Handler,
		TLSConfig:         tlsConfig,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	switch {
	case acmeManager != nil:
		log.Printf("🔒 HTTPS enabled via ACME for %s (HTTP/2)", domain)
		go func() {
			// Port 80 answers ACME HTTP-01 challenges and redirects the rest.
			if err := http.ListenAndServe(":80", acmeManager.HTTPHandler(nil)); err != nil && err != http.ErrServerClosed {
				log.Printf("ACME challenge listener error: %v", err)
			}
		}()
		go func() {
			if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
				log.Fatalf("HTTPS server error: %v", err)
			}
		}()
	case useTLS:
		log.Printf("🔒 HTTPS enabled (HTTP/2)")
		go func() {
			if err := server.ListenAndServeTLS(certFile, keyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalf("HTTPS server error: %v", err)
			}
		}()
	default:
		log.Printf("🌐 HTTP mode (HTTP/2 enabled)")
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("HTTP server error: %v", err)
			}
		}()
	}

	log.Printf("🚀 %s starting on :%s", constants.AppName, s.Port)

	<-sigChan
	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	s.Cleanup()
	log.Println("✅ Server stopped")
}

func (s *Server) Cleanup() {
	s.Limiter.Close()
	if s.AuditLogger != nil {
		s.AuditLogger.Close()
	}
}

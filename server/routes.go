// Package server - Haupt-Router und Server-Setup fuer Artemis
// Beinhaltet: Server-Struct, Router-Registrierung, Middleware, Server-Start
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/vlabs/artemis/envconfig"
	"github.com/vlabs/artemis/generate"
	"github.com/vlabs/artemis/history"
	"github.com/vlabs/artemis/logutil"
	"github.com/vlabs/artemis/store"
	"github.com/vlabs/artemis/version"
)

var mode string = gin.ReleaseMode

// Server verwaltet den HTTP-Server, Modell-Store und Historie
type Server struct {
	addr    net.Addr
	store   *store.Store
	history *history.Log // nil when history is disabled

	// sem begrenzt gleichzeitige Generierungen
	sem chan struct{}

	mu     sync.Mutex
	loaded map[string]*generate.Generator
}

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.ReleaseMode
	}

	gin.SetMode(mode)
}

// NewServer erstellt einen Server ueber einem Modell-Store
func NewServer(st *store.Store, hist *history.Log) *Server {
	return &Server{
		store:   st,
		history: hist,
		sem:     make(chan struct{}, envconfig.MaxQueue()),
		loaded:  make(map[string]*generate.Generator),
	}
}

// isLocalIP prueft ob die IP-Adresse zu einem lokalen Interface gehoert
func isLocalIP(ip netip.Addr) bool {
	if interfaces, err := net.Interfaces(); err == nil {
		for _, iface := range interfaces {
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}

			for _, a := range addrs {
				if parsed, _, err := net.ParseCIDR(a.String()); err == nil {
					if parsed.String() == ip.String() {
						return true
					}
				}
			}
		}
	}

	return false
}

// allowedHost prueft ob der Host erlaubt ist
func allowedHost(host string) bool {
	host = strings.ToLower(host)

	if host == "" || host == "localhost" {
		return true
	}

	if hostname, err := os.Hostname(); err == nil && host == strings.ToLower(hostname) {
		return true
	}

	tlds := []string{
		"localhost",
		"local",
		"internal",
	}

	// Pruefe ob der Host eine lokale TLD hat
	for _, tld := range tlds {
		if strings.HasSuffix(host, "."+tld) {
			return true
		}
	}

	return false
}

// allowedHostsMiddleware blockiert Anfragen von nicht erlaubten Hosts
func allowedHostsMiddleware(addr net.Addr) gin.HandlerFunc {
	return func(c *gin.Context) {
		if addr == nil {
			c.Next()
			return
		}

		if addr, err := netip.ParseAddrPort(addr.String()); err == nil && !addr.Addr().IsLoopback() {
			c.Next()
			return
		}

		host, _, err := net.SplitHostPort(c.Request.Host)
		if err != nil {
			host = c.Request.Host
		}

		if addr, err := netip.ParseAddr(host); err == nil {
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || isLocalIP(addr) {
				c.Next()
				return
			}
		}

		if allowedHost(host) {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}

			c.Next()
			return
		}

		c.AbortWithStatus(http.StatusForbidden)
	}
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() (http.Handler, error) {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
	)

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "Artemis is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "Artemis is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	// Model management
	r.HEAD("/api/tags", s.ListHandler)
	r.GET("/api/tags", s.ListHandler)
	r.POST("/api/show", s.ShowHandler)
	r.DELETE("/api/delete", s.DeleteHandler)

	// Generation
	r.POST("/api/generate", s.GenerateHandler)
	r.GET("/api/history", s.HistoryHandler)

	return r, nil
}

// Serve startet den HTTP-Server auf dem Listener
func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	st, err := store.Open(envconfig.Models())
	if err != nil {
		return err
	}

	var hist *history.Log
	if !envconfig.NoHistory() {
		hist, err = history.Open(envconfig.HistoryDB())
		if err != nil {
			slog.Warn("history disabled", "error", err)
		}
	}

	s := NewServer(st, hist)
	s.addr = ln.Addr()

	h, err := s.GenerateRoutes()
	if err != nil {
		return err
	}

	http.Handle("/", h)

	ctx, done := context.WithCancel(context.Background())

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	srvr := &http.Server{
		// http.DefaultServeMux gives us net/http/pprof for free.
		Handler: nil,
	}

	// listen for ctrl+c and shut down cleanly
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		srvr.Close()
		if hist != nil {
			hist.Close()
		}
		done()
	}()

	err = srvr.Serve(ln)
	// If the server is closed from the signal handler, wait for the ctx
	// to be done, otherwise error out quickly
	if !slices.Contains([]error{http.ErrServerClosed}, err) {
		return err
	}
	<-ctx.Done()
	return nil
}

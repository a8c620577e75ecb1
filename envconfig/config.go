// config.go - Haupt-Konfigurationsfunktionen fuer Artemis
//
// Dieses Modul enthaelt:
// - Host: Gibt Scheme und Host zurueck (ARTEMIS_HOST)
// - AllowedOrigins: Gibt erlaubte Origins zurueck (ARTEMIS_ORIGINS)
// - Models: Gibt Model-Verzeichnis zurueck (ARTEMIS_MODELS)
// - HistoryDB: Gibt Pfad der Generierungs-Historie zurueck (ARTEMIS_HISTORY)
// - LogLevel: Gibt Log-Level zurueck (ARTEMIS_DEBUG)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Host gibt Scheme und Host zurueck
// Konfigurierbar via ARTEMIS_HOST
// Default: http://127.0.0.1:8356
func Host() *url.URL {
	defaultPort := "8356"

	s := strings.TrimSpace(Var("ARTEMIS_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err == nil && host == "" {
		host = "127.0.0.1"
	}
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// AllowedOrigins gibt erlaubte Origins zurueck
// Konfigurierbar via ARTEMIS_ORIGINS (komma-separiert)
// Enthaelt Standard-Origins fuer localhost
func AllowedOrigins() (origins []string) {
	if s := Var("ARTEMIS_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	// Standard-Origins fuer localhost
	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	// App-Protokolle
	origins = append(origins,
		"app://*",
		"file://*",
		"vscode-webview://*",
		"vscode-file://*",
	)

	return origins
}

// Models gibt das Model-Verzeichnis zurueck
// Konfigurierbar via ARTEMIS_MODELS
// Default: $HOME/.artemis/models
func Models() string {
	if s := Var("ARTEMIS_MODELS"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}

	return filepath.Join(home, ".artemis", "models")
}

// HistoryDB gibt den Pfad der Generierungs-Historie zurueck
// Konfigurierbar via ARTEMIS_HISTORY
// Default: $HOME/.artemis/history.db
func HistoryDB() string {
	if s := Var("ARTEMIS_HISTORY"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}

	return filepath.Join(home, ".artemis", "history.db")
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via ARTEMIS_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("ARTEMIS_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

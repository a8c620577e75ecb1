// cmd_serve.go - Server-Start und Versions-Anzeige
// Hauptfunktionen: RunServer, versionHandler, checkServerHeartbeat
package cmd

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vlabs/artemis/api"
	"github.com/vlabs/artemis/envconfig"
	"github.com/vlabs/artemis/server"
	"github.com/vlabs/artemis/version"
)

// RunServer - Startet den Artemis-Server
func RunServer(_ *cobra.Command, _ []string) error {
	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	err = server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// versionHandler - Zeigt die Version an
func versionHandler(cmd *cobra.Command, _ []string) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return
	}

	serverVersion, err := client.Version(cmd.Context())
	if err != nil {
		fmt.Println("Warning: could not connect to a running Artemis instance")
	}

	if serverVersion != "" {
		fmt.Printf("artemis version is %s\n", serverVersion)
	}

	if serverVersion != version.Version {
		fmt.Printf("Warning: client version is %s\n", version.Version)
	}
}

// checkServerHeartbeat - Prueft ob der Server erreichbar ist
func checkServerHeartbeat(cmd *cobra.Command, _ []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}
	if err := client.Heartbeat(cmd.Context()); err != nil {
		if strings.Contains(err.Error(), " refused") || strings.Contains(err.Error(), "could not connect") {
			return fmt.Errorf("could not connect to a running Artemis instance at %s, is the server running?", envconfig.Host())
		}
		return err
	}
	return nil
}

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start Artemis",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}
}

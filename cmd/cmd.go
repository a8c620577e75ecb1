// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vlabs/artemis/envconfig"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "artemis",
		Short:         "Diffusion image generator",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	// Commands erstellen
	serveCmd := newServeCmd()
	generateCmd := newGenerateCmd()
	listCmd := newListCmd()
	showCmd := newShowCmd()
	deleteCmd := newDeleteCmd()
	importCmd := newImportCmd()
	historyCmd := newHistoryCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	envs := []envconfig.EnvVar{envVars["ARTEMIS_HOST"]}

	for _, cmd := range []*cobra.Command{
		generateCmd,
		listCmd,
		showCmd,
		deleteCmd,
		importCmd,
		historyCmd,
		serveCmd,
	} {
		switch cmd {
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["ARTEMIS_DEBUG"],
				envVars["ARTEMIS_HOST"],
				envVars["ARTEMIS_MODELS"],
				envVars["ARTEMIS_HISTORY"],
				envVars["ARTEMIS_NOHISTORY"],
				envVars["ARTEMIS_ORIGINS"],
				envVars["ARTEMIS_MAX_BATCH"],
				envVars["ARTEMIS_MAX_QUEUE"],
			})
		case importCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["ARTEMIS_MODELS"]})
		default:
			appendEnvDocs(cmd, envs)
		}
	}

	rootCmd.AddCommand(
		serveCmd,
		generateCmd,
		listCmd,
		showCmd,
		deleteCmd,
		importCmd,
		historyCmd,
	)

	return rootCmd
}

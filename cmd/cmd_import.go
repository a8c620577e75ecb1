// cmd_import.go - Import Command
// Hauptfunktionen: ImportHandler fuer PyTorch-Checkpoints
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vlabs/artemis/convert"
	"github.com/vlabs/artemis/diffusion"
	"github.com/vlabs/artemis/envconfig"
	"github.com/vlabs/artemis/progress"
	"github.com/vlabs/artemis/store"
)

// ImportHandler - Importiert einen PyTorch-Checkpoint in den lokalen Store.
// Laeuft direkt gegen das Modell-Verzeichnis, ohne Server.
func ImportHandler(cmd *cobra.Command, args []string) error {
	path, name := args[0], args[1]

	imageSize, _ := cmd.Flags().GetInt("image-size")
	timesteps, _ := cmd.Flags().GetInt("timesteps")
	schedule, _ := cmd.Flags().GetString("schedule")

	policy, err := diffusion.ParsePolicy(schedule)
	if err != nil {
		return err
	}

	st, err := store.Open(envconfig.Models())
	if err != nil {
		return err
	}

	p := progress.NewProgress(os.Stderr)
	spinner := progress.NewSpinner(fmt.Sprintf("importing %s", path))
	p.Add("import", spinner)

	err = convert.Import(path, name, st, convert.Options{
		ImageSize: imageSize,
		Timesteps: timesteps,
		Schedule:  policy,
	})
	spinner.Stop()
	p.StopAndClear()
	if err != nil {
		return err
	}

	fmt.Printf("imported '%s'\n", name)
	return nil
}

// newImportCmd - Erstellt den import Command
func newImportCmd() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import CHECKPOINT NAME",
		Short: "Import a PyTorch checkpoint into the model store",
		Args:  cobra.ExactArgs(2),
		RunE:  ImportHandler,
	}

	importCmd.Flags().Int("image-size", 32, "Edge length of the images the model was trained on")
	importCmd.Flags().Int("timesteps", 1000, "Diffusion timesteps the model was trained with")
	importCmd.Flags().String("schedule", "linear", "Beta schedule: linear or cosine")

	return importCmd
}

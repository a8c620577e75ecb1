// cmd_show.go - Show und Delete Commands
// Hauptfunktionen: ShowHandler, DeleteHandler
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vlabs/artemis/api"
	"github.com/vlabs/artemis/format"
)

// ShowHandler - Zeigt die Metadaten eines Modells an
func ShowHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	resp, err := client.Show(cmd.Context(), &api.ShowRequest{Model: args[0]})
	if err != nil {
		return err
	}

	d := resp.Details
	fmt.Printf("  Model\n")
	fmt.Printf("    architecture     %s\n", d.Architecture)
	fmt.Printf("    image size       %dx%d\n", d.ImageSize, d.ImageSize)
	fmt.Printf("    channels         %d\n", d.Channels)
	fmt.Printf("    classes          %d\n", d.ClassCount)
	fmt.Printf("    base channels    %d\n", d.BaseChannels)
	fmt.Printf("    parameters       %s\n", format.HumanNumber(d.ParameterCount))
	fmt.Printf("    file size        %s\n", format.HumanBytes(resp.Size))
	fmt.Printf("\n")
	fmt.Printf("  Diffusion\n")
	fmt.Printf("    timesteps        %d\n", d.Timesteps)
	fmt.Printf("    beta schedule    %s\n", d.BetaSchedule)
	fmt.Printf("\n")

	return nil
}

// DeleteHandler - Loescht ein Modell vom Server
func DeleteHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	for _, name := range args {
		if err := client.Delete(cmd.Context(), &api.DeleteRequest{Model: name}); err != nil {
			return err
		}
		fmt.Printf("deleted '%s'\n", name)
	}

	return nil
}

// newShowCmd - Erstellt den show Command
func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "show MODEL",
		Short:   "Show information for a model",
		Args:    cobra.ExactArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    ShowHandler,
	}
}

// newDeleteCmd - Erstellt den rm Command
func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm MODEL [MODEL...]",
		Aliases: []string{"delete"},
		Short:   "Remove a model",
		Args:    cobra.MinimumNArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    DeleteHandler,
	}
}

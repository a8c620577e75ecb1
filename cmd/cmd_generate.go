// cmd_generate.go - Generate Command
// Hauptfunktionen: GenerateHandler mit Fortschrittsbalken und PNG-Ausgabe
package cmd

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vlabs/artemis/api"
	"github.com/vlabs/artemis/progress"
)

// GenerateHandler - Fordert eine Generierung vom Server an und speichert
// die Bilder als PNG-Dateien
func GenerateHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	req := &api.GenerateRequest{Model: args[0]}

	if cmd.Flags().Changed("class") {
		class, _ := cmd.Flags().GetInt("class")
		req.Class = &class
	}
	if cmd.Flags().Changed("seed") {
		seed, _ := cmd.Flags().GetInt64("seed")
		req.Seed = &seed
	}
	if cmd.Flags().Changed("eta") {
		eta, _ := cmd.Flags().GetFloat64("eta")
		req.Eta = &eta
	}
	req.Batch, _ = cmd.Flags().GetInt("batch")
	req.Steps, _ = cmd.Flags().GetInt("steps")
	req.Sampler, _ = cmd.Flags().GetString("sampler")
	req.Size, _ = cmd.Flags().GetInt("size")
	output, _ := cmd.Flags().GetString("output")

	p := progress.NewProgress(os.Stderr)
	defer p.Stop()

	var bar *progress.Bar
	var totalSteps int64
	var final api.GenerateResponse

	err = client.Generate(cmd.Context(), req, func(resp api.GenerateResponse) error {
		if resp.Done {
			final = resp
			return nil
		}
		if bar == nil {
			totalSteps = int64(resp.TotalSteps)
			bar = progress.NewBar("generating", totalSteps)
			p.Add("generate", bar)
		}
		bar.Set(int64(resp.Step))
		return nil
	})
	if err != nil {
		return err
	}
	if bar != nil {
		bar.Set(totalSteps)
	}
	p.StopAndClear()

	if err := os.MkdirAll(output, 0o755); err != nil {
		return err
	}

	for i, img := range final.Images {
		data, err := base64.StdEncoding.DecodeString(img)
		if err != nil {
			return fmt.Errorf("decode image %d: %w", i, err)
		}

		path := filepath.Join(output, fmt.Sprintf("%s-%d.png", final.ID, i))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		fmt.Println(path)
	}

	fmt.Fprintf(os.Stderr, "seed %d, %s\n", final.Seed, final.TotalDuration)
	return nil
}

// newGenerateCmd - Erstellt den generate Command
func newGenerateCmd() *cobra.Command {
	generateCmd := &cobra.Command{
		Use:     "generate MODEL",
		Short:   "Generate images from a model",
		Args:    cobra.ExactArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    GenerateHandler,
	}

	generateCmd.Flags().Int("class", 0, "Class label to condition on (omit for unconditional)")
	generateCmd.Flags().Int("batch", 1, "Number of images to generate")
	generateCmd.Flags().Int64("seed", 0, "Random seed for reproducible output")
	generateCmd.Flags().Int("steps", 0, "Denoising steps (0 uses the model's full schedule)")
	generateCmd.Flags().String("sampler", "", "Sampler: ddpm or ddim (default ddim)")
	generateCmd.Flags().Float64("eta", 0, "DDIM stochasticity, 0 is deterministic")
	generateCmd.Flags().Int("size", 0, "Resize output to this edge length in pixels")
	generateCmd.Flags().StringP("output", "o", ".", "Directory to write PNG files into")

	return generateCmd
}

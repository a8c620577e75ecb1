// cmd_list.go - List und History Commands
// Hauptfunktionen: ListHandler, HistoryHandler
package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/vlabs/artemis/api"
	"github.com/vlabs/artemis/format"
)

func renderTable(header []string, data [][]string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

// ListHandler - Listet alle installierten Modelle auf
func ListHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	models, err := client.List(cmd.Context())
	if err != nil {
		return err
	}

	var data [][]string

	for _, m := range models.Models {
		if len(args) == 0 || strings.HasPrefix(strings.ToLower(m.Name), strings.ToLower(args[0])) {
			size := fmt.Sprintf("%dx%d", m.Details.ImageSize, m.Details.ImageSize)
			data = append(data, []string{
				m.Name,
				size,
				strconv.Itoa(m.Details.ClassCount),
				format.HumanNumber(m.Details.ParameterCount),
				format.HumanBytes(m.Size),
				format.HumanTime(m.ModifiedAt, "Never"),
			})
		}
	}

	renderTable([]string{"NAME", "IMAGE", "CLASSES", "PARAMS", "SIZE", "MODIFIED"}, data)

	return nil
}

// HistoryHandler - Zeigt die letzten Generierungen an
func HistoryHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	hist, err := client.History(cmd.Context())
	if err != nil {
		return err
	}

	var data [][]string
	for _, g := range hist.Generations {
		class := "-"
		if g.Class != nil {
			class = strconv.Itoa(*g.Class)
		}
		data = append(data, []string{
			g.ID[:8],
			g.Model,
			class,
			strconv.FormatInt(g.Seed, 10),
			strconv.Itoa(g.Steps),
			g.Sampler,
			g.Status,
			format.HumanTime(g.CreatedAt, "Never"),
		})
	}

	renderTable([]string{"ID", "MODEL", "CLASS", "SEED", "STEPS", "SAMPLER", "STATUS", "WHEN"}, data)

	return nil
}

// newListCmd - Erstellt den list Command
func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List models",
		PreRunE: checkServerHeartbeat,
		RunE:    ListHandler,
	}
}

// newHistoryCmd - Erstellt den history Command
func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "history",
		Short:   "Show recent generations",
		PreRunE: checkServerHeartbeat,
		RunE:    HistoryHandler,
	}
}

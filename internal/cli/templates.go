package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List available prompt templates",
	Long: `List the builtin prompt templates plus any YAML templates found in the
template directory (PAPERLENS_TEMPLATE_DIR). A file with the same name
as a builtin overrides it.`,
	RunE: runTemplates,
}

func init() {
	rootCmd.AddCommand(templatesCmd)
}

func runTemplates(cmd *cobra.Command, args []string) error {
	names := templates.Names()
	if len(names) == 0 {
		fmt.Println("No templates found")
		return nil
	}

	for _, name := range names {
		t, err := templates.Get(name)
		if err != nil {
			return err
		}
		mode := "text"
		if t.SupportsMultimodal {
			mode = "multimodal"
		}
		fmt.Printf("%-22s %-10s %-10s %s\n", t.Name, t.OutputFormat, mode, t.Description)
		if len(t.Required) > 0 {
			fmt.Printf("%22s required: %s\n", "", strings.Join(t.Required, ", "))
		}
	}
	return nil
}

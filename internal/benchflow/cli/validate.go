package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benchflow/benchflow/internal/benchflow/template"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate TEMPLATE",
		Short: "Statically validate a workflow template",
		Long: `Parse a workflow template and run the full static validation:
parameter declarations, workflow structure, placeholder references, output
paths, and the result schema.

Examples:
  # Validate a template file
  benchflow validate benchmark.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	// ParseFile already runs the full static validation.
	tmpl, err := template.ParseFile(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s: OK\n", tmpl.Name)
	fmt.Printf("  steps:      %d\n", len(tmpl.Workflow.Workflow.Specification.Steps))
	fmt.Printf("  parameters: %d\n", len(tmpl.Parameters))
	if tmpl.Results != nil {
		fmt.Printf("  results:    %d columns from %s\n", len(tmpl.Results.Columns), tmpl.Results.File)
	}
	if tmpl.Postproc != nil {
		fmt.Println("  postproc:   declared")
	}
	return nil
}

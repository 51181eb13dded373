package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/benchflow/benchflow/internal/benchflow/binder"
	"github.com/benchflow/benchflow/internal/benchflow/engine"
	"github.com/benchflow/benchflow/internal/benchflow/results"
	"github.com/benchflow/benchflow/internal/benchflow/template"
)

func newRunCmd() *cobra.Command {
	var (
		argFlags []string
		count    int
	)

	cmd := &cobra.Command{
		Use:   "run TEMPLATE",
		Short: "Submit runs of a workflow template and report the ranking",
		Long: `Submit one or more runs of a workflow template against the local
executor, wait for completion, and print the run states. Templates with a
result schema additionally print the leaderboard; templates with a postproc
workflow aggregate the completed cohort before reporting.

Arguments are passed as -a name=value. File parameters take a local path;
the file is staged and placed into each run's working directory.

Examples:
  # One run with defaults plus an uploaded names file
  benchflow run benchmark.yaml -a names=./names.txt

  # Three runs with an explicit greeting
  benchflow run benchmark.yaml -a names=./names.txt -a greeting=Hello -n 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd.Context(), args[0], argFlags, count)
		},
	}

	cmd.Flags().StringArrayVarP(&argFlags, "arg", "a", nil, "Run argument as name=value (repeatable)")
	cmd.Flags().IntVarP(&count, "runs", "n", 1, "Number of runs to submit")
	return cmd
}

func runSubmit(ctx context.Context, templatePath string, argFlags []string, count int) error {
	if count < 1 {
		return fmt.Errorf("number of runs must be at least 1, got %d", count)
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := engine.New(cfg, log)
	if err != nil {
		return err
	}

	tmpl, err := template.ParseFile(templatePath)
	if err != nil {
		return err
	}
	if err := eng.RegisterTemplate(tmpl, filepath.Dir(templatePath)); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runIDs := make([]string, 0, count)
	for i := 0; i < count; i++ {
		// File arguments are staged per submission so each run gets its
		// own copy.
		runArgs, err := parseArguments(eng, tmpl, argFlags)
		if err != nil {
			return err
		}
		r, err := eng.Submit(ctx, tmpl.Name, runArgs)
		if err != nil {
			return err
		}
		fmt.Printf("submitted run %s\n", r.ID)
		runIDs = append(runIDs, r.ID)
	}

	eng.Wait()
	if tmpl.Postproc != nil {
		if err := eng.StartCohort(tmpl.Name, runIDs); err != nil {
			return err
		}
		eng.Wait()
	}

	printRuns(eng)
	if tmpl.Results != nil {
		ranking, err := eng.Leaderboard(tmpl.Name)
		if err != nil {
			return err
		}
		printLeaderboard(tmpl.Results, ranking)
	}
	return nil
}

// parseArguments converts -a name=value flags into binder arguments,
// staging the values of file parameters.
func parseArguments(eng *engine.Engine, tmpl *template.Template, argFlags []string) (binder.Arguments, error) {
	args := make(binder.Arguments, len(argFlags))
	for _, flag := range argFlags {
		name, value, found := strings.Cut(flag, "=")
		if !found {
			return nil, fmt.Errorf("argument %q is not of the form name=value", flag)
		}

		spec, declared := tmpl.Parameter(name)
		if declared && spec.DType == template.DTypeFile {
			staged, err := eng.Staging().StageFile(value)
			if err != nil {
				return nil, fmt.Errorf("stage file argument %s: %w", name, err)
			}
			args[name] = binder.File(staged, filepath.Base(value))
			continue
		}
		// Undeclared names pass through as strings; the binder rejects
		// them with the proper error.
		args[name] = value
	}
	return args, nil
}

func printRuns(eng *engine.Engine) {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTATE\tDURATION\tMESSAGE")
	for _, r := range eng.ListRuns() {
		message := ""
		if len(r.Messages) > 0 {
			message = r.Messages[0]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.State, r.Duration().Round(time.Millisecond), message)
	}
	w.Flush()
}

func printLeaderboard(schema *template.ResultSchema, ranking []results.Entry) {
	if len(ranking) == 0 {
		fmt.Println("no scored runs")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	header := "RANK\tRUN"
	for _, col := range schema.Columns {
		header += "\t" + strings.ToUpper(col.Name)
	}
	fmt.Fprintln(w, header)
	for i, entry := range ranking {
		row := fmt.Sprintf("%d\t%s", i+1, entry.RunID)
		for _, col := range schema.Columns {
			value, ok := entry.Values[col.Name]
			if !ok {
				row += "\t-"
				continue
			}
			row += fmt.Sprintf("\t%v", value)
		}
		fmt.Fprintln(w, row)
	}
	w.Flush()
}

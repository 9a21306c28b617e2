package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/emiliopalmerini/abcsmc/internal/ports"
	"github.com/emiliopalmerini/abcsmc/internal/util"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored analyses",
	RunE:    runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored analysis with all its populations",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := NewAppContext(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()
	return listAnalyses(ctx, cmd.OutOrStdout(), app.History)
}

func listAnalyses(ctx context.Context, out io.Writer, repo ports.HistoryRepository) error {
	analyses, err := repo.ListAnalyses(ctx)
	if err != nil {
		return fmt.Errorf("failed to list analyses: %w", err)
	}
	if len(analyses) == 0 {
		fmt.Fprintln(out, "No analyses found.")
		return nil
	}

	generations := make([]int, len(analyses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, a := range analyses {
		g.Go(func() error {
			maxT, err := repo.MaxT(gctx, a.ID)
			generations[i] = maxT + 1
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to count generations: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUUID\tSTARTED\tMODELS\tGENERATIONS\tSTATUS")
	fmt.Fprintln(w, "--\t----\t-------\t------\t-----------\t------")
	for i, a := range analyses {
		status := "running"
		if a.Done() {
			status = "done"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\n",
			a.ID, shortUUID(a.UUID), util.FormatDateTime(a.StartTime), len(a.ModelNames), generations[i], status)
	}
	return w.Flush()
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid analysis id %q", args[0])
	}
	ctx := cmd.Context()
	app, err := NewAppContext(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.History.DeleteAnalysis(ctx, id); err != nil {
		return fmt.Errorf("failed to delete analysis %d: %w", id, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted analysis %d\n", id)
	return nil
}

func shortUUID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/e1-cli/internal/layer"
	"github.com/sells-group/e1-cli/internal/model"
	"github.com/sells-group/e1-cli/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workspace layers and the latest run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		b, err := openBackends(ctx, true)
		if err != nil {
			return err
		}
		defer b.Close()

		w := cmd.OutOrStdout()
		names, err := b.ws.List(ctx)
		if err != nil {
			return eris.Wrap(err, "status: list layers")
		}
		fmt.Fprintf(w, "Workspace (%s):\n", cfg.Workspace.Driver)
		if len(names) == 0 {
			fmt.Fprintln(w, "  no layers, use `e1-cli import` to load some")
		}
		for _, name := range names {
			l, err := b.ws.Open(ctx, name)
			if err != nil {
				return eris.Wrapf(err, "status: open %s", name)
			}
			if err := printLayer(ctx, w, l); err != nil {
				return err
			}
		}

		run, err := b.st.LatestRun(ctx)
		switch {
		case eris.Is(err, store.ErrNotFound):
			fmt.Fprintln(w, "\nNo runs recorded.")
		case err != nil:
			return eris.Wrap(err, "status: latest run")
		default:
			printRun(w, run)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func printLayer(ctx context.Context, w io.Writer, l layer.Layer) error {
	n, err := l.Count(ctx)
	if err != nil {
		return eris.Wrapf(err, "status: count %s", l.Name())
	}
	fields, err := l.Fields(ctx)
	if err != nil {
		return eris.Wrapf(err, "status: fields of %s", l.Name())
	}
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	fmt.Fprintf(w, "  %-20s %8d features  %s\n", l.Name(), n, strings.Join(cols, ", "))
	return nil
}

func printRun(w io.Writer, run *model.Run) {
	fmt.Fprintf(w, "\nLatest run %s: %s (started %s", run.ID, run.Status, run.CreatedAt.Format("2006-01-02 15:04:05"))
	if run.Terminal() {
		fmt.Fprintf(w, ", finished in %s", run.UpdatedAt.Sub(run.CreatedAt).Round(time.Millisecond))
	}
	fmt.Fprintln(w, ")")
	if run.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", strings.TrimSpace(run.Error))
	}
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetsmith/internal/cleaning"
	"github.com/JonMunkholm/sheetsmith/internal/core"
	"github.com/JonMunkholm/sheetsmith/internal/export"
	"github.com/JonMunkholm/sheetsmith/internal/mapping"
	"github.com/JonMunkholm/sheetsmith/internal/validation"
)

func jsonEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc
}

// openSession uploads path and applies the configured strategy. The
// heuristic result applied on upload is kept when the strategy is
// heuristic.
func (o *options) openSession(ctx context.Context, path string) (core.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Summary{}, err
	}
	svc := o.app.Service
	sum, err := svc.CreateSession(ctx, core.Upload{
		FileName:        filepath.Base(path),
		Data:            data,
		Sheet:           o.sheet,
		Schema:          o.schema,
		BusinessContext: o.bizCtx,
	})
	if err != nil {
		return core.Summary{}, err
	}

	strategy, err := mapping.ParseStrategy(o.app.Config.Mapping.Strategy)
	if err != nil {
		return core.Summary{}, err
	}
	if strategy != mapping.StrategyHeuristic {
		if _, err := svc.SuggestMappings(ctx, sum.ID, strategy); err != nil {
			return core.Summary{}, err
		}
		if sum, err = svc.Session(ctx, sum.ID); err != nil {
			return core.Summary{}, err
		}
	}
	return sum, nil
}

// saveSession opens path and freezes its mappings.
func (o *options) saveSession(ctx context.Context, path string) (core.Summary, error) {
	sum, err := o.openSession(ctx, path)
	if err != nil {
		return core.Summary{}, err
	}
	if _, err := o.app.Service.SaveMappings(ctx, sum.ID); err != nil {
		return core.Summary{}, err
	}
	return sum, nil
}

func newMapCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "map <file>",
		Short: "Suggest column mappings for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := o.openSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if o.asJSON {
				return printJSON(out, sum)
			}

			fmt.Fprintf(out, "%s: %d rows, %d columns, schema %s\n", sum.FileName, sum.RowCount, len(sum.Headers), sum.Schema)
			if len(sum.Sheets) > 1 {
				fmt.Fprintf(out, "sheet %s of %s\n", sum.Sheet, strings.Join(sum.Sheets, ", "))
			}
			if sum.DroppedRows > 0 {
				fmt.Fprintf(out, "dropped %d malformed rows\n", sum.DroppedRows)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tTARGET\tCONFIDENCE\tREASON")
			for _, m := range sum.Mappings {
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n", m.SourceColumn, m.TargetField, m.Confidence, m.Reasoning)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(sum.Unmapped) > 0 {
				fmt.Fprintf(out, "unmapped: %s\n", strings.Join(sum.Unmapped, ", "))
			}
			if len(sum.MissingRequired) > 0 {
				fmt.Fprintf(out, "missing required fields: %s\n", strings.Join(sum.MissingRequired, ", "))
			}
			if u := sum.ProviderUsage; u.Calls+u.CachedCalls > 0 {
				fmt.Fprintf(out, "provider: %d calls (%d cached), %d tokens, ~$%.4f\n",
					u.Calls+u.CachedCalls, u.CachedCalls, u.TotalTokens, u.EstimatedCostUSD)
			}
			return nil
		},
	}
}

func newValidateCommand(o *options) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Map a file and report validation issues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sum, err := o.saveSession(ctx, args[0])
			if err != nil {
				return err
			}
			view, err := o.app.Service.Validate(ctx, sum.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if o.asJSON {
				if err := printJSON(out, view.Report); err != nil {
					return err
				}
			} else {
				printIssues(out, view.Report)
			}
			if strict && !view.Valid() {
				return fmt.Errorf("%d validation errors", view.Summary.ErrorCount)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any error is found")
	return cmd
}

func printIssues(w io.Writer, rep validation.Report) {
	fmt.Fprintf(w, "%d rows checked: %d errors, %d warnings\n",
		rep.Summary.TotalRows, rep.Summary.ErrorCount, rep.Summary.WarningCount)
	if len(rep.Errors)+len(rep.Warnings) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tCOLUMN\tSEVERITY\tVALUE\tMESSAGE")
	for _, list := range [][]validation.Issue{rep.Errors, rep.Warnings} {
		for _, is := range list {
			// Rows are shown 1-based below the header line.
			fmt.Fprintf(tw, "%d\t%s\t%s\t%q\t%s\n", is.RowIndex+1, is.Column, is.Severity, is.Value, is.Message)
		}
	}
	_ = tw.Flush()
}

func newCleanCommand(o *options) *cobra.Command {
	var (
		output string
		format string
	)
	cmd := &cobra.Command{
		Use:   "clean <file>",
		Short: "Map, clean and export a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sum, err := o.saveSession(ctx, args[0])
			if err != nil {
				return err
			}
			res, err := o.app.Service.Clean(ctx, sum.ID)
			if err != nil {
				return err
			}
			data, err := o.app.Service.Export(ctx, sum.ID, f)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				if _, err := cmd.OutOrStdout().Write(data); err != nil {
					return err
				}
			} else if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			printChanges(cmd.ErrOrStderr(), res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().StringVar(&format, "format", string(export.FormatCSV), "output format: csv, json or xlsx")
	return cmd
}

func printChanges(w io.Writer, res cleaning.Result) {
	cats := make([]string, 0, len(res.ChangeCounts))
	for c, n := range res.ChangeCounts {
		if n > 0 {
			cats = append(cats, fmt.Sprintf("%s=%d", c, n))
		}
	}
	sort.Strings(cats)
	fmt.Fprintf(w, "cleaned %d rows, %d changes", len(res.CleanedRows), res.TotalChanges)
	if len(cats) > 0 {
		fmt.Fprintf(w, " (%s)", strings.Join(cats, ", "))
	}
	fmt.Fprintln(w)
}

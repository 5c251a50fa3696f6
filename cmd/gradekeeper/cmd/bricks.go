package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/stallev/gradekeeper/cmd/gradekeeper/cmd/cmdutil"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/gate"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/ledger"
)

var bricksCmd = &cobra.Command{
	Use:   "bricks",
	Short: "Bricks reward ledger commands",
}

var bricksIssueFile string

var bricksIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a batch of bricks",
	Long: `Reads a batch from --file (or stdin with "-") in the form
{"issues":[{"pupil_id":"...","academic_year_id":"...","grade_id":"...","quantity":5}]}
and commits it only if no pupil ends up with more bricks than earned points.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := os.Stdin
		if bricksIssueFile != "-" {
			f, err := os.Open(bricksIssueFile)
			if err != nil {
				return fmt.Errorf("open batch file: %w", err)
			}
			defer f.Close()
			in = f
		}

		var batch ledger.IssueBatch
		if err := json.NewDecoder(in).Decode(&batch); err != nil {
			return fmt.Errorf("decode batch: %w", err)
		}

		return withApp(cmd, func(ctx context.Context, app *cmdutil.App) error {
			var issuedBy string
			for _, gradeID := range batch.GradeIDs() {
				caller, err := app.Gate.Require(ctx, gradeID)
				if err != nil {
					return err
				}
				issuedBy = caller.UserID
			}

			issued, err := app.Ledger.Issue(ctx, batch, issuedBy)
			if err != nil {
				return err
			}
			total := 0
			for _, is := range issued {
				total += is.Quantity
			}
			pterm.Success.Printfln("Issued %d bricks across %d entries", total, len(issued))
			return nil
		})
	},
}

var bricksBalanceCmd = &cobra.Command{
	Use:   "balance <pupil-id> <academic-year-id>",
	Short: "Show a pupil's earned points and issued bricks",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *cmdutil.App) error {
			if _, err := app.Gate.RequireAction(ctx, gate.ObjLedger, gate.ActRead); err != nil {
				return err
			}
			key := models.LedgerKey{PupilID: args[0], AcademicYearID: args[1]}
			bal, err := app.Ledger.Balance(ctx, key)
			if err != nil {
				return err
			}
			history, err := app.Ledger.History(ctx, key)
			if err != nil {
				return err
			}

			pterm.Info.Printfln("earned %d, issued %d, available %d", bal.Earned, bal.Issued, bal.Available)
			if len(history) == 0 {
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ISSUED_AT\tQUANTITY\tISSUED_BY")
			for _, is := range history {
				fmt.Fprintf(w, "%s\t%d\t%s\n", is.IssuedAt.Format("2006-01-02 15:04"), is.Quantity, is.IssuedBy)
			}
			return w.Flush()
		})
	},
}

func init() {
	bricksIssueCmd.Flags().StringVarP(&bricksIssueFile, "file", "f", "-", "Batch JSON file, - for stdin")

	rootCmd.AddCommand(bricksCmd)
	bricksCmd.AddCommand(bricksIssueCmd)
	bricksCmd.AddCommand(bricksBalanceCmd)
}

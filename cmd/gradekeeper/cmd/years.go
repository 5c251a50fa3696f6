package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/stallev/gradekeeper/cmd/gradekeeper/cmd/cmdutil"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/gate"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/academicyear"
)

const dateLayout = "2006-01-02"

var yearsCmd = &cobra.Command{
	Use:     "years",
	Aliases: []string{"academic-years"},
	Short:   "Academic year lifecycle commands",
	Long: `Create, activate, complete and delete academic years. A grade has at most
one ACTIVE year; the current one must be completed before another is activated.`,
}

var (
	yearGrade  string
	yearStart  string
	yearEnd    string
	yearStatus string
)

// manageYears runs fn after checking the caller may manage academic years.
func manageYears(cmd *cobra.Command, fn func(ctx context.Context, app *cmdutil.App) error) error {
	return withApp(cmd, func(ctx context.Context, app *cmdutil.App) error {
		if _, err := app.Gate.RequireAction(ctx, gate.ObjAcademicYear, gate.ActManage); err != nil {
			return err
		}
		return fn(ctx, app)
	})
}

var yearsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an academic year for a grade",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := time.Parse(dateLayout, yearStart)
		if err != nil {
			return fmt.Errorf("invalid --start %q: want YYYY-MM-DD", yearStart)
		}
		end, err := time.Parse(dateLayout, yearEnd)
		if err != nil {
			return fmt.Errorf("invalid --end %q: want YYYY-MM-DD", yearEnd)
		}

		return manageYears(cmd, func(ctx context.Context, app *cmdutil.App) error {
			year, err := app.Years.Create(ctx, academicyear.CreateInput{
				GradeID:   yearGrade,
				Name:      args[0],
				StartDate: start,
				EndDate:   end,
				Status:    models.AcademicYearStatus(strings.ToUpper(yearStatus)),
			})
			if err != nil {
				return err
			}
			pterm.Success.Printfln("Created academic year %s (%s) as %s", year.Name, year.ID, year.Status)
			return nil
		})
	},
}

var yearsActivateCmd = &cobra.Command{
	Use:   "activate <year-id>",
	Short: "Activate a finished academic year",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return manageYears(cmd, func(ctx context.Context, app *cmdutil.App) error {
			year, err := app.Years.Activate(ctx, args[0])
			if err != nil {
				return err
			}
			pterm.Success.Printfln("Academic year %s is now ACTIVE", year.Name)
			return nil
		})
	},
}

var yearsCompleteCmd = &cobra.Command{
	Use:   "complete <year-id>",
	Short: "Complete an active academic year",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return manageYears(cmd, func(ctx context.Context, app *cmdutil.App) error {
			year, err := app.Years.Complete(ctx, args[0])
			if err != nil {
				return err
			}
			pterm.Success.Printfln("Academic year %s is now FINISHED", year.Name)
			return nil
		})
	},
}

var yearsCompleteAllCmd = &cobra.Command{
	Use:   "complete-all",
	Short: "Complete every active academic year",
	Long:  `Completes the active year of every grade. Failures are reported per year and do not stop the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return manageYears(cmd, func(ctx context.Context, app *cmdutil.App) error {
			results, err := app.Years.CompleteAll(ctx)
			if err != nil {
				return err
			}

			failed := 0
			for _, res := range results {
				if res.Err != nil {
					failed++
					pterm.Error.Printfln("%s (%s): %v", res.Year.Name, res.Year.ID, res.Err)
					continue
				}
				pterm.Success.Printfln("%s (%s) completed", res.Year.Name, res.Year.ID)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d academic years could not be completed", failed, len(results))
			}
			if len(results) == 0 {
				pterm.Info.Println("No active academic years")
			}
			return nil
		})
	},
}

var yearsDeleteCmd = &cobra.Command{
	Use:   "delete <year-id>",
	Short: "Delete an academic year without lessons",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return manageYears(cmd, func(ctx context.Context, app *cmdutil.App) error {
			if err := app.Years.Delete(ctx, args[0]); err != nil {
				return err
			}
			pterm.Success.Printfln("Deleted academic year %s", args[0])
			return nil
		})
	},
}

var yearsActiveCmd = &cobra.Command{
	Use:   "active <grade-id>",
	Short: "Show the active academic year of a grade",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *cmdutil.App) error {
			if _, err := app.Gate.Require(ctx, args[0]); err != nil {
				return err
			}
			year, err := app.Years.GetActiveYear(ctx, args[0])
			if err != nil {
				return err
			}
			if year == nil {
				pterm.Info.Printfln("Grade %s has no active academic year", args[0])
				return nil
			}
			printYears([]models.AcademicYear{*year})
			return nil
		})
	},
}

var yearsListCmd = &cobra.Command{
	Use:   "list <grade-id>",
	Short: "List the academic years of a grade",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *cmdutil.App) error {
			if _, err := app.Gate.Require(ctx, args[0]); err != nil {
				return err
			}
			years, err := app.Years.ListByGrade(ctx, args[0])
			if err != nil {
				return err
			}
			printYears(years)
			return nil
		})
	},
}

func printYears(years []models.AcademicYear) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSTART\tEND")
	for _, y := range years {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", y.ID, y.Name, y.Status,
			y.StartDate.Format(dateLayout), y.EndDate.Format(dateLayout))
	}
	w.Flush()
}

func init() {
	yearsCreateCmd.Flags().StringVar(&yearGrade, "grade", "", "Grade ID")
	yearsCreateCmd.Flags().StringVar(&yearStart, "start", "", "Start date (YYYY-MM-DD)")
	yearsCreateCmd.Flags().StringVar(&yearEnd, "end", "", "End date (YYYY-MM-DD)")
	yearsCreateCmd.Flags().StringVar(&yearStatus, "status", string(models.AcademicYearFinished), "Initial status (ACTIVE or FINISHED)")
	_ = yearsCreateCmd.MarkFlagRequired("grade")
	_ = yearsCreateCmd.MarkFlagRequired("start")
	_ = yearsCreateCmd.MarkFlagRequired("end")

	rootCmd.AddCommand(yearsCmd)
	yearsCmd.AddCommand(yearsCreateCmd)
	yearsCmd.AddCommand(yearsActivateCmd)
	yearsCmd.AddCommand(yearsCompleteCmd)
	yearsCmd.AddCommand(yearsCompleteAllCmd)
	yearsCmd.AddCommand(yearsDeleteCmd)
	yearsCmd.AddCommand(yearsActiveCmd)
	yearsCmd.AddCommand(yearsListCmd)
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/stallev/gradekeeper/cmd/gradekeeper/cmd/cmdutil"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/gate"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/grade"
)

var gradesCmd = &cobra.Command{
	Use:   "grades",
	Short: "Grade management commands",
}

var gradesCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a grade",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *cmdutil.App) error {
			if _, err := app.Gate.RequireAction(ctx, gate.ObjGrade, gate.ActManage); err != nil {
				return err
			}
			g, err := app.Grades.Create(ctx, grade.CreateInput{Name: args[0]})
			if err != nil {
				return err
			}
			pterm.Success.Printfln("Created grade %s (%s)", g.Name, g.ID)
			return nil
		})
	},
}

var gradesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List grades",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *cmdutil.App) error {
			grades, err := app.Grades.List(ctx)
			if err != nil {
				return err
			}
			if len(grades) == 0 {
				pterm.Info.Println("No grades")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tACTIVE_YEAR")
			for _, g := range grades {
				active := "-"
				year, err := app.Years.GetActiveYear(ctx, g.ID)
				if err != nil {
					pterm.Warning.Printfln("grade %s: %v", g.ID, err)
				} else if year != nil {
					active = year.Name
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", g.ID, g.Name, active)
			}
			return w.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(gradesCmd)
	gradesCmd.AddCommand(gradesCreateCmd)
	gradesCmd.AddCommand(gradesListCmd)
}

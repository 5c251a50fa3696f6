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
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/identity"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/assignment"
)

var teachersCmd = &cobra.Command{
	Use:   "teachers",
	Short: "Teacher to grade assignment commands",
}

// manageAssignments runs fn after checking the caller may manage assignments.
func manageAssignments(cmd *cobra.Command, fn func(ctx context.Context, app *cmdutil.App, caller identity.Identity) error) error {
	return withApp(cmd, func(ctx context.Context, app *cmdutil.App) error {
		caller, err := app.Gate.RequireAction(ctx, gate.ObjAssignment, gate.ActManage)
		if err != nil {
			return err
		}
		return fn(ctx, app, caller)
	})
}

var teachersAssignCmd = &cobra.Command{
	Use:   "assign <user-id> <grade-id>",
	Short: "Give a teacher access to a grade",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return manageAssignments(cmd, func(ctx context.Context, app *cmdutil.App, caller identity.Identity) error {
			a, err := app.Assignments.Assign(ctx, assignment.AssignInput{
				UserID:     args[0],
				GradeID:    args[1],
				AssignedBy: caller.UserID,
			})
			if err != nil {
				return err
			}
			pterm.Success.Printfln("Assigned %s to grade %s", a.UserID, a.GradeID)
			return nil
		})
	},
}

var teachersUnassignCmd = &cobra.Command{
	Use:   "unassign <user-id> <grade-id>",
	Short: "Revoke a teacher's access to a grade",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return manageAssignments(cmd, func(ctx context.Context, app *cmdutil.App, _ identity.Identity) error {
			if err := app.Assignments.Unassign(ctx, args[0], args[1]); err != nil {
				return err
			}
			pterm.Success.Printfln("Unassigned %s from grade %s", args[0], args[1])
			return nil
		})
	},
}

var teachersGradesCmd = &cobra.Command{
	Use:   "grades <user-id>",
	Short: "List the grades a teacher is assigned to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return manageAssignments(cmd, func(ctx context.Context, app *cmdutil.App, _ identity.Identity) error {
			assignments, err := app.Assignments.ListByUser(ctx, args[0])
			if err != nil {
				return err
			}
			if len(assignments) == 0 {
				pterm.Info.Printfln("%s is not assigned to any grade", args[0])
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GRADE_ID\tASSIGNED_AT\tASSIGNED_BY")
			for _, a := range assignments {
				by := a.AssignedBy
				if by == "" {
					by = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", a.GradeID, a.AssignedAt.Format("2006-01-02 15:04"), by)
			}
			return w.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(teachersCmd)
	teachersCmd.AddCommand(teachersAssignCmd)
	teachersCmd.AddCommand(teachersUnassignCmd)
	teachersCmd.AddCommand(teachersGradesCmd)
}

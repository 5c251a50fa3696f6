package migrations

import (
	"context"
	"fmt"

	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20251017000000, down_20251017000000)
}

type tableSpec struct {
	name        string
	model       any
	foreignKeys []string
}

var schemaTables = []tableSpec{
	{name: "grades", model: (*models.Grade)(nil)},
	{
		name:        "academic_years",
		model:       (*models.AcademicYear)(nil),
		foreignKeys: []string{`("grade_id") REFERENCES "grades" ("id") ON DELETE CASCADE`},
	},
	{
		name:  "grade_active_years",
		model: (*models.GradeActiveYear)(nil),
		foreignKeys: []string{
			`("grade_id") REFERENCES "grades" ("id") ON DELETE CASCADE`,
			`("academic_year_id") REFERENCES "academic_years" ("id") ON DELETE CASCADE`,
		},
	},
	{
		name:        "teacher_grade_assignments",
		model:       (*models.TeacherGradeAssignment)(nil),
		foreignKeys: []string{`("grade_id") REFERENCES "grades" ("id") ON DELETE CASCADE`},
	},
	{
		name:  "lessons",
		model: (*models.Lesson)(nil),
		foreignKeys: []string{
			`("grade_id") REFERENCES "grades" ("id") ON DELETE CASCADE`,
			`("academic_year_id") REFERENCES "academic_years" ("id") ON DELETE RESTRICT`,
		},
	},
	{
		name:        "homework_checks",
		model:       (*models.HomeworkCheck)(nil),
		foreignKeys: []string{`("lesson_id") REFERENCES "lessons" ("id") ON DELETE CASCADE`},
	},
	{
		name:        "bricks_issues",
		model:       (*models.BricksIssue)(nil),
		foreignKeys: []string{`("academic_year_id") REFERENCES "academic_years" ("id") ON DELETE RESTRICT`},
	},
	{
		name:        "bricks_balances",
		model:       (*models.BricksBalance)(nil),
		foreignKeys: []string{`("academic_year_id") REFERENCES "academic_years" ("id") ON DELETE RESTRICT`},
	},
}

var schemaIndexes = []struct {
	name string
	sql  string
}{
	{"uq_assignments_user_grade", `CREATE UNIQUE INDEX IF NOT EXISTS uq_assignments_user_grade ON teacher_grade_assignments(user_id, grade_id)`},
	{"idx_assignments_grade", `CREATE INDEX IF NOT EXISTS idx_assignments_grade ON teacher_grade_assignments(grade_id)`},
	{"idx_academic_years_grade", `CREATE INDEX IF NOT EXISTS idx_academic_years_grade ON academic_years(grade_id)`},
	{"idx_academic_years_status", `CREATE INDEX IF NOT EXISTS idx_academic_years_status ON academic_years(status, id)`},
	{"idx_lessons_year", `CREATE INDEX IF NOT EXISTS idx_lessons_year ON lessons(academic_year_id)`},
	{"uq_homework_lesson_pupil", `CREATE UNIQUE INDEX IF NOT EXISTS uq_homework_lesson_pupil ON homework_checks(lesson_id, pupil_id)`},
	{"idx_homework_pupil", `CREATE INDEX IF NOT EXISTS idx_homework_pupil ON homework_checks(pupil_id)`},
	{"idx_bricks_issues_ledger", `CREATE INDEX IF NOT EXISTS idx_bricks_issues_ledger ON bricks_issues(pupil_id, academic_year_id)`},
}

// up_20251017000000 creates the grade, academic year, assignment, lesson and ledger tables
func up_20251017000000(ctx context.Context, db *bun.DB) error {
	for _, t := range schemaTables {
		fmt.Printf(" [up] creating %s table...", t.name)
		q := db.NewCreateTable().Model(t.model).IfNotExists()
		for _, fk := range t.foreignKeys {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
		fmt.Println(" OK")
	}

	for _, idx := range schemaIndexes {
		fmt.Printf(" [up] creating index %s...", idx.name)
		if _, err := db.ExecContext(ctx, idx.sql); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
		fmt.Println(" OK")
	}

	return execPostgres(ctx, db, "[up] adding ledger quantity checks",
		`ALTER TABLE bricks_issues ADD CONSTRAINT chk_bricks_issues_quantity CHECK (quantity > 0)`,
	)
}

// down_20251017000000 drops every table in reverse dependency order
func down_20251017000000(ctx context.Context, db *bun.DB) error {
	for i := len(schemaTables) - 1; i >= 0; i-- {
		t := schemaTables[i]
		fmt.Printf(" [down] dropping %s table...", t.name)
		if _, err := db.NewDropTable().Model(t.model).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop %s table: %w", t.name, err)
		}
		fmt.Println(" OK")
	}
	return nil
}

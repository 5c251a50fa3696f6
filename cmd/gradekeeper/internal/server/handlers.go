package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/access"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/gate"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/identity"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/academicyear"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/assignment"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/grade"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/ledger"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/lesson"
)

// handlers serves the JSON API. Every grade-scoped handler authorizes
// through the request's gate before touching data.
type handlers struct {
	opts RouterOptions
}

func (h *handlers) gate(r *http.Request) *gate.Gate {
	return gateFrom(r.Context(), h.opts.Gate)
}

func (h *handlers) fail(w http.ResponseWriter, err error) {
	writeError(w, h.opts.Logger, err)
}

type sessionResponse struct {
	UserID   string   `json:"user_id"`
	Role     string   `json:"role"`
	Admin    bool     `json:"admin"`
	GradeIDs []string `json:"grade_ids"`
}

// signIn handles POST /auth/session: it rebuilds the caller's grade set.
func (h *handlers) signIn(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.CurrentUser(r.Context())
	resp := sessionResponse{UserID: id.UserID, Role: string(id.Role), Admin: id.Role.IsAdmin(), GradeIDs: []string{}}
	if !id.Role.IsAdmin() {
		resp.GradeIDs = h.gate(r).Cache().Prime(r.Context(), id.UserID).Slice()
	}
	writeJSON(w, http.StatusOK, resp)
}

// signOut handles DELETE /auth/session.
func (h *handlers) signOut(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.CurrentUser(r.Context())
	h.gate(r).Cache().Invalidate(r.Context(), id.UserID, access.ReasonSignOut)
	w.WriteHeader(http.StatusNoContent)
}

// whoAmI handles GET /api/me.
func (h *handlers) whoAmI(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.CurrentUser(r.Context())
	resp := sessionResponse{UserID: id.UserID, Role: string(id.Role), Admin: id.Role.IsAdmin(), GradeIDs: []string{}}
	if !id.Role.IsAdmin() {
		resp.GradeIDs = h.gate(r).Cache().GetGradeIDs(r.Context(), id.UserID).Slice()
	}
	writeJSON(w, http.StatusOK, resp)
}

// listGrades handles GET /api/grades: admins see every grade, teachers their own.
func (h *handlers) listGrades(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	grades, err := h.opts.Grades.List(ctx)
	if err != nil {
		h.fail(w, err)
		return
	}

	id, _ := identity.CurrentUser(ctx)
	g := h.gate(r)
	if g.Can(id.Role, gate.ObjGrade, gate.ActAny) {
		writeJSON(w, http.StatusOK, grades)
		return
	}

	visible := make([]models.Grade, 0, len(grades))
	for _, gr := range grades {
		if g.Authorize(ctx, id, gr.ID) {
			visible = append(visible, gr)
		}
	}
	writeJSON(w, http.StatusOK, visible)
}

// createGrade handles POST /api/grades.
func (h *handlers) createGrade(w http.ResponseWriter, r *http.Request) {
	if _, err := h.gate(r).RequireAction(r.Context(), gate.ObjGrade, gate.ActManage); err != nil {
		h.fail(w, err)
		return
	}
	var in grade.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	g, err := h.opts.Grades.Create(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// getGrade handles GET /api/grades/{gradeID}.
func (h *handlers) getGrade(w http.ResponseWriter, r *http.Request) {
	gradeID := chi.URLParam(r, "gradeID")
	if _, err := h.gate(r).Require(r.Context(), gradeID); err != nil {
		h.fail(w, err)
		return
	}
	g, err := h.opts.Grades.Get(r.Context(), gradeID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// listGradeYears handles GET /api/grades/{gradeID}/academic-years.
func (h *handlers) listGradeYears(w http.ResponseWriter, r *http.Request) {
	gradeID := chi.URLParam(r, "gradeID")
	if _, err := h.gate(r).Require(r.Context(), gradeID); err != nil {
		h.fail(w, err)
		return
	}
	years, err := h.opts.Years.ListByGrade(r.Context(), gradeID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, years)
}

// activeYear handles GET /api/grades/{gradeID}/academic-years/active.
func (h *handlers) activeYear(w http.ResponseWriter, r *http.Request) {
	gradeID := chi.URLParam(r, "gradeID")
	if _, err := h.gate(r).Require(r.Context(), gradeID); err != nil {
		h.fail(w, err)
		return
	}
	year, err := h.opts.Years.GetActiveYear(r.Context(), gradeID)
	if err != nil {
		h.fail(w, err)
		return
	}
	if year == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, year)
}

// createYear handles POST /api/academic-years.
func (h *handlers) createYear(w http.ResponseWriter, r *http.Request) {
	if _, err := h.gate(r).RequireAction(r.Context(), gate.ObjAcademicYear, gate.ActManage); err != nil {
		h.fail(w, err)
		return
	}
	var in academicyear.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	year, err := h.opts.Years.Create(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, year)
}

// getYear handles GET /api/academic-years/{yearID}.
func (h *handlers) getYear(w http.ResponseWriter, r *http.Request) {
	year, ok := h.authorizedYear(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, year)
}

// activateYear handles POST /api/academic-years/{yearID}/activate.
func (h *handlers) activateYear(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.opts.Years.Activate)
}

// completeYear handles POST /api/academic-years/{yearID}/complete.
func (h *handlers) completeYear(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.opts.Years.Complete)
}

func (h *handlers) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) (*models.AcademicYear, error)) {
	if _, err := h.gate(r).RequireAction(r.Context(), gate.ObjAcademicYear, gate.ActManage); err != nil {
		h.fail(w, err)
		return
	}
	year, err := op(r.Context(), chi.URLParam(r, "yearID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, year)
}

type completionResponse struct {
	Year  models.AcademicYear `json:"year"`
	Error string              `json:"error,omitempty"`
}

// completeAll handles POST /api/academic-years/complete-all.
func (h *handlers) completeAll(w http.ResponseWriter, r *http.Request) {
	if _, err := h.gate(r).RequireAction(r.Context(), gate.ObjAcademicYear, gate.ActManage); err != nil {
		h.fail(w, err)
		return
	}
	results, err := h.opts.Years.CompleteAll(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	resp := make([]completionResponse, 0, len(results))
	for _, res := range results {
		cr := completionResponse{Year: res.Year}
		if res.Err != nil {
			cr.Error = res.Err.Error()
		}
		resp = append(resp, cr)
	}
	writeJSON(w, http.StatusOK, resp)
}

// deleteYear handles DELETE /api/academic-years/{yearID}.
func (h *handlers) deleteYear(w http.ResponseWriter, r *http.Request) {
	if _, err := h.gate(r).RequireAction(r.Context(), gate.ObjAcademicYear, gate.ActManage); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.opts.Years.Delete(r.Context(), chi.URLParam(r, "yearID")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listYearLessons handles GET /api/academic-years/{yearID}/lessons.
func (h *handlers) listYearLessons(w http.ResponseWriter, r *http.Request) {
	year, ok := h.authorizedYear(w, r)
	if !ok {
		return
	}
	lessons, err := h.opts.Lessons.ListLessons(r.Context(), year.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lessons)
}

type bricksResponse struct {
	ledger.Balance
	Issues []models.BricksIssue `json:"issues"`
}

// pupilBricks handles GET /api/academic-years/{yearID}/pupils/{pupilID}/bricks.
func (h *handlers) pupilBricks(w http.ResponseWriter, r *http.Request) {
	year, ok := h.authorizedYear(w, r)
	if !ok {
		return
	}
	key := models.LedgerKey{PupilID: chi.URLParam(r, "pupilID"), AcademicYearID: year.ID}
	bal, err := h.opts.Ledger.Balance(r.Context(), key)
	if err != nil {
		h.fail(w, err)
		return
	}
	issues, err := h.opts.Ledger.History(r.Context(), key)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bricksResponse{Balance: *bal, Issues: issues})
}

// authorizedYear loads {yearID} and checks the caller may access its grade.
func (h *handlers) authorizedYear(w http.ResponseWriter, r *http.Request) (*models.AcademicYear, bool) {
	year, err := h.opts.Years.Get(r.Context(), chi.URLParam(r, "yearID"))
	if err != nil {
		h.fail(w, err)
		return nil, false
	}
	if _, err := h.gate(r).Require(r.Context(), year.GradeID); err != nil {
		h.fail(w, err)
		return nil, false
	}
	return year, true
}

// createLesson handles POST /api/lessons.
func (h *handlers) createLesson(w http.ResponseWriter, r *http.Request) {
	var in lesson.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	id, err := h.gate(r).Require(r.Context(), in.GradeID)
	if err != nil {
		h.fail(w, err)
		return
	}
	in.CreatedBy = id.UserID
	l, err := h.opts.Lessons.CreateLesson(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// recordHomework handles POST /api/lessons/{lessonID}/homework-checks.
func (h *handlers) recordHomework(w http.ResponseWriter, r *http.Request) {
	var in lesson.HomeworkInput
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	in.LessonID = chi.URLParam(r, "lessonID")
	id, err := h.gate(r).Require(r.Context(), in.GradeID)
	if err != nil {
		h.fail(w, err)
		return
	}
	in.CheckedBy = id.UserID
	check, err := h.opts.Lessons.RecordHomeworkCheck(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, check)
}

// listHomework handles GET /api/lessons/{lessonID}/homework-checks.
func (h *handlers) listHomework(w http.ResponseWriter, r *http.Request) {
	l, err := h.opts.Lessons.GetLesson(r.Context(), chi.URLParam(r, "lessonID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if _, err := h.gate(r).Require(r.Context(), l.GradeID); err != nil {
		h.fail(w, err)
		return
	}
	checks, err := h.opts.Lessons.ListHomeworkChecks(r.Context(), l.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checks)
}

// issueBricks handles POST /api/bricks. The caller must be allowed into
// every grade the batch touches.
func (h *handlers) issueBricks(w http.ResponseWriter, r *http.Request) {
	var batch ledger.IssueBatch
	if err := decodeJSON(r, &batch); err != nil {
		h.fail(w, err)
		return
	}
	id, _ := identity.CurrentUser(r.Context())
	for _, gradeID := range batch.GradeIDs() {
		if _, err := h.gate(r).Require(r.Context(), gradeID); err != nil {
			h.fail(w, err)
			return
		}
	}
	issued, err := h.opts.Ledger.Issue(r.Context(), batch, id.UserID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}

// assign handles POST /api/assignments.
func (h *handlers) assign(w http.ResponseWriter, r *http.Request) {
	id, err := h.gate(r).RequireAction(r.Context(), gate.ObjAssignment, gate.ActManage)
	if err != nil {
		h.fail(w, err)
		return
	}
	var in assignment.AssignInput
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	in.AssignedBy = id.UserID
	a, err := h.opts.Assignments.Assign(r.Context(), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// unassign handles DELETE /api/assignments/{userID}/{gradeID}.
func (h *handlers) unassign(w http.ResponseWriter, r *http.Request) {
	if _, err := h.gate(r).RequireAction(r.Context(), gate.ObjAssignment, gate.ActManage); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.opts.Assignments.Unassign(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "gradeID")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// teacherAssignments handles GET /api/teachers/{userID}/assignments. Teachers
// may read their own.
func (h *handlers) teacherAssignments(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if id, _ := identity.CurrentUser(r.Context()); id.UserID != userID {
		if _, err := h.gate(r).RequireAction(r.Context(), gate.ObjAssignment, gate.ActManage); err != nil {
			h.fail(w, err)
			return
		}
	}
	out, err := h.opts.Assignments.ListByUser(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// gradeAssignments handles GET /api/grades/{gradeID}/assignments.
func (h *handlers) gradeAssignments(w http.ResponseWriter, r *http.Request) {
	if _, err := h.gate(r).RequireAction(r.Context(), gate.ObjAssignment, gate.ActManage); err != nil {
		h.fail(w, err)
		return
	}
	out, err := h.opts.Assignments.ListByGrade(r.Context(), chi.URLParam(r, "gradeID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

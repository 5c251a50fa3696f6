package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/access"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/apperrors"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/dbtest"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/db/models"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/gate"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/identity"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/repository"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/academicyear"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/assignment"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/grade"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/ledger"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/lesson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cookieSecret = "0123456789abcdef0123456789abcdef"

type testServer struct {
	handler http.Handler
}

func newTestServer(t *testing.T, cookies bool) *testServer {
	t.Helper()
	db := dbtest.New(t)
	logger := zerolog.Nop()

	grades := repository.NewBunGradeRepository(db)
	years := repository.NewBunAcademicYearRepository(db)
	assignments := repository.NewBunAssignmentRepository(db)
	lessons := repository.NewBunLessonRepository(db)

	var store access.EntryStore = access.NewLRUStore(100, access.DefaultTTL)
	var codec *access.CookieCodec
	if cookies {
		store = access.NopStore{}
		codec = access.NewCookieCodec("grade_access", []byte(cookieSecret))
		codec.Secure = false
	}
	cache := access.New(store, assignments, access.DefaultTTL)
	g, err := gate.New(cache, logger, nil)
	require.NoError(t, err)

	opts := RouterOptions{
		Grades:      grade.NewService(grades, logger),
		Years:       academicyear.NewService(years, logger),
		Assignments: assignment.NewService(assignments, cache, logger),
		Lessons:     lesson.NewService(lessons, years, logger),
		Ledger:      ledger.NewService(repository.NewBunLedgerRepository(db), years, logger),
		Gate:        g,
		Resolver:    identity.NewResolver(identity.ClaimsConfig{}),
		Cookies:     codec,
		Logger:      logger,
	}
	return &testServer{handler: NewRouter(opts)}
}

func token(t *testing.T, userID string, role identity.Role) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": userID, "role": string(role)}).
		SignedString([]byte("upstream-key"))
	require.NoError(t, err)
	return "Bearer " + s
}

type call struct {
	method  string
	path    string
	body    any
	auth    string
	cookies []*http.Cookie
}

func (s *testServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.auth != "" {
		req.Header.Set("Authorization", c.auth)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func yearBody(gradeID, name, status string) map[string]any {
	return map[string]any{
		"grade_id":   gradeID,
		"name":       name,
		"start_date": "2025-09-01T00:00:00Z",
		"end_date":   "2026-06-30T00:00:00Z",
		"status":     status,
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, false)
	rec := s.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, call{method: http.MethodGet, path: "/api/grades"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, call{method: http.MethodGet, path: "/api/grades", auth: "Bearer not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, call{method: http.MethodGet, path: "/api/me", auth: token(t, "t1", identity.RoleTeacher)})
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[sessionResponse](t, rec)
	assert.Equal(t, "t1", me.UserID)
	assert.False(t, me.Admin)
	assert.Empty(t, me.GradeIDs)
}

func TestAcademicYearLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, false)
	admin := token(t, "a1", identity.RoleAdmin)
	teacher := token(t, "t1", identity.RoleTeacher)

	rec := s.do(t, call{method: http.MethodPost, path: "/api/grades", auth: admin, body: map[string]any{"name": "5A"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	g := decode[models.Grade](t, rec)

	rec = s.do(t, call{method: http.MethodPost, path: "/api/academic-years", auth: teacher, body: yearBody(g.ID, "2025/26", "ACTIVE")})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, call{method: http.MethodPost, path: "/api/academic-years", auth: admin, body: yearBody(g.ID, "2024/25", "ACTIVE")})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	y1 := decode[models.AcademicYear](t, rec)

	rec = s.do(t, call{method: http.MethodPost, path: "/api/academic-years", auth: admin, body: yearBody(g.ID, "2025/26", "ACTIVE")})
	require.Equal(t, http.StatusConflict, rec.Code)
	conflict := decode[errorResponse](t, rec)
	assert.Equal(t, y1.ID, conflict.ActiveYearID)
	assert.Equal(t, "2024/25", conflict.ActiveYearName)

	rec = s.do(t, call{method: http.MethodPost, path: "/api/academic-years", auth: admin, body: yearBody(g.ID, "", "ACTIVE")})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decode[errorResponse](t, rec).Fields)

	rec = s.do(t, call{method: http.MethodPost, path: "/api/academic-years/" + y1.ID + "/activate", auth: admin})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, call{method: http.MethodGet, path: "/api/grades/" + g.ID + "/academic-years/active", auth: admin})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, y1.ID, decode[models.AcademicYear](t, rec).ID)

	rec = s.do(t, call{method: http.MethodPost, path: "/api/academic-years/complete-all", auth: admin})
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[[]completionResponse](t, rec)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, models.AcademicYearFinished, results[0].Year.Status)

	rec = s.do(t, call{method: http.MethodGet, path: "/api/grades/" + g.ID + "/academic-years/active", auth: admin})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, call{method: http.MethodDelete, path: "/api/academic-years/" + y1.ID, auth: admin})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, call{method: http.MethodGet, path: "/api/academic-years/" + y1.ID, auth: admin})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestTeacherFlow walks a teacher from sign-in through lessons and rewards:
// access is granted by assignment without waiting for the cache TTL, and the
// ledger rejects a batch that overshoots earned points.
func TestTeacherFlow(t *testing.T) {
	s := newTestServer(t, false)
	admin := token(t, "a1", identity.RoleAdmin)
	teacher := token(t, "t1", identity.RoleTeacher)

	rec := s.do(t, call{method: http.MethodPost, path: "/api/grades", auth: admin, body: map[string]any{"name": "5A"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	g := decode[models.Grade](t, rec)
	rec = s.do(t, call{method: http.MethodPost, path: "/api/grades", auth: admin, body: map[string]any{"name": "6A"}})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, call{method: http.MethodPost, path: "/api/academic-years", auth: admin, body: yearBody(g.ID, "2025/26", "ACTIVE")})
	require.Equal(t, http.StatusCreated, rec.Code)
	year := decode[models.AcademicYear](t, rec)

	rec = s.do(t, call{method: http.MethodPost, path: "/auth/session", auth: teacher})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[sessionResponse](t, rec).GradeIDs)

	rec = s.do(t, call{method: http.MethodGet, path: "/api/grades/" + g.ID, auth: teacher})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, call{method: http.MethodPost, path: "/api/assignments", auth: admin, body: map[string]any{"user_id": "t1", "grade_id": g.ID}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, call{method: http.MethodGet, path: "/api/grades/" + g.ID, auth: teacher})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, call{method: http.MethodGet, path: "/api/grades", auth: teacher})
	require.Equal(t, http.StatusOK, rec.Code)
	visible := decode[[]models.Grade](t, rec)
	require.Len(t, visible, 1)
	assert.Equal(t, g.ID, visible[0].ID)

	rec = s.do(t, call{method: http.MethodPost, path: "/api/lessons", auth: teacher, body: map[string]any{
		"grade_id": g.ID, "academic_year_id": year.ID, "topic": "Fractions", "held_on": "2025-09-08T00:00:00Z",
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	l := decode[models.Lesson](t, rec)
	assert.Equal(t, "t1", l.CreatedBy)

	rec = s.do(t, call{method: http.MethodPost, path: "/api/lessons/" + l.ID + "/homework-checks", auth: teacher, body: map[string]any{
		"pupil_id": "p1", "grade_id": g.ID, "scores": map[string]int{"accuracy": 12, "neatness": 8},
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 20, decode[models.HomeworkCheck](t, rec).Points)

	issue := func(qty int) *httptest.ResponseRecorder {
		return s.do(t, call{method: http.MethodPost, path: "/api/bricks", auth: teacher, body: map[string]any{
			"issues": []map[string]any{{"pupil_id": "p1", "academic_year_id": year.ID, "grade_id": g.ID, "quantity": qty}},
		}})
	}
	rec = issue(15)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = issue(10)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Error, "earned only 20")

	rec = s.do(t, call{method: http.MethodGet, path: fmt.Sprintf("/api/academic-years/%s/pupils/p1/bricks", year.ID), auth: teacher})
	require.Equal(t, http.StatusOK, rec.Code)
	bricks := decode[bricksResponse](t, rec)
	assert.Equal(t, 15, bricks.Issued)
	assert.Equal(t, 5, bricks.Available)
	assert.Len(t, bricks.Issues, 1)

	rec = s.do(t, call{method: http.MethodDelete, path: "/api/academic-years/" + year.ID, auth: admin})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, call{method: http.MethodDelete, path: "/api/assignments/t1/" + g.ID, auth: admin})
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, call{method: http.MethodGet, path: "/api/academic-years/" + year.ID + "/lessons", auth: teacher})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCookieBackend(t *testing.T) {
	s := newTestServer(t, true)
	admin := token(t, "a1", identity.RoleAdmin)
	teacher := token(t, "t1", identity.RoleTeacher)

	rec := s.do(t, call{method: http.MethodPost, path: "/api/grades", auth: admin, body: map[string]any{"name": "5A"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	g := decode[models.Grade](t, rec)
	rec = s.do(t, call{method: http.MethodPost, path: "/api/assignments", auth: admin, body: map[string]any{"user_id": "t1", "grade_id": g.ID}})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, call{method: http.MethodPost, path: "/auth/session", auth: teacher})
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "grade_access", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, []string{g.ID}, decode[sessionResponse](t, rec).GradeIDs)

	rec = s.do(t, call{method: http.MethodGet, path: "/api/grades/" + g.ID, auth: teacher, cookies: cookies})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies(), "a fresh cookie is not rewritten")

	// another teacher presenting t1's cookie is refused the grade
	rec = s.do(t, call{method: http.MethodGet, path: "/api/grades/" + g.ID, auth: token(t, "t2", identity.RoleTeacher), cookies: cookies})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, call{method: http.MethodDelete, path: "/auth/session", auth: teacher, cookies: cookies})
	require.Equal(t, http.StatusNoContent, rec.Code)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Less(t, cleared[0].MaxAge, 0)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.NewValidationError(errors.New("bad")), http.StatusBadRequest},
		{&apperrors.UnauthorizedError{}, http.StatusUnauthorized},
		{&apperrors.ForbiddenError{UserID: "u"}, http.StatusForbidden},
		{&apperrors.NotFoundError{Kind: "grade", ID: "g"}, http.StatusNotFound},
		{&apperrors.ConflictError{GradeID: "g"}, http.StatusConflict},
		{&apperrors.InvalidStateError{YearID: "y"}, http.StatusConflict},
		{&apperrors.HasDependentsError{YearID: "y"}, http.StatusConflict},
		{&apperrors.ConservationViolationError{PupilID: "p"}, http.StatusUnprocessableEntity},
		{apperrors.NewStoreError("op", errors.New("io")), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", &apperrors.NotFoundError{}), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T", tt.err), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestWriteError_HidesStoreDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, zerolog.Nop(), apperrors.NewStoreError("list grades", errors.New("dial tcp 10.0.0.5:5432: refused")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode[errorResponse](t, rec).Error)
}

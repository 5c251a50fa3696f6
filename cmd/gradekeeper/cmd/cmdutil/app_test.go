package cmdutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/config"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/identity"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/migrations"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/assignment"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/services/grade"
)

func loadConfig(t *testing.T, set map[string]any) *config.Config {
	t.Helper()
	v := viper.New()
	v.Set("database_url", "file:"+filepath.Join(t.TempDir(), "gradekeeper.db"))
	for k, val := range set {
		v.Set(k, val)
	}
	cfg, err := config.LoadFrom(v)
	require.NoError(t, err)
	return cfg
}

func TestNewApp_WiresServicesAndGate(t *testing.T) {
	ctx := context.Background()
	app, err := NewApp(ctx, loadConfig(t, nil))
	require.NoError(t, err)
	defer app.Close()

	_, err = migrations.Apply(ctx, app.DB)
	require.NoError(t, err)
	assert.Nil(t, app.Cookies)

	g, err := app.Grades.Create(ctx, grade.CreateInput{Name: "5A"})
	require.NoError(t, err)

	teacher := identity.Identity{UserID: "t1", Role: identity.RoleTeacher}
	assert.False(t, app.Gate.Authorize(ctx, teacher, g.ID))

	_, err = app.Assignments.Assign(ctx, assignment.AssignInput{UserID: "t1", GradeID: g.ID})
	require.NoError(t, err)
	assert.True(t, app.Gate.Authorize(ctx, teacher, g.ID), "assignment must invalidate the cached grade set")

	sysCtx := identity.WithIdentity(ctx, identity.System)
	_, err = app.Gate.Require(sysCtx, g.ID)
	assert.NoError(t, err)
}

func TestNewApp_CookieBackend(t *testing.T) {
	app, err := NewApp(context.Background(), loadConfig(t, map[string]any{
		"access.backend":       config.AccessBackendCookie,
		"access.cookie_secret": "0123456789abcdef0123456789abcdef",
	}))
	require.NoError(t, err)
	defer app.Close()

	require.NotNil(t, app.Cookies)
	assert.Equal(t, "grade_access", app.Cookies.Name())
}

func TestNewApp_RedisUnreachable(t *testing.T) {
	_, err := NewApp(context.Background(), loadConfig(t, map[string]any{
		"access.backend":    config.AccessBackendRedis,
		"access.redis_addr": "127.0.0.1:1",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to redis")
}

func TestClose_NilSafe(t *testing.T) {
	var app *App
	assert.NotPanics(t, app.Close)
}

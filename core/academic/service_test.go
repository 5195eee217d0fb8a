package academic_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/user"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	testutil "github.com/trezcool/academia/tests"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	core.InitValidators(v, core.NewTranslator())
	return v
}

func setup(t *testing.T) (*academic.Service, academic.Repository, academic.School) {
	db := inmemdb.New()
	repo := inmemdb.NewAcademicRepository(db)
	school := testutil.CreateSchool(t, repo, "Green Valley")
	return academic.NewService(repo, db, inmemdb.NewUserRepository(db)), repo, school
}

func newSession(t *testing.T, name, start, end string, active bool) academic.NewSession {
	t.Helper()
	ns := academic.NewSession{Name: name, StartDate: start, EndDate: end, Active: active}
	require.NoError(t, ns.Validate(validate))
	return ns
}

func TestNewSession_Validate(t *testing.T) {
	tests := []struct {
		name    string
		ns      academic.NewSession
		wantErr bool
	}{
		{"valid", academic.NewSession{Name: " 2024-2025 ", StartDate: "2024-04-01", EndDate: "2025-03-31"}, false},
		{"blank name", academic.NewSession{Name: "   ", StartDate: "2024-04-01", EndDate: "2025-03-31"}, true},
		{"bad date", academic.NewSession{Name: "2024", StartDate: "01/04/2024", EndDate: "2025-03-31"}, true},
		{"end before start", academic.NewSession{Name: "2024", StartDate: "2025-03-31", EndDate: "2024-04-01"}, true},
		{"same day", academic.NewSession{Name: "2024", StartDate: "2024-04-01", EndDate: "2024-04-01"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ns.Validate(validate)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "2024-2025", tt.ns.Name)
			}
		})
	}

	ns := academic.NewSession{Name: "2024", StartDate: "2025-03-31", EndDate: "2024-04-01"}
	var vErr *core.ValidationError
	require.True(t, errors.As(ns.Validate(validate), &vErr))
	require.Len(t, vErr.Fields, 1)
	assert.Equal(t, "endDate", vErr.Fields[0].Field)
}

func TestService_CreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("overlap", func(t *testing.T) {
		svc, _, school := setup(t)
		_, err := svc.CreateSession(ctx, school.ID, newSession(t, "2024-2025", "2024-04-01", "2025-03-31", true))
		require.NoError(t, err)

		_, err = svc.CreateSession(ctx, school.ID, newSession(t, "2025", "2025-03-31", "2026-03-30", false))
		assert.True(t, core.IsArgument(err), "%v", err)

		next, err := svc.CreateSession(ctx, school.ID, newSession(t, "2025-2026", "2025-04-01", "2026-03-31", false))
		require.NoError(t, err)
		assert.False(t, next.Active)
		assert.Equal(t, testutil.Date(t, "2025-04-01"), next.StartDate)
	})

	t.Run("single active session", func(t *testing.T) {
		svc, _, school := setup(t)
		_, err := svc.CreateSession(ctx, school.ID, newSession(t, "2024-2025", "2024-04-01", "2025-03-31", true))
		require.NoError(t, err)

		_, err = svc.CreateSession(ctx, school.ID, newSession(t, "2025-2026", "2025-04-01", "2026-03-31", true))
		assert.True(t, core.IsArgument(err), "%v", err)

		sessions, err := svc.QuerySessions(ctx, school.ID)
		require.NoError(t, err)
		assert.Len(t, sessions, 1)
	})

	t.Run("unknown school", func(t *testing.T) {
		svc, _, _ := setup(t)
		_, err := svc.CreateSession(ctx, 404, newSession(t, "2024-2025", "2024-04-01", "2025-03-31", false))
		assert.True(t, core.IsNotFound(err), "%v", err)
	})
}

func TestService_ActivateSession(t *testing.T) {
	ctx := context.Background()
	svc, repo, school := setup(t)
	current := testutil.CreateSession(t, repo, school.ID, "2024-2025", "2024-04-01", "2025-03-31", true)
	next := testutil.CreateSession(t, repo, school.ID, "2025-2026", "2025-04-01", "2026-03-31", false)

	activated, err := svc.ActivateSession(ctx, school.ID, next.ID)
	require.NoError(t, err)
	assert.True(t, activated.Active)

	sc, err := svc.ResolveSessionContext(ctx, school.ID)
	require.NoError(t, err)
	assert.Equal(t, next.ID, sc.Session.ID)
	assert.Equal(t, school.ID, sc.SchoolID)

	old, err := svc.GetSession(ctx, school.ID, current.ID)
	require.NoError(t, err)
	assert.False(t, old.Active)

	// already active
	activated, err = svc.ActivateSession(ctx, school.ID, next.ID)
	require.NoError(t, err)
	assert.True(t, activated.Active)

	_, err = svc.ActivateSession(ctx, school.ID, 404)
	assert.True(t, core.IsNotFound(err), "%v", err)
}

func TestService_ResolveSessionContext(t *testing.T) {
	ctx := context.Background()
	svc, repo, school := setup(t)
	testutil.CreateSession(t, repo, school.ID, "2024-2025", "2024-04-01", "2025-03-31", false)

	_, err := svc.ResolveSessionContext(ctx, school.ID)
	assert.True(t, core.IsNotFound(err), "%v", err)
	assert.EqualError(t, err, "school 1 has no active session")
}

func TestService_CreateClass(t *testing.T) {
	ctx := context.Background()
	svc, repo, school := setup(t)
	session := testutil.CreateSession(t, repo, school.ID, "2024-2025", "2024-04-01", "2025-03-31", true)

	nc := academic.NewClass{SessionID: session.ID, Name: " 5A "}
	require.NoError(t, nc.Validate(validate))
	class, err := svc.CreateClass(ctx, school.ID, nc)
	require.NoError(t, err)
	assert.Equal(t, "5A", class.Name)
	assert.Equal(t, session.ID, class.SessionID)

	_, err = svc.CreateClass(ctx, school.ID, nc)
	assert.True(t, core.IsAlreadyExists(err), "%v", err)

	_, err = svc.CreateClass(ctx, school.ID, academic.NewClass{SessionID: 404, Name: "6A"})
	assert.True(t, core.IsNotFound(err), "%v", err)

	classes, err := svc.QueryClasses(ctx, school.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, []academic.Class{class}, classes)

	assert.Error(t, (&academic.NewClass{Name: "6A"}).Validate(validate))
}

func TestService_CreateClass_ClassTeacher(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.New()
	repo := inmemdb.NewAcademicRepository(db)
	users := inmemdb.NewUserRepository(db)
	svc := academic.NewService(repo, db, users)

	school := testutil.CreateSchool(t, repo, "Green Valley")
	otherSchool := testutil.CreateSchool(t, repo, "Blue Hills")
	session := testutil.CreateSession(t, repo, school.ID, "2024-2025", "2024-04-01", "2025-03-31", true)
	teacher := testutil.CreateUser(t, users, school.ID, "Teacher", "teacher", "teacher@academia.test", "", []string{user.RoleTeacher}, true)
	admin := testutil.CreateUser(t, users, school.ID, "Admin", "admin", "admin@academia.test", "", []string{user.RoleAdminOwner}, true)
	outsider := testutil.CreateUser(t, users, otherSchool.ID, "Outsider", "outsider", "outsider@academia.test", "", []string{user.RoleTeacher}, true)

	tests := []struct {
		name      string
		teacherID int64
		wantErr   string
	}{
		{name: "unknown user", teacherID: 404, wantErr: "class teacher 404 does not exist"},
		{name: "not a teacher", teacherID: admin.ID, wantErr: fmt.Sprintf("user %d is not a teacher of this school", admin.ID)},
		{name: "teacher of another school", teacherID: outsider.ID, wantErr: fmt.Sprintf("user %d is not a teacher of this school", outsider.ID)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateClass(ctx, school.ID, academic.NewClass{SessionID: session.ID, Name: "5A", ClassTeacherID: tt.teacherID})
			assert.True(t, core.IsArgument(err), "%v", err)
			assert.EqualError(t, err, tt.wantErr)
		})
	}

	class, err := svc.CreateClass(ctx, school.ID, academic.NewClass{SessionID: session.ID, Name: "5A", ClassTeacherID: teacher.ID})
	require.NoError(t, err)
	assert.Equal(t, teacher.ID, class.ClassTeacherID)
}

func TestService_CreateSchool(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)

	school, err := svc.CreateSchool(ctx, "  Hill Top ")
	require.NoError(t, err)
	assert.Equal(t, "Hill Top", school.Name)

	got, err := svc.GetSchool(ctx, school.ID)
	require.NoError(t, err)
	assert.Equal(t, school, got)

	_, err = svc.CreateSchool(ctx, " ")
	assert.True(t, core.IsArgument(err), "%v", err)
}

func TestRegistrar_EnsureEnrollment(t *testing.T) {
	ctx := context.Background()
	_, repo, school := setup(t)
	session := testutil.CreateSession(t, repo, school.ID, "2024-2025", "2024-04-01", "2025-03-31", true)
	class := testutil.CreateClass(t, repo, school.ID, session.ID, "5A", 0)
	student := testutil.CreateStudent(t, repo, school.ID, "P1", "Amani", &class)
	reg := academic.NewRegistrar(repo)

	first, created, err := reg.EnsureEnrollment(ctx, student, class.ID, session.ID)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := reg.EnsureEnrollment(ctx, student, class.ID, session.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	enrollments, err := repo.QueryEnrollments(ctx, school.ID, "P1")
	require.NoError(t, err)
	assert.Len(t, enrollments, 1)
}

func TestSession_Overlaps(t *testing.T) {
	a := academic.Session{StartDate: testutil.Date(t, "2024-04-01"), EndDate: testutil.Date(t, "2025-03-31")}
	b := academic.Session{StartDate: testutil.Date(t, "2025-03-31"), EndDate: testutil.Date(t, "2026-03-31")}
	c := academic.Session{StartDate: testutil.Date(t, "2025-04-01"), EndDate: testutil.Date(t, "2026-03-31")}

	assert.True(t, a.Overlaps(b))
	assert.True(t, b.Overlaps(a))
	assert.False(t, a.Overlaps(c))
	assert.True(t, a.Overlaps(a))
}

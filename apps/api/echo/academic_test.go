package echoapi_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/fee"
	"github.com/trezcool/academia/core/user"
	testutil "github.com/trezcool/academia/tests"
)

func Test_academicAPI_sessions(t *testing.T) {
	app := newTestApp(t)
	school := testutil.CreateSchool(t, app.academicRepo, "Green Valley")
	admin := testutil.CreateUser(t, app.userRepo, school.ID, "Admin", "admin", "admin@academia.test", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, app.userRepo, school.ID, "Teacher", "teacher", "teacher@academia.test", "", []string{user.RoleTeacher}, true)
	student := testutil.CreateUser(t, app.userRepo, school.ID, "Hero", "hero", "hero@academia.test", "", []string{user.RoleStudent}, true)
	adminToken := app.token(t, admin)

	session := map[string]interface{}{"name": "2024-2025", "startDate": "2024-04-01", "endDate": "2025-03-31", "active": true}
	next := map[string]interface{}{"name": "2025-2026", "startDate": "2025-04-01", "endDate": "2026-03-31"}

	app.run(t, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/v1/sessions", body: session, wantCode: http.StatusUnauthorized},
		{
			name: "admin required", method: http.MethodPost, path: "/v1/sessions", token: app.token(t, teacher), body: session,
			wantCode: http.StatusForbidden, wantMsg: "permission denied",
		},
		{
			name: "invalid dates", method: http.MethodPost, path: "/v1/sessions", token: adminToken,
			body:     map[string]interface{}{"name": "2024", "startDate": "2025-03-31", "endDate": "2024-04-01"},
			wantCode: http.StatusBadRequest, wantData: map[string]string{"endDate": "endDate must be after startDate"},
		},
		{name: "created", method: http.MethodPost, path: "/v1/sessions", token: adminToken, body: session, wantCode: http.StatusCreated, wantMsg: "session created"},
		{
			name: "overlapping", method: http.MethodPost, path: "/v1/sessions", token: adminToken,
			body:     map[string]interface{}{"name": "2024-bis", "startDate": "2024-09-01", "endDate": "2025-08-31"},
			wantCode: http.StatusBadRequest, wantMsg: `session dates overlap with session "2024-2025"`,
		},
		{name: "next created", method: http.MethodPost, path: "/v1/sessions", token: adminToken, body: next, wantCode: http.StatusCreated},
		{name: "students not allowed", path: "/v1/sessions", token: app.token(t, student), wantCode: http.StatusForbidden},
		{name: "bad id", method: http.MethodPut, path: "/v1/sessions/abc/activate", token: adminToken, wantCode: http.StatusNotFound},
		{name: "unknown id", method: http.MethodPut, path: "/v1/sessions/404/activate", token: adminToken, wantCode: http.StatusNotFound},
	})

	t.Run("list & activate", func(t *testing.T) {
		code, env := app.call(t, http.MethodGet, "/v1/sessions", app.token(t, teacher), nil)
		require.Equal(t, http.StatusOK, code)
		var sessions []academic.Session
		decode(t, env, &sessions)
		require.Len(t, sessions, 2)
		assert.Equal(t, "2024-2025", sessions[0].Name)
		assert.True(t, sessions[0].Active)
		assert.False(t, sessions[1].Active)

		code, env = app.call(t, http.MethodPut, fmt.Sprintf("/v1/sessions/%d/activate", sessions[1].ID), adminToken, nil)
		require.Equal(t, http.StatusOK, code, env.Message)
		assert.Equal(t, "session activated", env.Message)

		_, env = app.call(t, http.MethodGet, "/v1/sessions", adminToken, nil)
		decode(t, env, &sessions)
		assert.False(t, sessions[0].Active)
		assert.True(t, sessions[1].Active)
	})
}

func Test_academicAPI_classes(t *testing.T) {
	app := newTestApp(t)
	school := testutil.CreateSchool(t, app.academicRepo, "Green Valley")
	admin := testutil.CreateUser(t, app.userRepo, school.ID, "Admin", "admin", "admin@academia.test", "", []string{user.RoleAdmin}, true)
	adminToken := app.token(t, admin)

	app.run(t, []httpTest{
		{name: "no active session", path: "/v1/classes", token: adminToken, wantCode: http.StatusNotFound},
	})

	current := testutil.CreateSession(t, app.academicRepo, school.ID, "2024-2025", "2024-04-01", "2025-03-31", true)
	next := testutil.CreateSession(t, app.academicRepo, school.ID, "2025-2026", "2025-04-01", "2026-03-31", false)

	app.run(t, []httpTest{
		{
			name: "created", method: http.MethodPost, path: "/v1/classes", token: adminToken,
			body: academic.NewClass{SessionID: current.ID, Name: "5A"}, wantCode: http.StatusCreated, wantMsg: "class created",
		},
		{
			name: "next session class", method: http.MethodPost, path: "/v1/classes", token: adminToken,
			body: academic.NewClass{SessionID: next.ID, Name: "6A"}, wantCode: http.StatusCreated,
		},
		{
			name: "duplicate", method: http.MethodPost, path: "/v1/classes", token: adminToken,
			body: academic.NewClass{SessionID: current.ID, Name: " 5A "}, wantCode: http.StatusBadRequest,
		},
		{
			name: "blank name", method: http.MethodPost, path: "/v1/classes", token: adminToken,
			body: academic.NewClass{SessionID: current.ID, Name: "  "}, wantCode: http.StatusBadRequest, wantMsg: "invalid data",
		},
		{
			name: "active session by default", path: "/v1/classes", token: adminToken,
			wantData: []academic.Class{{ID: 1, SchoolID: school.ID, SessionID: current.ID, Name: "5A"}},
		},
		{
			name: "given session", path: fmt.Sprintf("/v1/classes?sessionId=%d", next.ID), token: adminToken,
			wantData: []academic.Class{{ID: 2, SchoolID: school.ID, SessionID: next.ID, Name: "6A"}},
		},
		{
			name: "bad session id", path: "/v1/classes?sessionId=x", token: adminToken, wantCode: http.StatusBadRequest,
			wantData: map[string]string{"sessionId": "sessionId must be a positive integer"},
		},
		{name: "empty session", path: "/v1/classes?sessionId=404", token: adminToken, wantData: []academic.Class{}},
	})
}

func Test_feeAPI(t *testing.T) {
	app := newTestApp(t)
	school := testutil.CreateSchool(t, app.academicRepo, "Green Valley")
	admin := testutil.CreateUser(t, app.userRepo, school.ID, "Admin", "admin", "admin@academia.test", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, app.userRepo, school.ID, "Teacher", "teacher", "teacher@academia.test", "", []string{user.RoleTeacher}, true)
	session := testutil.CreateSession(t, app.academicRepo, school.ID, "2024-2025", "2024-04-01", "2025-03-31", true)
	class := testutil.CreateClass(t, app.academicRepo, school.ID, session.ID, "5A", teacher.ID)
	adminToken := app.token(t, admin)

	app.run(t, []httpTest{
		{
			name: "admin required", method: http.MethodPost, path: "/v1/fees/structures", token: app.token(t, teacher),
			body: fee.NewStructure{ClassID: class.ID, SessionID: session.ID, Amount: 500}, wantCode: http.StatusForbidden,
		},
		{
			name: "negative amount", method: http.MethodPost, path: "/v1/fees/structures", token: adminToken,
			body: fee.NewStructure{ClassID: class.ID, SessionID: session.ID, Amount: -1}, wantCode: http.StatusBadRequest,
		},
		{
			name: "created", method: http.MethodPost, path: "/v1/fees/structures", token: adminToken,
			body: fee.NewStructure{ClassID: class.ID, SessionID: session.ID, Amount: 500}, wantCode: http.StatusCreated,
			wantData: fee.Structure{ID: 1, SchoolID: school.ID, ClassID: class.ID, SessionID: session.ID, Amount: 500},
		},
		{
			name: "duplicate", method: http.MethodPost, path: "/v1/fees/structures", token: adminToken,
			body: fee.NewStructure{ClassID: class.ID, SessionID: session.ID, Amount: 600}, wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown class", method: http.MethodPost, path: "/v1/fees/structures", token: adminToken,
			body: fee.NewStructure{ClassID: 404, SessionID: session.ID, Amount: 600}, wantCode: http.StatusNotFound,
		},
		{name: "no fees yet", path: "/v1/fees/student/P1", token: app.token(t, teacher), wantData: []fee.Fee{}},
	})
}

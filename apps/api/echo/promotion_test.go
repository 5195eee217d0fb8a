package echoapi_test

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/fee"
	"github.com/trezcool/academia/core/promotion"
	"github.com/trezcool/academia/core/user"
	exportsvc "github.com/trezcool/academia/services/export"
	testutil "github.com/trezcool/academia/tests"
)

func Test_promotionAPI(t *testing.T) {
	app := newTestApp(t)
	school := testutil.CreateSchool(t, app.academicRepo, "Green Valley")
	admin := testutil.CreateUser(t, app.userRepo, school.ID, "Admin", "admin", "admin@academia.test", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, app.userRepo, school.ID, "Teacher", "teacher", "teacher@academia.test", "", []string{user.RoleTeacher}, true)
	other := testutil.CreateUser(t, app.userRepo, school.ID, "Other", "other", "other@academia.test", "", []string{user.RoleTeacher}, true)

	from := testutil.CreateSession(t, app.academicRepo, school.ID, "2024-2025", "2024-04-01", "2025-03-31", true)
	to := testutil.CreateSession(t, app.academicRepo, school.ID, "2025-2026", "2025-04-01", "2026-03-31", false)
	class5A := testutil.CreateClass(t, app.academicRepo, school.ID, from.ID, "5A", teacher.ID)
	class6A := testutil.CreateClass(t, app.academicRepo, school.ID, from.ID, "6A", other.ID)
	next6A := testutil.CreateClass(t, app.academicRepo, school.ID, to.ID, "6A", 0)
	next5A := testutil.CreateClass(t, app.academicRepo, school.ID, to.ID, "5A", 0)
	testutil.CreateFeeStructure(t, app.feeRepo, next6A, 600)
	testutil.CreateStudent(t, app.academicRepo, school.ID, "P1", "Amani", &class5A)
	testutil.CreateStudent(t, app.academicRepo, school.ID, "P2", "Baraka", &class5A)

	adminToken := app.token(t, admin)
	teacherToken := app.token(t, teacher)
	otherToken := app.token(t, other)

	app.run(t, []httpTest{
		{
			name: "auth required", method: http.MethodPost, path: "/v1/promotions/assign",
			body: promotion.AssignRequest{StudentPAN: "P1"}, wantCode: http.StatusUnauthorized, wantMsg: errMissingToken,
		},
		{
			name: "teacher required", method: http.MethodPost, path: "/v1/promotions/assign", token: adminToken,
			body: promotion.AssignRequest{StudentPAN: "P1"}, wantCode: http.StatusForbidden,
		},
		{
			name: "pan required", method: http.MethodPost, path: "/v1/promotions/assign", token: teacherToken,
			body: promotion.AssignRequest{}, wantCode: http.StatusBadRequest, wantMsg: "invalid data",
		},
		{
			name: "not the class teacher", method: http.MethodPost, path: "/v1/promotions/assign", token: otherToken,
			body: promotion.AssignRequest{StudentPAN: "P1"}, wantCode: http.StatusForbidden,
		},
		{
			name: "unknown student", method: http.MethodPost, path: "/v1/promotions/assign", token: teacherToken,
			body: promotion.AssignRequest{StudentPAN: "P404"}, wantCode: http.StatusNotFound,
		},
		{
			name: "not assigned yet", path: "/v1/promotions/student/P1", token: teacherToken,
			wantMsg: "no promotion assigned yet", wantData: nil,
		},
		{
			name: "execute requires sessions", method: http.MethodPost, path: "/v1/promotions/execute", token: adminToken,
			wantCode: http.StatusBadRequest, wantData: map[string]string{"fromSessionId": "fromSessionId is a required field"},
		},
		{
			name: "execute requires admin", method: http.MethodPost, token: teacherToken,
			path:     fmt.Sprintf("/v1/promotions/execute?fromSessionId=%d&toSessionId=%d", from.ID, to.ID),
			wantCode: http.StatusForbidden,
		},
		{name: "pending requires admin", path: "/v1/promotions/pending", token: teacherToken, wantCode: http.StatusForbidden},
	})

	var p1 promotion.Promotion
	t.Run("assign", func(t *testing.T) {
		code, env := app.call(t, http.MethodPost, "/v1/promotions/assign", teacherToken,
			promotion.AssignRequest{StudentPAN: "P1", ToClassID: core.Int64Ptr(class6A.ID)})
		require.Equal(t, http.StatusOK, code, env.Message)
		assert.Equal(t, "promotion assigned", env.Message)
		decode(t, env, &p1)
		assert.Equal(t, promotion.KindPromoteTo, p1.Decision)
		assert.Equal(t, promotion.StatusPending, p1.Status)

		code, env = app.call(t, http.MethodPost, "/v1/promotions/assign", teacherToken,
			promotion.AssignRequest{StudentPAN: "P2", IsDetained: true})
		require.Equal(t, http.StatusOK, code, env.Message)
	})

	t.Run("lists", func(t *testing.T) {
		code, env := app.call(t, http.MethodGet, fmt.Sprintf("/v1/promotions/class/%d", class5A.ID), teacherToken, nil)
		require.Equal(t, http.StatusOK, code, env.Message)
		var promos []promotion.Promotion
		decode(t, env, &promos)
		require.Len(t, promos, 2)
		assert.Equal(t, "P1", promos[0].StudentPAN)

		code, env = app.call(t, http.MethodGet, "/v1/promotions/pending", adminToken, nil)
		require.Equal(t, http.StatusOK, code, env.Message)
		decode(t, env, &promos)
		assert.Len(t, promos, 2)

		code, env = app.call(t, http.MethodGet, "/v1/promotions/student/P1", adminToken, nil)
		require.Equal(t, http.StatusOK, code, env.Message)
		var got promotion.Promotion
		decode(t, env, &got)
		assert.Equal(t, p1.ID, got.ID)

		code, env = app.call(t, http.MethodGet, fmt.Sprintf("/v1/promotions/class/%d", class6A.ID), teacherToken, nil)
		require.Equal(t, http.StatusOK, code, env.Message)
		assert.JSONEq(t, "[]", string(env.Data))
	})

	t.Run("delete", func(t *testing.T) {
		code, env := app.call(t, http.MethodGet, "/v1/promotions/student/P2", teacherToken, nil)
		require.Equal(t, http.StatusOK, code, env.Message)
		var promo promotion.Promotion
		decode(t, env, &promo)

		code, env = app.call(t, http.MethodDelete, fmt.Sprintf("/v1/promotions/%d", promo.ID), otherToken, nil)
		assert.Equal(t, http.StatusForbidden, code, env.Message)

		code, env = app.call(t, http.MethodDelete, fmt.Sprintf("/v1/promotions/%d", promo.ID), teacherToken, nil)
		require.Equal(t, http.StatusOK, code, env.Message)
		assert.Equal(t, "promotion deleted", env.Message)

		code, _ = app.call(t, http.MethodDelete, fmt.Sprintf("/v1/promotions/%d", promo.ID), teacherToken, nil)
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("execute", func(t *testing.T) {
		path := fmt.Sprintf("/v1/promotions/execute?fromSessionId=%d&toSessionId=%d", from.ID, to.ID)
		code, env := app.call(t, http.MethodPost, path, adminToken, nil)
		require.Equal(t, http.StatusOK, code, env.Message)
		assert.True(t, strings.HasPrefix(env.Message, "rollover "), env.Message)

		var rep promotion.Report
		decode(t, env, &rep)
		assert.Equal(t, 1, rep.Promoted)
		assert.Equal(t, 1, rep.CarriedForward) // P2 lost its promotion
		assert.Zero(t, rep.Failed)
		assert.Len(t, app.mail.SentMessages(), 1)

		student, err := app.academicRepo.GetStudent(context.Background(), school.ID, "P2")
		require.NoError(t, err)
		assert.Equal(t, next5A.ID, *student.ClassID)

		code, env = app.call(t, http.MethodGet, "/v1/fees/student/P1?sessionId="+fmt.Sprint(to.ID), teacherToken, nil)
		require.Equal(t, http.StatusOK, code, env.Message)
		var fees []fee.Fee
		decode(t, env, &fees)
		require.Len(t, fees, 12)
		assert.Equal(t, int64(600), fees[0].Amount)

		code, env = app.call(t, http.MethodPost, "/v1/promotions/assign", teacherToken, promotion.AssignRequest{StudentPAN: "P1"})
		assert.Equal(t, http.StatusForbidden, code, "P1 now sits in a class without class teacher: %s", env.Message)
	})

	t.Run("session list & export", func(t *testing.T) {
		code, env := app.call(t, http.MethodGet, fmt.Sprintf("/v1/promotions/session/%d", from.ID), adminToken, nil)
		require.Equal(t, http.StatusOK, code, env.Message)
		var promos []promotion.Promotion
		decode(t, env, &promos)
		require.Len(t, promos, 1)
		assert.Equal(t, promotion.StatusPromoted, promos[0].Status)

		rec := app.do(t, http.MethodGet, fmt.Sprintf("/v1/promotions/session/%d/export", from.ID), adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, exportsvc.ContentType, rec.Header().Get("Content-Type"))
		assert.Equal(t, fmt.Sprintf(`attachment; filename="promotions-%d.xlsx"`, from.ID), rec.Header().Get("Content-Disposition"))
		assert.NotZero(t, rec.Body.Len())

		code, _ = app.call(t, http.MethodGet, "/v1/promotions/session/404/export", adminToken, nil)
		assert.Equal(t, http.StatusNotFound, code)
	})
}

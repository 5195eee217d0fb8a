package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/fee"
	"github.com/trezcool/academia/core/promotion"
	"github.com/trezcool/academia/core/user"
	emailsvc "github.com/trezcool/academia/services/email"
	exportsvc "github.com/trezcool/academia/services/export"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	testutil "github.com/trezcool/academia/tests"
)

const errMissingToken = "missing or malformed jwt"

type testApp struct {
	conf         *core.Config
	server       echoapi.Server
	mail         *emailsvc.ConsoleServiceMock
	userRepo     user.Repository
	academicRepo academic.Repository
	feeRepo      fee.Repository
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	conf := testutil.NewConfig()
	logger := testutil.NewLogger()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	db := inmemdb.New()
	app := &testApp{
		conf:         conf,
		mail:         emailsvc.NewConsoleServiceMock(conf),
		userRepo:     inmemdb.NewUserRepository(db),
		academicRepo: inmemdb.NewAcademicRepository(db),
		feeRepo:      inmemdb.NewFeeRepository(db),
	}
	promoRepo := inmemdb.NewPromotionRepository(db)

	deps := &echoapi.Deps{
		Validate:    validate,
		Translator:  translator,
		UserSvc:     user.NewService(app.userRepo),
		AcademicSvc: academic.NewService(app.academicRepo, db, app.userRepo),
		PromotionSvc: promotion.NewService(
			logger,
			db,
			promoRepo,
			app.academicRepo,
			academic.NewRegistrar(app.academicRepo),
			fee.NewGenerator(app.feeRepo, logger),
			app.mail,
			exportsvc.NewXLSXWriter(),
		),
		FeeSvc: fee.NewService(app.feeRepo, app.academicRepo),
	}
	app.server = echoapi.NewServer(&echoapi.Options{Conf: conf, Logger: logger, DisableReqLogs: true}, deps)
	return app
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Status  int             `json:"status"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	token    string
	wantCode int
	wantMsg  string
	wantData interface{} // compared as JSON when set
}

func (app *testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)
	return rec
}

// call runs the request and decodes the response envelope.
func (app *testApp) call(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	rec := app.do(t, method, path, token, body)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	assert.Equal(t, rec.Code, env.Status)
	return rec.Code, env
}

func (app *testApp) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			code, env := app.call(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantCode, code, "message: %s", env.Message)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, env.Message)
			}
			if tt.wantData != nil {
				want, err := json.Marshal(tt.wantData)
				require.NoError(t, err)
				assert.JSONEq(t, string(want), string(env.Data))
			}
		})
	}
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(app.conf, usr)
	require.NoError(t, err)
	return token
}

func decode(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v), "data: %s", env.Data)
}

func TestHome(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Academia API!", rec.Body.String())

	code, env := app.call(t, http.MethodGet, "/v1/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Not Found", env.Message)
}

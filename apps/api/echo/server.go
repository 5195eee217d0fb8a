package echoapi

import (
	"bytes"
	"context"
	"io"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/fee"
	"github.com/trezcool/academia/core/promotion"
	"github.com/trezcool/academia/core/user"
)

const rolloverPath = "/v1/promotions/execute"

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		DisableReqLogs bool
		SignalShutdown func()
	}

	Deps struct {
		Validate     *validator.Validate
		Translator   ut.Translator
		UserSvc      *user.Service
		AcademicSvc  *academic.Service
		PromotionSvc *promotion.Service
		FeeSvc       *fee.Service
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		deps *Deps
		auth *authenticator
		app  *echo.Echo
	}

	// response is the envelope of every JSON response.
	response struct {
		Data    interface{} `json:"data"`
		Message string      `json:"message"`
		Status  int         `json:"status"`
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options, deps *Deps) Server {
	if opts.SignalShutdown == nil {
		opts.SignalShutdown = func() {}
	}
	s := &server{
		opts: opts,
		deps: deps,
		auth: newAuthenticator(opts.Conf, deps.UserSvc),
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: newRequestID}))
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	// a rollover runs as long as it takes
	s.app.Use(timeoutMiddleware(conf.Server.RequestTimeout, rolloverPath))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.deps.Translator, s.opts.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.auth.jwtConfig)

	registerUserAPI(v1, jwt, s.auth, s.deps)
	registerAcademicAPI(v1, jwt, s.auth, s.deps)
	registerPromotionAPI(v1, jwt, s.auth, s.deps)
	registerFeeAPI(v1, jwt, s.auth, s.deps)
}

func (s *server) Start() error {
	return s.app.Start(s.opts.Conf.Server.Host)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.Conf.AppName+" API!")
}

func respond(ctx echo.Context, code int, data interface{}, msg string) error {
	return ctx.JSON(code, response{Data: data, Message: msg, Status: code})
}

// sendFile renders the whole file before answering, so that write errors still get a JSON response.
func sendFile(ctx echo.Context, filename, contentType string, write func(w io.Writer) error) error {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return ctx.Blob(http.StatusOK, contentType, buf.Bytes())
}

func newRequestID() string {
	return uuid.New().String()
}

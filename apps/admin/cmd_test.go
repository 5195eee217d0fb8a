package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strconv"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/fee"
	"github.com/trezcool/academia/core/promotion"
	"github.com/trezcool/academia/core/user"
	exportsvc "github.com/trezcool/academia/services/export"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	testutil "github.com/trezcool/academia/tests"
)

var (
	usrRepo      user.Repository
	academicRepo academic.Repository
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	// set up DB & repos
	db := inmemdb.New()
	usrRepo = inmemdb.NewUserRepository(db)
	academicRepo = inmemdb.NewAcademicRepository(db)
	feeRepo := inmemdb.NewFeeRepository(db)
	logger := testutil.NewLogger()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// start CLI
	out := new(bytes.Buffer)
	return &commandLine{
		validate:    validate,
		usrRepo:     usrRepo,
		usrSvc:      user.NewService(usrRepo),
		academicSvc: academic.NewService(academicRepo, db, usrRepo),
		promotionSvc: promotion.NewService(
			logger,
			db,
			inmemdb.NewPromotionRepository(db),
			academicRepo,
			academic.NewRegistrar(academicRepo),
			fee.NewGenerator(feeRepo, logger),
			nil,
			exportsvc.NewXLSXWriter(),
		),
		out: out,
	}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest) {
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		if _, err := fs.Stat(fsys, dir+"/00004_promotions.sql"); err != nil {
			return err
		}
		return nil
	}

	runCLITests(t, cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	})
}

func Test_commandLine_addSchool(t *testing.T) {
	cli, out := setup(t)

	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no name", args: []string{"addschool"}, wantErr: errHelp},
		{name: "blank name", args: []string{"addschool", "-name", "  "}, wantErrStr: "school name is required"},
		{name: "created", args: []string{"addschool", "-name", "Green Valley"}},
	})

	assert.Contains(t, out.String(), `school "Green Valley" created with ID 1`)
	school, err := academicRepo.GetSchool(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Green Valley", school.Name)
}

func Test_commandLine_addUser(t *testing.T) {
	cli, _ := setup(t)
	school := testutil.CreateSchool(t, academicRepo, "Green Valley")
	other := testutil.CreateSchool(t, academicRepo, "Blue Hill")
	testutil.CreateUser(t, usrRepo, other.ID, "Other", "other", "other@test.cd", "", nil, true)

	pwd := "S3cure!pass"
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil }
	schoolID := strconv.FormatInt(school.ID, 10)

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no school", args: []string{"adduser", "-username", "boss"}, wantErr: errHelp},
		{name: "unknown school", args: []string{"adduser", "-school", "99", "-username", "boss"}, wantErrStr: "school 99 not found"},
		{name: "unknown role", args: []string{"adduser", "-school", schoolID, "-username", "boss", "-role", "king:"}, wantErrStr: `"king:": unknown role`},
		{name: "other school", args: []string{"adduser", "-school", schoolID, "-username", "other"}, wantErrStr: `user "other" belongs to another school`},
		{name: "created", args: []string{"adduser", "-school", schoolID, "-username", "Boss", "-email", "boss@test.cd"}},
		{
			name: "teacher updated",
			args: []string{"adduser", "-school", schoolID, "-username", "boss", "-role", user.RoleTeacher, "-name", "The Boss"},
		},
	})

	usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{UsernameOrEmail: []string{"boss"}})
	require.NoError(t, err)
	assert.Equal(t, school.ID, usr.SchoolID)
	assert.Equal(t, "The Boss", usr.Name)
	assert.Equal(t, "boss@test.cd", usr.Email)
	assert.Equal(t, []string{user.RoleTeacher}, usr.Roles)
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword(pwd))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, _ := setup(t)
	school := testutil.CreateSchool(t, academicRepo, "Green Valley")
	usr := testutil.CreateUser(t, usrRepo, school.ID, "User", "awe", "awe@test.cd", "mdr", nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				require.NoError(t, err)
				assert.NoError(t, refreshedUsr.CheckPassword(tt.extra.(extra).pwd))
			} else if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_rollover(t *testing.T) {
	cli, out := setup(t)
	school := testutil.CreateSchool(t, academicRepo, "Green Valley")
	from := testutil.CreateSession(t, academicRepo, school.ID, "2023-2024", "2023-04-01", "2024-03-31", true)
	to := testutil.CreateSession(t, academicRepo, school.ID, "2024-2025", "2024-04-01", "2025-03-31", false)
	class := testutil.CreateClass(t, academicRepo, school.ID, from.ID, "5A", 0)
	testutil.CreateClass(t, academicRepo, school.ID, to.ID, "5A", 0)
	testutil.CreateStudent(t, academicRepo, school.ID, "PAN001", "Amani", &class)

	id := func(v int64) string { return strconv.FormatInt(v, 10) }
	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"rollover"}, wantErr: errHelp},
		{name: "missing to", args: []string{"rollover", "-school", id(school.ID), "-from", id(from.ID)}, wantErr: errHelp},
		{name: "same session", args: []string{"rollover", "-school", id(school.ID), "-from", id(from.ID), "-to", id(from.ID)}, wantErrStr: "cannot roll a session over to itself"},
		{name: "carried forward", args: []string{"rollover", "-school", id(school.ID), "-from", id(from.ID), "-to", id(to.ID)}},
	})

	assert.Contains(t, out.String(), "2023-2024 -> 2024-2025")
	assert.Contains(t, out.String(), "carriedForward=1")
	assert.Contains(t, out.String(), "PAN001")
}

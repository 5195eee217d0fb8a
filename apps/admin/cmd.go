package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/promotion"
	"github.com/trezcool/academia/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db           *sql.DB
	validate     *validator.Validate
	usrRepo      user.Repository
	usrSvc       *user.Service
	academicSvc  *academic.Service
	promotionSvc *promotion.Service
	out          io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                                   - run a goose command on the embedded migrations")
	fmt.Fprintln(cli.out, "  addschool -name NAME                                     - create a school")
	fmt.Fprintln(cli.out, "  adduser -school ID -username USERNAME [-email EMAIL] [-name NAME] [-role ROLE]")
	fmt.Fprintln(cli.out, "                                                           - create or update a user; the password is prompted")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL                   - reset user's password")
	fmt.Fprintln(cli.out, "  rollover -school ID -from SESSION_ID -to SESSION_ID      - run the session rollover")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addSchoolCmd := flag.NewFlagSet("addschool", flag.ContinueOnError)
	addSchoolName := addSchoolCmd.String("name", "", "The school's name.")

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserSchool := addUserCmd.Int64("school", 0, "The ID of the user's school.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's full name (defaults to the username).")
	addUserRole := addUserCmd.String("role", user.RoleAdmin, "The user's role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	rolloverCmd := flag.NewFlagSet("rollover", flag.ContinueOnError)
	rolloverSchool := rolloverCmd.Int64("school", 0, "The ID of the school.")
	rolloverFrom := rolloverCmd.Int64("from", 0, "The ID of the session to roll over from.")
	rolloverTo := rolloverCmd.Int64("to", 0, "The ID of the session to roll over to.")

	for _, fs := range []*flag.FlagSet{addSchoolCmd, addUserCmd, resetPasswordCmd, rolloverCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addschool":
		if err := addSchoolCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addSchoolName == "" {
			addSchoolCmd.Usage()
			return errHelp
		}
		return cli.addSchool(*addSchoolName)

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserSchool == 0 || *addUserUname == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserSchool, *addUserUname, *addUserEmail, *addUserName, *addUserRole, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "rollover":
		if err := rolloverCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *rolloverSchool == 0 || *rolloverFrom == 0 || *rolloverTo == 0 {
			rolloverCmd.Usage()
			return errHelp
		}
		return cli.rollover(*rolloverSchool, *rolloverFrom, *rolloverTo)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) readPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

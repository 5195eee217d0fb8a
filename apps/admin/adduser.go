package main

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

func (cli *commandLine) addSchool(name string) error {
	school, err := cli.academicSvc.CreateSchool(context.Background(), name)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "school %q created with ID %d\n", school.Name, school.ID)
	return nil
}

// addUser updates or creates a user.User
func (cli *commandLine) addUser(schoolID int64, uname, email, name, role, pwd string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if name = core.CleanString(name); name == "" {
		name = uname
	}
	if err := cli.validate.Var([]string{role}, "allroles"); err != nil {
		return fmt.Errorf("%q: unknown role", role)
	}
	if _, err := cli.academicSvc.GetSchool(ctx, schoolID); err != nil {
		return err
	}

	now := time.Now().UTC()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}})
	switch {
	case err == nil:
		if usr.SchoolID != schoolID {
			return fmt.Errorf("user %q belongs to another school", usr.Username)
		}
	case core.IsNotFound(err):
		usr = user.User{SchoolID: schoolID, Username: uname, Email: email, CreatedAt: now}
	default:
		return err
	}

	usr.Name = name
	usr.Roles = []string{role}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}

	if usr.ID == 0 {
		usr, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		usr, err = cli.usrRepo.UpdateUser(ctx, usr)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %q saved with ID %d\n", usr.Username, usr.ID)
	return nil
}

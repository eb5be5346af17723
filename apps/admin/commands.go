package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/catalog"
	"github.com/kidoparadise/kido/core/user"
	"github.com/kidoparadise/kido/storage/database"
)

var (
	gooseRunFunc = database.RunMigrations // mockable

	errNoSQLDatabase = errors.New("migrations require the postgres database engine")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoSQLDatabase
	}
	return gooseRunFunc(cli.db, args[0], args[1:]...)
}

// addUser creates a user, or updates the password and role of an existing one.
func (cli *commandLine) addUser(name, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	role := user.RoleUser
	if isAdmin {
		role = user.RoleAdmin
	}

	nu := user.NewUser{Name: name, Email: email, Password: pwd, Role: role}
	if err := nu.Validate(cli.validate); err != nil {
		return err
	}

	usr, err := cli.usrSvc.GetByEmail(ctx, nu.Email)
	switch {
	case err == nil:
		if _, err = cli.usrSvc.SetPassword(ctx, usr.Email, pwd); err != nil {
			return err
		}
		if usr, err = cli.usrSvc.SetRole(ctx, usr.Email, role); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "updated user %s (%s)\n", usr.Email, usr.Role)
	case errors.Cause(err) == user.ErrNotFound:
		if usr, err = cli.usrSvc.Create(ctx, nu); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "created user %s (%s)\n", usr.Email, usr.Role)
	default:
		return err
	}
	return nil
}

func (cli *commandLine) resetPassword(email, pwd string) error {
	usr, err := cli.usrSvc.SetPassword(context.Background(), email, pwd)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "password of %s updated\n", usr.Email)
	return nil
}

func (cli *commandLine) addProfessional(name, specialty, photoURL string) error {
	np := catalog.NewProfessional{Name: name, Specialty: specialty, PhotoURL: photoURL}
	if err := np.Validate(cli.validate); err != nil {
		return err
	}
	pro, err := cli.catalogSvc.CreateProfessional(context.Background(), np)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created professional %s: %s\n", pro.Name, pro.ID)
	return nil
}

func (cli *commandLine) generateSlots(professionalID, date string) error {
	count, err := cli.bookingSvc.GenerateSlots(context.Background(), core.CleanString(professionalID), core.CleanString(date))
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d slots available on %s\n", count, date)
	return nil
}

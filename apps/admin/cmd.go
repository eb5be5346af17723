package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/kidoparadise/kido/core/booking"
	"github.com/kidoparadise/kido/core/catalog"
	"github.com/kidoparadise/kido/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db         *sql.DB // nil with the in-memory engine
	validate   *validator.Validate
	usrSvc     *user.Service
	catalogSvc *catalog.Service
	bookingSvc *booking.Service
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                              - run a goose command (up, down, status, redo, ...)")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL -name NAME [-admin]            - create a user, or update their password and role")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL                          - reset user's password")
	fmt.Fprintln(cli.out, "  addprofessional -name NAME -specialty S [-photo URL] - register a professional")
	fmt.Fprintln(cli.out, "  genslots -professional ID -date YYYY-MM-DD           - generate the availability slots of a day")
}

// promptPassword reads a password without echoing it. An empty password is a usage error.
func (cli *commandLine) promptPassword(fs *flag.FlagSet) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if cli.out == nil {
		cli.out = os.Stdout
	}
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant the ADMIN role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	addProCmd := flag.NewFlagSet("addprofessional", flag.ContinueOnError)
	addProName := addProCmd.String("name", "", "The professional's name.")
	addProSpecialty := addProCmd.String("specialty", "", "The professional's specialty.")
	addProPhoto := addProCmd.String("photo", "", "URL of the professional's photo.")

	genSlotsCmd := flag.NewFlagSet("genslots", flag.ContinueOnError)
	genSlotsPro := genSlotsCmd.String("professional", "", "The professional's ID.")
	genSlotsDate := genSlotsCmd.String("date", "", "The day, formatted as YYYY-MM-DD.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, addProCmd, genSlotsCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" || *addUserName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(addUserCmd)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserName, *addUserEmail, pwd, *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "addprofessional":
		if err := addProCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addProName == "" {
			addProCmd.Usage()
			return errHelp
		}
		return cli.addProfessional(*addProName, *addProSpecialty, *addProPhoto)

	case "genslots":
		if err := genSlotsCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *genSlotsPro == "" || *genSlotsDate == "" {
			genSlotsCmd.Usage()
			return errHelp
		}
		return cli.generateSlots(*genSlotsPro, *genSlotsDate)

	default:
		cli.printUsage()
		return errHelp
	}
}

package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/trezcool/masomo-scorm/core/scorm"
	"github.com/trezcool/masomo-scorm/services/content"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db       *sql.DB
	writer   scorm.PackageWriter
	content  *contentsvc.LocalStore
	resolver *scorm.Resolver
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  register -course ID [-dir DIR] - register the package extracted at <content root>/DIR (defaults to ID)")
	fmt.Fprintln(cli.out, "  resolve -course ID - print the package, units and launch URLs of a course")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	registerCmd := flag.NewFlagSet("register", flag.ContinueOnError)
	registerCmd.SetOutput(cli.out)
	registerCourse := registerCmd.String("course", "", "The course the package is played for.")
	registerDir := registerCmd.String("dir", "", "The package directory, relative to the content root.")

	resolveCmd := flag.NewFlagSet("resolve", flag.ContinueOnError)
	resolveCmd.SetOutput(cli.out)
	resolveCourse := resolveCmd.String("course", "", "The course to resolve.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "register":
		if err := registerCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *registerCourse == "" {
			registerCmd.Usage()
			return errHelp
		}
		dir := *registerDir
		if dir == "" {
			dir = *registerCourse
		}
		return cli.register(*registerCourse, dir)
	case "resolve":
		if err := resolveCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resolveCourse == "" {
			resolveCmd.Usage()
			return errHelp
		}
		return cli.resolve(*resolveCourse)
	default:
		cli.printUsage()
		return errHelp
	}
}

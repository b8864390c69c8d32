package cli

import (
	"fmt"
	"io"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Scan    *ScanCommand
	Migrate *MigrateCommand
	Prune   *PruneCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string, stdout io.Writer, stdin io.Reader) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "phishscan"
	parser.LongDescription = "Offline phishing rule scanner and cache maintenance for phish-guard."

	env := &environment{globals: &globals, version: version, stdout: stdout, stdin: stdin}
	cmds := &commands{
		Scan:    &ScanCommand{env: env},
		Migrate: &MigrateCommand{env: env},
		Prune:   &PruneCommand{env: env},
	}

	parser.AddCommand("scan", "Scan content with the static rules", "Run the static phishing rules over text or a file and print the findings and static score. No LLM call is made.", cmds.Scan)
	parser.AddCommand("migrate", "Apply database migrations", "Apply the embedded url_cache migrations to DATABASE_URL.", cmds.Migrate)
	parser.AddCommand("prune", "Delete expired cache entries", "Delete url_cache rows whose retention window has passed.", cmds.Prune)

	return parser, &globals, cmds
}

// Run is the main entry point for the phishscan CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	return run(version, args, os.Stdout, os.Stdin)
}

func run(version string, args []string, stdout io.Writer, stdin io.Reader) error {
	// go-flags requires a subcommand, but --version is valid without one.
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Fprintf(stdout, "phishscan %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version, stdout, stdin)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}

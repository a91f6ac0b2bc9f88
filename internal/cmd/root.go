// Package cmd builds the getdiff command tree: the root fetch command
// plus the diagnose subcommand.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/owaldhammad/getdiff/internal/config"
	"github.com/owaldhammad/getdiff/internal/errkind"
	"github.com/owaldhammad/getdiff/internal/gdlog"
	"github.com/owaldhammad/getdiff/internal/httpclient"
	"github.com/owaldhammad/getdiff/internal/orchestrator"
	"github.com/owaldhammad/getdiff/internal/sequence"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

var flags struct {
	verbose   bool
	source    string
	directory string
	begin     string
	end       string
	user      string
	passwd    string
	conf      string
	newFile   string
	text      bool
}

// NewRootCmd builds the getdiff command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "getdiff",
		Short:         "Incrementally mirror OSM replication diff files",
		Long:          "getdiff fetches OpenStreetMap replication diff and state files from a Geofabrik or Planet OSM replication server, resuming from the last completed sequence.",
		Version:       fmt.Sprintf("getdiff v%s", Version),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runFetch,
	}
	root.SetVersionTemplate("{{.Version}}\n")

	pf := root.Flags()
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable progress messages")
	pf.StringVarP(&flags.source, "source", "s", "", "replication directory URL")
	pf.StringVarP(&flags.directory, "directory", "d", "", "root under which getdiff/ is created")
	pf.StringVarP(&flags.begin, "begin", "b", "", "first sequence number")
	pf.StringVarP(&flags.end, "end", "e", "", "last sequence number")
	pf.StringVarP(&flags.user, "user", "u", "", "OSM account name")
	pf.StringVarP(&flags.passwd, "passwd", "p", "", "password")
	pf.StringVarP(&flags.conf, "conf", "c", "", "configuration file")
	pf.StringVarP(&flags.newFile, "new", "n", "", "off|none disables newerFiles.txt appends")
	pf.BoolVarP(&flags.text, "text", "t", false, "reserved: text-only output")

	root.AddCommand(newDiagnoseCmd())
	return root
}

// Execute runs the command tree and returns an error whose exit code is
// derived via errkind.ExitCode.
func Execute() error {
	if err := checkDuplicateFlags(os.Args[1:]); err != nil {
		return err
	}
	return NewRootCmd().Execute()
}

// checkDuplicateFlags rejects a command line that names the same flag
// twice, in any mix of long and short form — pflag itself just lets the
// later occurrence win, but a repeated flag here is treated as malformed
// input.
func checkDuplicateFlags(args []string) error {
	longToShort := map[string]string{
		"verbose": "v", "source": "s", "directory": "d", "begin": "b",
		"end": "e", "user": "u", "passwd": "p", "conf": "c", "new": "n",
		"text": "t", "help": "h", "version": "V",
	}
	shortToLong := make(map[string]string, len(longToShort))
	for long, short := range longToShort {
		shortToLong[short] = long
	}

	seen := make(map[string]bool)
	for _, arg := range args {
		var name string
		switch {
		case strings.HasPrefix(arg, "--"):
			name = strings.SplitN(strings.TrimPrefix(arg, "--"), "=", 2)[0]
		case strings.HasPrefix(arg, "-") && len(arg) >= 2:
			name = shortToLong[arg[1:2]]
			if name == "" {
				continue
			}
		default:
			continue
		}
		if seen[name] {
			return errkind.New(errkind.ArgError, fmt.Sprintf("duplicate flag: --%s", name))
		}
		seen[name] = true
	}
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	var file *config.File
	if flags.conf != "" {
		f, err := config.ReadFile(flags.conf)
		if err != nil {
			return err
		}
		file = f
	}

	opts, err := config.Resolve(file, flags.source, flags.directory, flags.begin, flags.end, flags.user, flags.passwd, flags.verbose, flags.newFile)
	if err != nil {
		return err
	}

	root := opts.Directory
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return errkind.Wrap(errkind.IoError, "resolving HOME for default root directory", err)
		}
		root = home
	}

	var begin, end *sequence.Number
	if opts.Begin != "" {
		n, err := sequence.Parse(opts.Begin)
		if err != nil {
			return err
		}
		begin = &n
	}
	if opts.End != "" {
		n, err := sequence.Parse(opts.End)
		if err != nil {
			return err
		}
		end = &n
	}

	tuningPath := os.Getenv("GETDIFF_TUNING")
	if tuningPath == "" {
		tuningPath = "getdiff-tuning.yml"
	}
	tuning, err := config.ReadTuning(tuningPath)
	if err != nil {
		return err
	}

	client := httpclient.New(httpclient.Config{
		Timeout:        time.Duration(tuning.TimeoutSeconds) * time.Second,
		RequestsPerSec: tuning.RequestsPerSec,
		MaxRedirects:   tuning.MaxRedirects,
		UserAgent:      tuning.UserAgent,
	})

	cfg := orchestrator.Config{
		ProgName:   "getdiff",
		Version:    Version,
		Source:     opts.Source,
		RootDir:    root,
		Begin:      begin,
		End:        end,
		User:       opts.User,
		Passwd:     opts.Passwd,
		HelperPath: os.Getenv("GETDIFF_OAUTH_HELPER"),
		NewFile:    opts.NewFile,
		Client:     client,
	}

	result, runErr := orchestrator.Run(context.Background(), cfg)
	if runErr != nil {
		kind := "Unknown"
		if e, ok := errkind.As(runErr); ok {
			kind = e.Kind.String()
		}
		last := "none"
		if result != nil {
			last = sequence.Format(result.LastCompleted)
		}
		gdlog.SummaryLine(os.Stderr, kind, last)
		os.Exit(errkind.ExitCode(runErr))
	}
	return nil
}

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/owaldhammad/getdiff/internal/errkind"
	"github.com/owaldhammad/getdiff/internal/lockfile"
)

var diagnoseDir string

// newDiagnoseCmd builds "getdiff diagnose": a doctor.go-style check list
// reporting working-directory health rather than reaching into live HTTP
// state, since getdiff itself never stays running between invocations.
func newDiagnoseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Report working directory health",
		Long:  "Check the getdiff working directory: lock state, free space, and the tail of getdiff.log.",
		Args:  cobra.NoArgs,
		RunE:  runDiagnose,
	}
	cmd.Flags().StringVarP(&diagnoseDir, "directory", "d", "", "root under which getdiff/ was created")
	return cmd
}

type checkResult struct {
	name   string
	status string
	detail string
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	root := diagnoseDir
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return errkind.Wrap(errkind.IoError, "resolving HOME", err)
		}
		root = home
	}
	base := filepath.Join(root, "getdiff")

	checks := []checkResult{
		checkLock(base),
		checkFreeSpace(base),
		checkLogTail(base),
	}

	healthy := true
	for _, c := range checks {
		fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", c.status, c.name, c.detail)
		if c.status == "error" {
			healthy = false
		}
	}
	if !healthy {
		return errkind.New(errkind.FatalInternal, "one or more diagnose checks failed")
	}
	return nil
}

func checkLock(base string) checkResult {
	path := filepath.Join(base, "getdiff.lock")
	h, err := lockfile.Acquire(path, "getdiff-diagnose")
	if err != nil {
		return checkResult{"lock", "warning", "working directory is locked by a running fetch"}
	}
	h.Release()
	return checkResult{"lock", "ok", "no active lock held"}
}

func checkFreeSpace(base string) checkResult {
	var stat unix.Statfs_t
	if err := unix.Statfs(base, &stat); err != nil {
		return checkResult{"disk", "warning", fmt.Sprintf("could not stat %s: %v", base, err)}
	}
	freeBytes := stat.Bavail * uint64(stat.Bsize)
	const minFree = 100 * 1024 * 1024
	if freeBytes < minFree {
		return checkResult{"disk", "error", fmt.Sprintf("only %d bytes free under %s", freeBytes, base)}
	}
	return checkResult{"disk", "ok", fmt.Sprintf("%d bytes free", freeBytes)}
}

func checkLogTail(base string) checkResult {
	path := filepath.Join(base, "getdiff.log")
	f, err := os.Open(path)
	if err != nil {
		return checkResult{"log", "warning", "no getdiff.log found yet"}
	}
	defer f.Close()

	const tailLines = 5
	lines := make([]string, 0, tailLines)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > tailLines {
			lines = lines[1:]
		}
	}
	if len(lines) == 0 {
		return checkResult{"log", "warning", "getdiff.log is empty"}
	}
	return checkResult{"log", "ok", strings.Join(lines, "\n")}
}

// Package orchestrator drives the fetch state machine: Init -> Locked ->
// Authenticated -> Discovered -> Fetching(n) -> Advancing(n) -> ... -> Done
// or Aborted. It is the only long-lived driver in the system and is
// strictly single-threaded and sequential.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/owaldhammad/getdiff/internal/cookie"
	"github.com/owaldhammad/getdiff/internal/errkind"
	"github.com/owaldhammad/getdiff/internal/gdlog"
	"github.com/owaldhammad/getdiff/internal/httpclient"
	"github.com/owaldhammad/getdiff/internal/lockfile"
	"github.com/owaldhammad/getdiff/internal/metrics"
	"github.com/owaldhammad/getdiff/internal/resume"
	"github.com/owaldhammad/getdiff/internal/sequence"
	"github.com/owaldhammad/getdiff/internal/statefile"
	"github.com/owaldhammad/getdiff/internal/workdir"
)

// SessionCap is the hard per-invocation cap on (diff, state) pairs fetched
// 30 pairs, 61 files including the current latest.state.txt.
const SessionCap = 30

// Config is everything the orchestrator needs for one run; it is passed
// down the call tree explicitly rather than held in global state.
type Config struct {
	ProgName  string
	Version   string
	Source    string
	RootDir   string
	Begin     *sequence.Number // nil = use previous.seq
	End       *sequence.Number // nil = use latest.sequence
	User      string
	Passwd    string
	HelperPath string
	NewFile   bool
	Client    *httpclient.Client
	Now       func() time.Time
}

// Result summarizes a completed or aborted run.
type Result struct {
	LastCompleted sequence.Number
	PairsFetched  int
	Aborted       bool
	AbortErr      error
}

// Run executes the full state machine for one invocation.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	dir := workdir.New(cfg.RootDir)
	if err := dir.Create(); err != nil {
		return nil, err
	}

	lock, err := lockfile.Acquire(dir.Lock, cfg.ProgName)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	log, err := gdlog.Open(dir.Log)
	if err != nil {
		return nil, errkind.Wrap(errkind.IoError, "opening log", err)
	}
	defer log.Close()
	log.Banner("START", cfg.Version)
	warnLowFreeSpace(log, cfg.RootDir)

	run := metrics.NewRun()

	result, runErr := runLocked(ctx, cfg, dir, log, run)

	if runErr != nil {
		log.Errorf("ABORTED: %v", runErr)
	} else {
		log.Banner("DONE", cfg.Version)
	}
	if rendered, err := run.Render(); err == nil {
		log.Info(rendered)
	}

	return result, runErr
}

// minFreeBytes is the threshold below which warnLowFreeSpace logs a
// warning instead of staying silent. It never aborts the run.
const minFreeBytes = 100 * 1024 * 1024

// warnLowFreeSpace logs a non-fatal warning when the filesystem backing
// root is low on space. A failed stat is swallowed the same way: this is
// an operator hint, not a precondition for fetching.
func warnLowFreeSpace(log *gdlog.Logger, root string) {
	var stat unix.Statfs_t
	if err := unix.Statfs(root, &stat); err != nil {
		return
	}
	freeBytes := stat.Bavail * uint64(stat.Bsize)
	if freeBytes < minFreeBytes {
		log.Infof("low disk space under %s: %d bytes free", root, freeBytes)
	}
}

func runLocked(ctx context.Context, cfg Config, dir *workdir.Dir, log *gdlog.Logger, run *metrics.Run) (*Result, error) {
	src, err := dir.ClassifySource(cfg.Source)
	if err != nil {
		return nil, err
	}

	var cookieHeader string
	if src.IsInternal {
		c, err := ensureAuth(ctx, cfg, dir.Tmp, run)
		if err != nil {
			return nil, err
		}
		cookieHeader = c.Raw
	}

	latest, err := fetchLatestState(ctx, cfg, dir, cookieHeader)
	if err != nil {
		return nil, err
	}

	start, previous, havePrevious, err := resolveStart(cfg, dir)
	if err != nil {
		return nil, err
	}
	if havePrevious && start > latest.Sequence {
		log.Info("Nothing new")
		return &Result{LastCompleted: previous}, nil
	}

	end := latest.Sequence
	if cfg.End != nil {
		end = *cfg.End
	}
	if start > end {
		return nil, errkind.New(errkind.ArgError, "start sequence exceeds end sequence")
	}

	if err := copyLatestState(dir, latest); err != nil {
		return nil, err
	}

	lastCompleted := previous
	haveCompleted := havePrevious
	pairsFetched := 0

	n := start
	for {
		ok, err := fetchPair(ctx, cfg, dir, log, run, n, src, &cookieHeader)
		if err != nil {
			return &Result{LastCompleted: lastCompleted, PairsFetched: pairsFetched, Aborted: true, AbortErr: err}, err
		}
		if !ok {
			// NotFound: upstream hasn't published n yet. Done, silently.
			break
		}

		if err := resume.Write(dir.PreviousSeq, dir.Tmp, n); err != nil {
			return &Result{LastCompleted: lastCompleted, PairsFetched: pairsFetched, Aborted: true, AbortErr: err}, err
		}
		lastCompleted = n
		haveCompleted = true
		pairsFetched++
		run.PairsFetched.Inc()

		if err := appendNewerFiles(cfg, dir, n, src); err != nil {
			return &Result{LastCompleted: lastCompleted, PairsFetched: pairsFetched, Aborted: true, AbortErr: err}, err
		}

		if pairsFetched >= SessionCap {
			break
		}
		if n == end {
			break
		}
		n, err = sequence.Next(n)
		if err != nil {
			return &Result{LastCompleted: lastCompleted, PairsFetched: pairsFetched, Aborted: true, AbortErr: err}, err
		}
	}

	if !haveCompleted {
		lastCompleted = 0
	}
	return &Result{LastCompleted: lastCompleted, PairsFetched: pairsFetched}, nil
}

func ensureAuth(ctx context.Context, cfg Config, tmpDir string, run *metrics.Run) (*cookie.Cookie, error) {
	creds := cookie.Credentials{User: cfg.User, Password: cfg.Passwd, HelperPath: cfg.HelperPath}
	cachePath := filepath.Join(tmpDir, "cookie.txt")
	c, err := cookie.EnsureCookie(ctx, creds, cachePath, tmpDir, cfg.Now())
	if err != nil {
		return nil, err
	}
	return c, nil
}

func fetchLatestState(ctx context.Context, cfg Config, dir *workdir.Dir, cookieHeader string) (*statefile.Info, error) {
	url := joinURL(cfg.Source, "state.txt")
	scratch := filepath.Join(dir.Tmp, fmt.Sprintf("latest-%s.state.txt", uuid.NewString()))
	if _, err := cfg.Client.DownloadToFileRetry(ctx, url, scratch, cookieHeader); err != nil {
		return nil, err
	}
	defer os.Remove(scratch)
	data, err := os.ReadFile(scratch)
	if err != nil {
		return nil, errkind.Wrap(errkind.IoError, "reading fetched latest state", err)
	}
	return statefile.Parse(data)
}

func resolveStart(cfg Config, dir *workdir.Dir) (start, previous sequence.Number, havePrevious bool, err error) {
	prev, readErr := resume.Read(dir.PreviousSeq)
	if readErr == nil {
		next, nextErr := sequence.Next(prev)
		if nextErr != nil {
			return 0, 0, false, nextErr
		}
		return next, prev, true, nil
	}
	if e, ok := errkind.As(readErr); ok && e.Kind == errkind.ParseError {
		return 0, 0, false, readErr
	}
	if cfg.Begin != nil {
		return *cfg.Begin, 0, false, nil
	}
	return 0, 0, false, errkind.New(errkind.ArgError, "NoStartPoint: no previous.seq and no --begin supplied")
}

func copyLatestState(dir *workdir.Dir, latest *statefile.Info) error {
	scratch := filepath.Join(dir.Tmp, fmt.Sprintf("latest.state.txt.%s.new", uuid.NewString()))
	if err := os.WriteFile(scratch, latest.Serialize(), 0o644); err != nil {
		return errkind.Wrap(errkind.IoError, "writing latest state scratch file", err)
	}
	if err := os.Rename(scratch, dir.LatestState); err != nil {
		os.Remove(scratch)
		return errkind.Wrap(errkind.IoError, "renaming latest state into place", err)
	}
	return nil
}

// fetchPair downloads the state+diff pair for sequence n. Returns (false,
// nil) when the upstream hasn't published n yet (NotFound, converts to
// quiet success).
func fetchPair(ctx context.Context, cfg Config, dir *workdir.Dir, log *gdlog.Logger, run *metrics.Run, n sequence.Number, src *workdir.Source, cookieHeader *string) (bool, error) {
	triplet := sequence.ToPathTriplet(n)
	localDir := filepath.Join(src.MirrorRoot, filepath.FromSlash(triplet.LocalDir()))
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return false, errkind.Wrap(errkind.IoError, "creating mirror directory", err)
	}

	remoteDir := joinURL(cfg.Source, triplet.RemotePath())
	stateURL := remoteDir + ".state.txt"
	diffURL := remoteDir + ".osc.gz"

	stateScratch := filepath.Join(dir.Tmp, fmt.Sprintf("%s-%s.state.txt", triplet.File, uuid.NewString()))
	stateRes, err := fetchWithPairRetry(ctx, cfg, dir, log, run, stateURL, stateScratch, cookieHeader, src)
	if err != nil {
		if isNotFound(err) {
			os.Remove(stateScratch)
			return false, nil
		}
		os.Remove(stateScratch)
		return false, err
	}
	run.BytesDownloaded.Add(float64(stateRes.Bytes))

	diffFinal := filepath.Join(localDir, triplet.File+".osc.gz")
	diffRes, err := fetchWithPairRetry(ctx, cfg, dir, log, run, diffURL, diffFinal, cookieHeader, src)
	if err != nil {
		os.Remove(stateScratch)
		os.Remove(diffFinal)
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	run.BytesDownloaded.Add(float64(diffRes.Bytes))

	// The state sidecar is renamed into place last, so a consumer checking
	// for its presence never observes an orphaned .osc.gz.
	stateFinal := filepath.Join(localDir, triplet.File+".state.txt")
	if err := os.Rename(stateScratch, stateFinal); err != nil {
		os.Remove(diffFinal)
		os.Remove(stateScratch)
		return false, errkind.Wrap(errkind.IoError, "renaming state file into place", err)
	}

	return true, nil
}

// fetchWithPairRetry wraps the client's own single retry with the
// orchestrator-level retry for TransientServer/NetworkDown/
// HostUnresolvable get one more attempt after a 60s sleep; Forbidden while
// authenticated re-acquires the cookie once and retries once.
func fetchWithPairRetry(ctx context.Context, cfg Config, dir *workdir.Dir, log *gdlog.Logger, run *metrics.Run, url, dest string, cookieHeader *string, src *workdir.Source) (*httpclient.DownloadResult, error) {
	res, err := cfg.Client.DownloadToFileRetry(ctx, url, dest, *cookieHeader)
	if err == nil {
		return res, nil
	}

	e, ok := errkind.As(err)
	if !ok {
		return nil, err
	}

	if e.Code == 404 {
		return nil, err
	}

	if e.Code == 403 && src.IsInternal {
		// Drop the cached cookie so ensureAuth fetches a fresh one.
		os.Remove(filepath.Join(dir.Tmp, "cookie.txt"))
		c, authErr := ensureAuth(ctx, cfg, dir.Tmp, run)
		if authErr != nil {
			return nil, errkind.Wrap(errkind.AuthError, errkind.InvalidCredentials, authErr)
		}
		run.CookieReacquires.Inc()
		*cookieHeader = c.Raw
		run.Retries.Inc()
		return cfg.Client.DownloadToFile(ctx, url, dest, *cookieHeader)
	}

	if e.Message == errkind.TransientServer || e.Message == errkind.NetworkDown || e.Message == errkind.HostUnresolvable {
		run.Retries.Inc()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(60 * time.Second):
		}
		return cfg.Client.DownloadToFile(ctx, url, dest, *cookieHeader)
	}

	return nil, err
}

func isNotFound(err error) bool {
	e, ok := errkind.As(err)
	return ok && e.Code == 404
}

func appendNewerFiles(cfg Config, dir *workdir.Dir, n sequence.Number, src *workdir.Source) error {
	if !cfg.NewFile {
		return nil
	}
	triplet := sequence.ToPathTriplet(n)
	localDir := filepath.Join(src.MirrorRoot, filepath.FromSlash(triplet.LocalDir()))
	diffPath := filepath.Join(localDir, triplet.File+".osc.gz")
	statePath := filepath.Join(localDir, triplet.File+".state.txt")

	if err := appendLines(dir.NewerFiles, diffPath, statePath); err != nil {
		return err
	}
	if cfg.Begin != nil || cfg.End != nil {
		if err := appendLines(dir.RangeList, diffPath, statePath); err != nil {
			return err
		}
	}
	return nil
}

func appendLines(path string, lines ...string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errkind.Wrap(errkind.IoError, "opening append-only file", err)
	}
	defer f.Close()
	for _, l := range lines {
		if _, err := f.WriteString(l + "\n"); err != nil {
			return errkind.Wrap(errkind.IoError, "appending line", err)
		}
	}
	return nil
}

func joinURL(base, suffix string) string {
	if len(base) > 0 && base[len(base)-1] == '/' {
		return base + suffix
	}
	return base + "/" + suffix
}

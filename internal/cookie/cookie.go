// Package cookie manages the Geofabrik internal-server session cookie: a
// Netscape-style single-line cookie acquired by an external OAuth helper
// subprocess, cached to disk, and re-acquired once it goes stale.
package cookie

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"github.com/owaldhammad/getdiff/internal/errkind"
)

// Cookie is a parsed Netscape-style single-line HTTP cookie.
type Cookie struct {
	Token string
	Raw   string

	ExpireWeekday   string
	ExpireDayMonth  string
	ExpireMonth     string // three-letter abbreviation as it appears; the 0-indexed value is kept in month
	ExpireYear      string
	ExpireHour      string
	ExpireMinute    string
	ExpireSecond    string

	year, month, day, hour, minute, second int
}

// Credentials for the OAuth helper subprocess.
type Credentials struct {
	User     string
	Password string
	HelperPath string // path to the opaque oauth_cookie_client.py-style helper
}

// monthIndex maps the three-letter month abbreviations the Netscape/RFC-1123
// expiry format uses to a 0-indexed month, matching the original's gmtime
// struct tm convention (tm_mon is 0-indexed).
var monthIndex = map[string]int{
	"Jan": 0, "Feb": 1, "Mar": 2, "Apr": 3, "May": 4, "Jun": 5,
	"Jul": 6, "Aug": 7, "Sep": 8, "Oct": 9, "Nov": 10, "Dec": 11,
}

// expiryRe matches "expires=Wed, 16 Feb 2022 17:51:27 GMT" inside a Set-Cookie
// style attribute string.
var expiryRe = regexp.MustCompile(`expires=\s*\w+,\s*(\d{1,2})\s+(\w{3})\s+(\d{4})\s+(\d{2}):(\d{2}):(\d{2})\s+GMT`)

// Parse parses a single-line Netscape-style cookie as emitted by the OAuth
// helper: the opaque token followed by its expiry attribute.
func Parse(line string) (*Cookie, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, errkind.New(errkind.ParseError, "empty cookie line")
	}

	tokenPart := line
	if idx := strings.Index(line, ";"); idx >= 0 {
		tokenPart = line[:idx]
	}

	m := expiryRe.FindStringSubmatch(line)
	if m == nil {
		return nil, errkind.New(errkind.ParseError, "cookie line missing parseable expires= attribute")
	}

	day, _ := strconv.Atoi(m[1])
	month := monthIndex[m[2]]
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	second, _ := strconv.Atoi(m[6])

	return &Cookie{
		Token:          strings.TrimSpace(tokenPart),
		Raw:            line,
		ExpireDayMonth: m[1],
		ExpireMonth:    m[2],
		ExpireYear:     m[3],
		ExpireHour:     m[4],
		ExpireMinute:   m[5],
		ExpireSecond:   m[6],
		year:           year,
		month:          month,
		day:            day,
		hour:           hour,
		minute:         minute,
		second:         second,
	}, nil
}

// IsStale reports whether c's expiry falls before now's UTC date, or on
// that same date with an expiry hour less than now's hour plus two (a
// two-hour margin on the hour fields). This margin must never be narrowed:
// a cookie close to expiry is treated as already unusable so a fetch
// doesn't start authenticated and then go stale mid-run.
func (c *Cookie) IsStale(now time.Time) bool {
	now = now.UTC()
	switch {
	case c.year < now.Year():
		return true
	case c.year > now.Year():
		return false
	}
	switch {
	case c.month < int(now.Month())-1:
		return true
	case c.month > int(now.Month())-1:
		return false
	}
	switch {
	case c.day < now.Day():
		return true
	case c.day > now.Day():
		return false
	}
	return c.hour < now.Hour()+2
}

// ReadCache loads a cookie previously persisted by EnsureCookie.
func ReadCache(path string) (*Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(data))
}

// helperSettings is the JSON settings file the OAuth helper subprocess
// reads, per the contract documented by the
// embedded oauth_cookie_client.py.
type helperSettings struct {
	User       string `json:"user"`
	Password   string `json:"password"`
	ConsumerURL string `json:"consumer_url"`
}

// diagnosticSnapshot is dumped as TOML (never including the password)
// alongside an unparseable helper failure message.
type diagnosticSnapshot struct {
	User        string `toml:"user"`
	ConsumerURL string `toml:"consumer_url"`
	HelperPath  string `toml:"helper_path"`
	RawMessage  string `toml:"raw_message"`
}

var httpCodeRe = regexp.MustCompile(`received HTTP code (\d+) but expected 200`)

// EnsureCookie returns a non-stale cookie, invoking the OAuth helper
// subprocess and re-caching the result if the cached cookie is missing or
// stale.
func EnsureCookie(ctx context.Context, creds Credentials, cachePath, workDir string, now time.Time) (*Cookie, error) {
	if c, err := ReadCache(cachePath); err == nil && !c.IsStale(now) {
		return c, nil
	}

	c, err := invokeHelper(ctx, creds, workDir)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(cachePath, []byte(c.Raw), 0o600); err != nil {
		return nil, errkind.Wrap(errkind.IoError, "persisting cookie cache", err)
	}
	return c, nil
}

func invokeHelper(ctx context.Context, creds Credentials, workDir string) (*Cookie, error) {
	settingsPath := filepath.Join(workDir, fmt.Sprintf("settings-%s.json", uuid.NewString()))
	outputPath := filepath.Join(workDir, fmt.Sprintf("cookie-%s.out", uuid.NewString()))
	defer os.Remove(settingsPath)

	settings := helperSettings{User: creds.User, Password: creds.Password}
	data, err := json.Marshal(settings)
	if err != nil {
		return nil, errkind.Wrap(errkind.FatalInternal, "marshaling helper settings", err)
	}
	if err := os.WriteFile(settingsPath, data, 0o600); err != nil {
		return nil, errkind.Wrap(errkind.IoError, "writing helper settings file", err)
	}

	run := func() (*Cookie, error) {
		cmd := exec.CommandContext(ctx, creds.HelperPath, "-s", settingsPath, "-o", outputPath)
		var stderr strings.Builder
		cmd.Stderr = &stderr
		runErr := cmd.Run()
		if runErr == nil {
			raw, readErr := os.ReadFile(outputPath)
			if readErr != nil {
				return nil, errkind.Wrap(errkind.IoError, "reading helper output cookie", readErr)
			}
			return Parse(string(raw))
		}
		return nil, classifyHelperFailure(stderr.String(), settings)
	}

	c, err := run()
	if err == nil {
		return c, nil
	}

	e, ok := errkind.As(err)
	if ok && e.Message == errkind.TransientServer {
		time.Sleep(10 * time.Second)
		c, err2 := run()
		if err2 == nil {
			return c, nil
		}
		return nil, err2
	}
	return nil, err
}

// classifyHelperFailure parses the helper's stderr message, shaped "...
// received HTTP code NNN but expected 200", into the auth error taxonomy of
// taxonomy.
func classifyHelperFailure(stderrMsg string, settings helperSettings) error {
	m := httpCodeRe.FindStringSubmatch(stderrMsg)
	if m == nil {
		dumpUnseenResponse(stderrMsg, settings)
		return errkind.New(errkind.AuthError, errkind.UnknownHelperFailure)
	}
	code, _ := strconv.Atoi(m[1])
	switch {
	case code == 403:
		return errkind.New(errkind.AuthError, errkind.InvalidCredentials)
	case code == 429:
		return errkind.New(errkind.AuthError, errkind.RateLimited)
	case code == 500:
		return errkind.New(errkind.AuthError, errkind.TransientServer)
	case code > 599:
		return errkind.New(errkind.AuthError, errkind.ImpossibleCode)
	default:
		dumpUnseenResponse(stderrMsg, settings)
		return errkind.New(errkind.AuthError, errkind.UnknownHelperFailure)
	}
}

func dumpUnseenResponse(rawMessage string, settings helperSettings) {
	snap := diagnosticSnapshot{
		User:        settings.User,
		ConsumerURL: settings.ConsumerURL,
		RawMessage:  rawMessage,
	}
	data, err := toml.Marshal(snap)
	if err != nil {
		return
	}
	f, err := os.OpenFile("UNSEEN_RESPONSE.txt", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	f.Write(data)
	f.WriteString("\n---\n")
}

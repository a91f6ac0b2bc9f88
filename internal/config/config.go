// Package config reads the getdiff KEY[=]VALUE configuration file and the
// supplemental getdiff-tuning.yml, and resolves final option values by
// flag > env > tuning file > config file > built-in default precedence.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/owaldhammad/getdiff/internal/errkind"
)

// knownKeys are the only keys the KEY[=]VALUE file may set.
var knownKeys = map[string]bool{
	"VERBOSE": true, "USER": true, "PASSWD": true, "SOURCE": true,
	"DIRECTORY": true, "BEGIN": true, "END": true, "NEWER_FILE": true,
}

// File is the parsed KEY[=]VALUE configuration file.
type File struct {
	Values map[string]string
}

// ReadFile parses a getdiff configuration file: lines of KEY[=]VALUE,
// comments beginning with # or ;. Unknown keys and duplicate keys are
// errors. Each line follows an exact token-per-line rule: name, optional
// separator, one value, nothing else.
func ReadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errkind.Wrap(errkind.IoError, "opening config file", err)
	}
	defer f.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		key, value, err := splitConfigLine(line)
		if err != nil {
			return nil, errkind.New(errkind.ParseError, fmt.Sprintf("config file line %d: %v", lineNo, err))
		}
		if !knownKeys[key] {
			return nil, errkind.New(errkind.ParseError, fmt.Sprintf("config file line %d: unknown key %q", lineNo, key))
		}
		if _, dup := values[key]; dup {
			return nil, errkind.New(errkind.ParseError, fmt.Sprintf("config file line %d: duplicate key %q", lineNo, key))
		}
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, errkind.Wrap(errkind.IoError, "reading config file", err)
	}
	return &File{Values: values}, nil
}

// splitConfigLine splits "NAME[=]VALUE" on '=' or whitespace. Exactly two
// tokens are allowed; a third is a malformed-line error.
func splitConfigLine(line string) (key, value string, err error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == '=' || r == ' ' || r == '\t'
	})
	switch len(fields) {
	case 2:
		return fields[0], fields[1], nil
	case 0, 1:
		return "", "", fmt.Errorf("expected NAME and VALUE, got %q", line)
	default:
		return "", "", fmt.Errorf("unexpected extra token on line: %q", line)
	}
}

// Tuning is the supplemental getdiff-tuning.yml: operator knobs that are
// externally configured rather than defaulted (HTTP timeout, redirect
// cap, user-agent, client-side pacing rate).
type Tuning struct {
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxRedirects   int     `yaml:"max_redirects"`
	UserAgent      string  `yaml:"user_agent"`
	RequestsPerSec float64 `yaml:"requests_per_sec"`
}

// ReadTuning parses an optional getdiff-tuning.yml. A missing file is not
// an error; callers get the zero Tuning (all defaults).
func ReadTuning(path string) (*Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Tuning{}, nil
		}
		return nil, errkind.Wrap(errkind.IoError, "reading tuning file", err)
	}
	var t Tuning
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, errkind.Wrap(errkind.ParseError, "parsing tuning file", err)
	}
	return &t, nil
}

// Options is the fully resolved set of run options after applying the
// flag > env > tuning-file > config-file > default precedence chain.
type Options struct {
	Verbose   bool
	Source    string
	Directory string
	Begin     string
	End       string
	User      string
	Passwd    string
	NewFile   bool // true unless -n/--new off|none or config NEWER_FILE=off
}

// Resolve merges a config File (may be nil) with explicit flag values.
// Flag values win whenever they're non-zero; env vars are consulted only
// for Directory.
func Resolve(file *File, flagSource, flagDirectory, flagBegin, flagEnd, flagUser, flagPasswd string, flagVerbose bool, flagNew string) (*Options, error) {
	opts := &Options{NewFile: true}
	if file != nil {
		opts.Source = file.Values["SOURCE"]
		opts.Directory = file.Values["DIRECTORY"]
		opts.Begin = file.Values["BEGIN"]
		opts.End = file.Values["END"]
		opts.User = file.Values["USER"]
		opts.Passwd = file.Values["PASSWD"]
		if v, ok := file.Values["VERBOSE"]; ok {
			opts.Verbose = v == "1" || strings.EqualFold(v, "true")
		}
		if v, ok := file.Values["NEWER_FILE"]; ok && (v == "off" || v == "none") {
			opts.NewFile = false
		}
	}

	if flagSource != "" {
		opts.Source = flagSource
	}
	if flagDirectory != "" {
		opts.Directory = flagDirectory
	} else if env := os.Getenv("GETDIFF_HOME"); env != "" {
		opts.Directory = env
	}
	if flagBegin != "" {
		opts.Begin = flagBegin
	}
	if flagEnd != "" {
		opts.End = flagEnd
	}
	if flagUser != "" {
		opts.User = flagUser
	}
	if flagPasswd != "" {
		opts.Passwd = flagPasswd
	}
	if flagVerbose {
		opts.Verbose = true
	}
	if flagNew == "off" || flagNew == "none" {
		opts.NewFile = false
	}

	if opts.Source == "" {
		return nil, errkind.New(errkind.ArgError, "MissingRequiredArg: --source is required")
	}
	return opts, nil
}

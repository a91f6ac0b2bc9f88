// Package gdlog provides the single append-only getdiff.log (timestamped,
// PID-tagged records) and the colorized one-line operator summary
// requires on stderr.
package gdlog

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// gdFormatter renders exactly "<YYYY-MM-DD HH:MM:SS> [<pid>] message\n",
// the record shape.
type gdFormatter struct {
	pid int
}

func (f *gdFormatter) Format(e *logrus.Entry) ([]byte, error) {
	line := fmt.Sprintf("%s [%d] %s\n", e.Time.Format("2006-01-02 15:04:05"), f.pid, e.Message)
	return []byte(line), nil
}

// Logger is the append-only getdiff.log writer.
type Logger struct {
	*logrus.Logger
	file io.Closer
}

// Open appends to (creating if absent) the log file at path.
func Open(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(f)
	l.SetFormatter(&gdFormatter{pid: os.Getpid()})
	l.SetLevel(logrus.InfoLevel)
	return &Logger{Logger: l, file: f}, nil
}

// Close closes the underlying log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Banner writes a START/DONE banner record including a caller-supplied
// version string.
func (l *Logger) Banner(kind, version string) {
	l.Infof("%s getdiff version %s", kind, version)
}

var (
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

// SummaryLine writes the single, colorized (when stderr is a terminal)
// user-facing line: the error kind and the last sequence
// successfully completed.
func SummaryLine(w io.Writer, errKindName string, lastCompleted string) {
	colorize := isatty.IsTerminal(os.Stderr.Fd())
	var kindText, seqText string
	if colorize {
		kindText = errorStyle.Render(errKindName)
		seqText = dimStyle.Render(lastCompleted)
	} else {
		kindText, seqText = errKindName, lastCompleted
	}
	fmt.Fprintf(w, "%s (last completed sequence: %s)\n", kindText, seqText)
}

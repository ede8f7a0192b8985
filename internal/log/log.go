package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
)

// InitLogger installs the line handler on stderr and sets the level. An empty
// level falls back to MTS_LOG, then ERROR.
func InitLogger(level string) error {
	if level == "" {
		level = os.Getenv("MTS_LOG")
	}
	if level == "" {
		level = "error"
	}
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetHandler(NewHandler(os.Stderr))
	log.SetLevel(lvl)
	return nil
}

// Handler formats entries as "timestamp level message key=value..." lines.
type Handler struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewHandler returns a Handler writing to out.
func NewHandler(out io.Writer) *Handler {
	return &Handler{out: out, now: time.Now}
}

// HandleLog implements the log.Handler interface
func (h *Handler) HandleLog(e *log.Entry) error {
	names := e.Fields.Names()
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %.1s %s", h.now().Format("2006-01-02 15:04:05"), strings.ToUpper(e.Level.String()), e.Message)
	for _, name := range names {
		fmt.Fprintf(&b, " %s=%v", name, e.Fields.Get(name))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

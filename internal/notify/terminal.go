package notify

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// TerminalNotifier prints alerts to a terminal. Risk alerts can ring the bell.
type TerminalNotifier struct {
	out  io.Writer
	bell bool
	mu   sync.Mutex

	title *color.Color
	risk  *color.Color
	fail  *color.Color
	faint *color.Color
}

// NewTerminalNotifier creates a TerminalNotifier writing to out.
func NewTerminalNotifier(out io.Writer, bell bool) *TerminalNotifier {
	return &TerminalNotifier{
		out:   out,
		bell:  bell,
		title: color.New(color.FgCyan, color.Bold),
		risk:  color.New(color.FgYellow, color.Bold),
		fail:  color.New(color.FgRed, color.Bold),
		faint: color.New(color.Faint),
	}
}

// Name returns the name of the notifier.
func (tn *TerminalNotifier) Name() string {
	return "terminal"
}

// IsEnabled returns whether the notifier is enabled.
func (tn *TerminalNotifier) IsEnabled() bool {
	return tn.out != nil
}

// Send writes the notification as a header line, the indented message and
// any data fields in key order.
func (tn *TerminalNotifier) Send(_ context.Context, n Notification) error {
	if tn.out == nil {
		return nil
	}
	ts := n.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	if tn.bell && n.Type == NotificationRisk {
		b.WriteString("\a")
	}
	b.WriteString(tn.faint.Sprint(ts.Format("15:04:05")))
	b.WriteString(" ")
	b.WriteString(tn.colorFor(n.Type).Sprintf("[%s] %s", strings.ToUpper(string(n.Type)), n.Title))
	b.WriteString("\n")
	for _, line := range strings.Split(n.Message, "\n") {
		if line != "" {
			b.WriteString("  " + line + "\n")
		}
	}
	if len(n.Data) > 0 {
		keys := make([]string, 0, len(n.Data))
		for k := range n.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]string, len(keys))
		for i, k := range keys {
			fields[i] = fmt.Sprintf("%s=%v", k, n.Data[k])
		}
		b.WriteString(tn.faint.Sprint("  " + strings.Join(fields, " ")))
		b.WriteString("\n")
	}

	tn.mu.Lock()
	defer tn.mu.Unlock()
	if _, err := io.WriteString(tn.out, b.String()); err != nil {
		return fmt.Errorf("writing terminal alert: %w", err)
	}
	return nil
}

func (tn *TerminalNotifier) colorFor(t NotificationType) *color.Color {
	switch t {
	case NotificationRisk:
		return tn.risk
	case NotificationError:
		return tn.fail
	default:
		return tn.title
	}
}

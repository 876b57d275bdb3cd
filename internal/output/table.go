package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/dispatch"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatResult renders one row per transport tried, with the outcome in the
// footer.
func (f *TableFormatter) FormatResult(result *dispatch.Result) (string, error) {
	if result == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	t.SetTitle("Message " + result.MessageID)
	t.AppendHeader(table.Row{"#", "Transport", "Attempts", "Backoff", "Status", "Last Error"})

	for i, tr := range result.Transports {
		t.AppendRow(table.Row{
			i + 1,
			tr.Name,
			tr.Attempts,
			formatDuration(tr.Backoff),
			statusLabel(tr.Delivered),
			tr.LastError,
		})
	}

	t.AppendFooter(table.Row{"", summary(result), result.Attempts, formatDuration(result.Backoff), "", ""})

	rendered := t.Render()
	rendered += fmt.Sprintf("\nrate wait %s, elapsed %s\n", formatDuration(result.RateWait), formatDuration(result.Elapsed))
	if result.Error != "" {
		rendered += "error: " + result.Error + "\n"
	}
	return rendered, nil
}

func summary(result *dispatch.Result) string {
	if result.Delivered {
		return "delivered via " + result.Transport
	}
	return "not delivered"
}

func statusLabel(delivered bool) string {
	if delivered {
		return "delivered"
	}
	return "failed"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

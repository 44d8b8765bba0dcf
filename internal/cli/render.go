package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"genlux/internal/domain"
	"genlux/internal/progress"
	"genlux/internal/videojob"
)

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok || file == nil {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// progressPrinter rewrites a single status line on terminals and prints one
// line per event otherwise.
type progressPrinter struct {
	w       io.Writer
	locale  string
	tty     bool
	started time.Time
	width   int
}

func newProgressPrinter(w io.Writer, locale string) *progressPrinter {
	return &progressPrinter{w: w, locale: locale, tty: isTerminal(w), started: time.Now()}
}

func (p *progressPrinter) Update(ev videojob.Progress) {
	msg := progress.Localize(p.locale, domain.JobStatusRunning, domain.JobProgress{
		Stage:   string(ev.Stage),
		Step:    ev.Step,
		Total:   ev.Total,
		Message: ev.Message,
	})
	if !p.tty {
		fmt.Fprintln(p.w, msg)
		return
	}
	line := fmt.Sprintf("[%s] %s", time.Since(p.started).Truncate(time.Second), msg)
	pad := p.width - utf8.RuneCountInString(line)
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintf(p.w, "\r%s%s", line, strings.Repeat(" ", pad))
	p.width = utf8.RuneCountInString(line)
}

// Finish ends the status line on terminals.
func (p *progressPrinter) Finish() {
	if p.tty && p.width > 0 {
		fmt.Fprintln(p.w)
	}
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

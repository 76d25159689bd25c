package summary

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	sim "github.com/inference-sim/markov-sim/sim"
)

// columnWidth is the inner width of every report column, borders excluded.
const columnWidth = 10

var (
	ruleHeavy = "+" + strings.Repeat("=", columnWidth) + "+" + strings.Repeat("=", columnWidth) + "+"
	ruleLight = "+" + strings.Repeat("-", columnWidth) + "+" + strings.Repeat("-", columnWidth) + "+"
)

// row is one key/count line of a report table.
type row struct {
	key   string
	count int
}

// RenderReport formats s as three bordered tables: Overview, Fail Chains
// and Success Chains. Keys are sorted ascending. The format is for display
// only; nothing parses it back.
func RenderReport(s *Summary) string {
	var b strings.Builder

	overview := make([]row, 0, len(s.OutcomeCounts))
	for _, o := range s.Outcomes() {
		overview = append(overview, row{key: string(o), count: s.OutcomeCounts[o]})
	}
	b.WriteString("## Overview\n")
	tabulate(&b, "Outcome", "Count", overview)
	b.WriteString("\n")

	b.WriteString("## Fail Chains\n")
	tabulate(&b, "len", "Count", lengthRows(s, sim.OutcomeFail))
	b.WriteString("\n")
	b.WriteString("## Success Chains\n")
	tabulate(&b, "len", "Count", lengthRows(s, sim.OutcomeSuccess))
	b.WriteString("\n")

	return b.String()
}

// WriteReport renders s to w.
func WriteReport(w io.Writer, s *Summary) error {
	if _, err := io.WriteString(w, RenderReport(s)); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

func lengthRows(s *Summary, outcome sim.Outcome) []row {
	lengths := s.Lengths(outcome)
	rows := make([]row, 0, len(lengths))
	for _, length := range lengths {
		rows = append(rows, row{key: strconv.Itoa(length), count: s.LengthHistograms[outcome][length]})
	}
	return rows
}

// tabulate writes one table:
//
//	+==========+==========+
//	| Outcome  |  Count   |
//	+----------+----------+
//	| Fail     |      511 |
//	+==========+==========+
func tabulate(b *strings.Builder, label, value string, rows []row) {
	cell := columnWidth - 2
	b.WriteString(ruleHeavy + "\n")
	fmt.Fprintf(b, "| %s | %s |\n", center(label, cell), center(value, cell))
	for _, r := range rows {
		b.WriteString(ruleLight + "\n")
		fmt.Fprintf(b, "| %-*s | %*d |\n", cell, r.key, cell, r.count)
	}
	b.WriteString(ruleHeavy + "\n")
}

// center pads s to width, putting the odd space on the right.
func center(s string, width int) string {
	pad := width - len(s)
	if pad <= 0 {
		return s
	}
	left := pad / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left)
}

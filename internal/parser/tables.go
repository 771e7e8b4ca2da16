package parser

import "strings"

// FlattenTables rewrites markdown tables in raw into labelled lines that the
// grammar understands. A table whose header names the primary field (for
// example "| Effect | Severity | Prevalence |") yields one block per data
// row:
//
//	EFFECT: Contact dermatitis
//	SEVERITY: Moderate
//	PREVALENCE: 5%
//
// Tables the grammar cannot map are flattened to one line per row with the
// cells joined by spaces. Text outside tables passes through unchanged. When
// raw holds no table it is returned as is.
func (g *Grammar) FlattenTables(raw string) string {
	if !strings.Contains(raw, "|") {
		return raw
	}

	var b strings.Builder

	var (
		header   []Field // nil until a table header has been read
		inTable  bool
		sawTable bool
		mapped   bool
	)

	for _, line := range strings.Split(strings.TrimSuffix(raw, "\n"), "\n") {
		line = strings.TrimSuffix(line, "\r")
		trimmed := strings.TrimSpace(line)

		// table row: "| ... |"
		if strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|") && len(trimmed) > 1 {
			sawTable = true
			cells, sep := splitRow(trimmed)
			if sep {
				continue
			}
			if !inTable {
				inTable = true
				header, mapped = g.headerFields(cells)
				if mapped {
					continue
				}
			}
			if mapped {
				g.writeRow(&b, header, cells)
				continue
			}
			if joined := strings.Join(nonEmpty(cells), " "); joined != "" {
				b.WriteString(joined)
				b.WriteByte('\n')
			}
			continue
		}

		inTable, header, mapped = false, nil, false
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if !sawTable {
		return raw
	}
	return b.String()
}

// headerFields maps header cells to fields. The table is usable only when
// one column names the primary field.
func (g *Grammar) headerFields(cells []string) ([]Field, bool) {
	out := make([]Field, len(cells))
	primary := false
	for i, c := range cells {
		f, ok := g.Lookup(strings.Trim(c, "*_ "))
		if !ok {
			continue
		}
		out[i] = f
		if f == g.primary {
			primary = true
		}
	}
	return out, primary
}

func (g *Grammar) writeRow(b *strings.Builder, header []Field, cells []string) {
	var primaryVal string
	for i, f := range header {
		if f == g.primary && i < len(cells) {
			primaryVal = strings.TrimSpace(cells[i])
		}
	}
	if primaryVal == "" {
		return
	}
	b.WriteByte('\n')
	b.WriteString(string(g.primary) + ": " + primaryVal + "\n")
	for i, f := range header {
		if f == "" || f == g.primary || i >= len(cells) {
			continue
		}
		v := strings.TrimSpace(cells[i])
		if v == "" {
			continue
		}
		b.WriteString(string(f) + ": " + v + "\n")
	}
	b.WriteByte('\n')
}

// splitRow returns the trimmed cells of a table row and whether the row is a
// header separator such as "|---|:---:|".
func splitRow(row string) ([]string, bool) {
	raw := strings.TrimSuffix(strings.TrimPrefix(row, "|"), "|")
	cols := strings.Split(raw, "|")

	allSep := true
	cells := make([]string, 0, len(cols))
	for _, c := range cols {
		cell := strings.TrimSpace(c)
		cells = append(cells, cell)
		tmp := strings.ReplaceAll(cell, ":", "")
		tmp = strings.ReplaceAll(tmp, "-", "")
		if strings.TrimSpace(tmp) != "" {
			allSep = false
		}
	}
	return cells, allSep
}

func nonEmpty(cells []string) []string {
	out := cells[:0:0]
	for _, c := range cells {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

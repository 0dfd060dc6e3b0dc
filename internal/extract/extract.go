package extract

// Classify decides the shape once per table. A header row is a non-empty row
// made entirely of header-kind cells.
func Classify(t TableSnapshot) TableShape {
	if len(t.Rows) < 2 {
		return ShapePositional
	}

	first := t.Rows[0]
	second := t.Rows[1]
	if !allKind(first, CellHeader) {
		return ShapePositional
	}
	if allKind(second, CellData) && len(first.Cells) == len(second.Cells) && len(t.Rows) == 2 {
		return ShapeSingleRecord
	}
	return ShapeMultiRecord
}

func allKind(r Row, kind CellKind) bool {
	if len(r.Cells) == 0 {
		return false
	}
	for _, c := range r.Cells {
		if c.Kind != kind {
			return false
		}
	}
	return true
}

// Table normalizes one snapshot into a section. The bool reports whether any
// cell needed the lossy markup fallback.
func Table(t TableSnapshot) (Section, bool) {
	section := Section{Label: t.Caption}
	degraded := false

	resolve := func(r Row) []string {
		values := make([]string, len(r.Cells))
		for i, c := range r.Cells {
			v, lossy := c.Resolve()
			if lossy {
				degraded = true
			}
			values[i] = v
		}
		return values
	}

	switch Classify(t) {
	case ShapeSingleRecord:
		headers := resolve(t.Rows[0])
		values := resolve(t.Rows[1])
		section.Columns = headers
		section.Records = []Record{zip(headers, values)}

	case ShapeMultiRecord:
		headers := resolve(t.Rows[0])
		section.Columns = headers
		for _, row := range t.Rows[1:] {
			values := resolve(row)
			if len(values) == len(headers) {
				section.Records = append(section.Records, zip(headers, values))
				continue
			}
			// Width mismatch degrades this row only.
			section.Records = append(section.Records, positional(values))
		}

	default:
		width := 0
		for _, row := range t.Rows {
			values := resolve(row)
			if len(values) > width {
				width = len(values)
			}
			section.Records = append(section.Records, positional(values))
		}
		for i := 0; i < width; i++ {
			section.Columns = append(section.Columns, PositionalLabel(i))
		}
	}

	return section, degraded
}

func zip(headers, values []string) Record {
	rec := make(Record, len(headers))
	for i, h := range headers {
		rec[h] = values[i]
	}
	return rec
}

func positional(values []string) Record {
	rec := make(Record, len(values))
	for i, v := range values {
		rec[PositionalLabel(i)] = v
	}
	return rec
}

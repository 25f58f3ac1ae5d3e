package report

import (
	"strings"
	"time"
)

// fileTimestampLayout formats the report timestamp embedded in download file names.
const fileTimestampLayout = "2006-01-02_15-04-05"

// ToCSV renders the header, member rows and TOTALS row. Rows are separated by "\n".
func ToCSV(r *Result) string {
	lines := make([]string, 0, len(r.Members)+2)
	lines = append(lines, joinRecord(r.Header()))
	for _, row := range r.Rows() {
		lines = append(lines, joinRecord(row))
	}
	return strings.Join(lines, "\n")
}

func joinRecord(fields []string) string {
	escaped := make([]string, len(fields))
	for i, f := range fields {
		escaped[i] = EscapeField(f)
	}
	return strings.Join(escaped, ",")
}

// EscapeField quotes a field containing a comma, quote or line break and doubles embedded quotes.
// Other fields are emitted raw.
func EscapeField(field string) string {
	if !strings.ContainsAny(field, ",\"\r\n") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

// FileName builds the download name for a list report generated at now.
func FileName(listName string, now time.Time) string {
	return "list-report-" + sanitizeName(listName) + "-" + now.Format(fileTimestampLayout) + ".csv"
}

// sanitizeName replaces every character outside [A-Za-z0-9] with "_" and lowercases the result.
func sanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

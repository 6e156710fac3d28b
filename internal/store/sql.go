package store

import (
	"strings"
)

// Rows per multi-row statement; keeps parameter counts well under the
// SQLite and Postgres limits for the widest table.
const chunkSize = 500

func chunks[T any](xs []T, n int) [][]T {
	var out [][]T
	for len(xs) > n {
		out = append(out, xs[:n])
		xs = xs[n:]
	}
	if len(xs) > 0 {
		out = append(out, xs)
	}
	return out
}

// insertSQL builds a multi-row INSERT with "?" placeholders; callers Rebind.
func insertSQL(table string, columns []string, rows int, suffix string) string {
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(tuple)
	}
	if suffix != "" {
		b.WriteByte(' ')
		b.WriteString(suffix)
	}
	return b.String()
}

// updateSQL builds "UPDATE table SET c1 = ?, ... WHERE key = ?" over every
// column except the key.
func updateSQL(table string, columns []string, key string) string {
	sets := make([]string, 0, len(columns))
	for _, c := range columns {
		if c != key {
			sets = append(sets, c+" = ?")
		}
	}
	return "UPDATE " + table + " SET " + strings.Join(sets, ", ") + " WHERE " + key + " = ?"
}

func uniqueStrings(xs []string) []string {
	seen := make(map[string]struct{}, len(xs))
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	return out
}

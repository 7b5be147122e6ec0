package merge

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// sql.go builds the statements the merge strategies execute. Builders are
// pure functions over identifier lists so they can be tested without a
// database. All identifiers pass through pgx's sanitizer; the source system
// uses Danish column names with dots and dashes ("Identifikationsnr.",
// "Dato-ID"), so nothing here may assume bare identifiers are safe.

func quoteIdent(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdent(n)
	}
	return out
}

// nonKeyColumns returns cols minus keys, preserving order.
func nonKeyColumns(cols, keys []string) []string {
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	var out []string
	for _, c := range cols {
		if !isKey[c] {
			out = append(out, c)
		}
	}
	return out
}

// buildInsert builds a positional INSERT for one row.
func buildInsert(schemaName, table string, cols []string) string {
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(schemaName, table),
		strings.Join(quoteAll(cols), ", "),
		strings.Join(placeholders, ", "),
	)
}

// buildUpdate builds the targeted per-row update: SET the non-key columns,
// matched by every key column. Arguments are the non-key values followed by
// the key values.
func buildUpdate(schemaName, table string, cols, keys []string) (string, []string, bool) {
	setCols := nonKeyColumns(cols, keys)
	if len(setCols) == 0 {
		return "", nil, false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s SET ", quoteIdent(schemaName, table))
	for i, c := range setCols {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = $%d", quoteIdent(c), i+1)
	}
	b.WriteString(" WHERE ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "%s = $%d", quoteIdent(k), len(setCols)+i+1)
	}
	return b.String(), setCols, true
}

// buildKeyExists builds an existence probe on the key columns, used by the
// row strategy when a table persists nothing but its key.
func buildKeyExists(schemaName, table string, keys []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT EXISTS (SELECT 1 FROM %s WHERE ", quoteIdent(schemaName, table))
	for i, k := range keys {
		if i > 0 {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "%s = $%d", quoteIdent(k), i+1)
	}
	b.WriteString(")")
	return b.String()
}

// buildCreateStage builds the per-operation staging table. The seq column
// preserves file order so duplicate keys within one file resolve to the
// last occurrence.
func buildCreateStage(stage string, cols []string) string {
	defs := make([]string, 0, len(cols)+1)
	defs = append(defs, "seq bigint")
	for _, c := range cols {
		defs = append(defs, quoteIdent(c)+" varchar(255)")
	}
	return fmt.Sprintf("CREATE TEMP TABLE %s (%s)", quoteIdent(stage), strings.Join(defs, ", "))
}

// buildStageMerge builds the single set-based reconciliation statement:
// update matching keys, insert non-matching keys, in one operation. Within
// the stage, the highest seq per key wins.
func buildStageMerge(schemaName, table, stage string, cols, keys []string) string {
	quotedCols := strings.Join(quoteAll(cols), ", ")
	quotedKeys := strings.Join(quoteAll(keys), ", ")

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) ", quoteIdent(schemaName, table), quotedCols)
	fmt.Fprintf(&b, "SELECT DISTINCT ON (%s) %s FROM %s ORDER BY %s, seq DESC ",
		quotedKeys, quotedCols, quoteIdent(stage), quotedKeys)
	fmt.Fprintf(&b, "ON CONFLICT (%s) ", quotedKeys)

	setCols := nonKeyColumns(cols, keys)
	if len(setCols) == 0 {
		b.WriteString("DO NOTHING")
		return b.String()
	}
	b.WriteString("DO UPDATE SET ")
	for i, c := range setCols {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = EXCLUDED.%s", quoteIdent(c), quoteIdent(c))
	}
	return b.String()
}

// buildStageMatchCount counts staged keys already present in the target,
// giving the update/insert split for the bulk strategy's result.
func buildStageMatchCount(schemaName, table, stage string, keys []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT count(*) FROM (SELECT DISTINCT %s FROM %s) s WHERE EXISTS (SELECT 1 FROM %s t WHERE ",
		strings.Join(quoteAll(keys), ", "), quoteIdent(stage), quoteIdent(schemaName, table))
	for i, k := range keys {
		if i > 0 {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "t.%s = s.%s", quoteIdent(k), quoteIdent(k))
	}
	b.WriteString(")")
	return b.String()
}

// buildDropStage drops the staging table if it still exists.
func buildDropStage(stage string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(stage))
}

// buildCreateTable builds the target table: every persisted column as
// variable-length text, with a composite primary key over the business keys
// when the table has any.
func buildCreateTable(schemaName, table string, cols, keys []string) string {
	defs := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		defs = append(defs, quoteIdent(c)+" varchar(255)")
	}
	if len(keys) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(quoteAll(keys), ", ")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		quoteIdent(schemaName, table), strings.Join(defs, ", "))
}

// buildCreateSchema creates the warehouse schema namespace.
func buildCreateSchema(schemaName string) string {
	return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoteIdent(schemaName))
}

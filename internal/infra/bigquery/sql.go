package bigquery

import (
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
)

// rowParams renames a row's parameters so several rows can share a statement.
func rowParams(index int, params []bigquery.QueryParameter) []bigquery.QueryParameter {
	out := make([]bigquery.QueryParameter, len(params))
	for i, p := range params {
		out[i] = bigquery.QueryParameter{Name: fmt.Sprintf("r%d_%s", index, p.Name), Value: p.Value}
	}
	return out
}

func columnNames(params []bigquery.QueryParameter) []string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return names
}

func placeholders(params []bigquery.QueryParameter) string {
	refs := make([]string, len(params))
	for i, p := range params {
		refs[i] = "@" + p.Name
	}
	return strings.Join(refs, ", ")
}

// buildInsert renders a single multi-row INSERT so the batch lands atomically.
func buildInsert(table string, rows [][]bigquery.QueryParameter) (string, []bigquery.QueryParameter) {
	if len(rows) == 0 {
		return "", nil
	}

	var all []bigquery.QueryParameter
	values := make([]string, len(rows))
	for i, row := range rows {
		named := rowParams(i, row)
		values[i] = "(" + placeholders(named) + ")"
		all = append(all, named...)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s)\nVALUES\n\t%s",
		table,
		strings.Join(columnNames(rows[0]), ", "),
		strings.Join(values, ",\n\t"),
	)
	return sql, all
}

// buildMerge renders a MERGE that overwrites every column except the key and
// the skipped ones on rows matched by key. Unmatched rows are left alone so the
// affected row count exposes rows that no longer exist.
func buildMerge(table, key string, skip []string, rows [][]bigquery.QueryParameter) (string, []bigquery.QueryParameter) {
	if len(rows) == 0 {
		return "", nil
	}

	skipped := make(map[string]bool, len(skip)+1)
	skipped[key] = true
	for _, s := range skip {
		skipped[s] = true
	}

	var all []bigquery.QueryParameter
	selects := make([]string, len(rows))
	for i, row := range rows {
		named := rowParams(i, row)
		fields := make([]string, len(row))
		for j, p := range row {
			fields[j] = fmt.Sprintf("@%s AS %s", named[j].Name, p.Name)
		}
		selects[i] = "SELECT " + strings.Join(fields, ", ")
		all = append(all, named...)
	}

	var sets []string
	for _, col := range columnNames(rows[0]) {
		if !skipped[col] {
			sets = append(sets, fmt.Sprintf("%s = S.%s", col, col))
		}
	}

	sql := fmt.Sprintf("MERGE %s T\nUSING (\n\t%s\n) S\nON T.%s = S.%s\nWHEN MATCHED THEN UPDATE SET\n\t%s",
		table,
		strings.Join(selects, "\n\tUNION ALL\n\t"),
		key, key,
		strings.Join(sets, ",\n\t"),
	)
	return sql, all
}

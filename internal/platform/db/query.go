package db

import (
	"fmt"
	"strings"
)

// Query builds a filtered SELECT with a matching COUNT, numbering
// placeholders as clauses are added.
type Query struct {
	table   string
	cols    string
	where   string
	args    []any
	idx     int
	orderBy string
}

func NewQuery(table, cols string) *Query {
	return &Query{table: table, cols: cols, idx: 1}
}

// Idx returns the next placeholder number.
func (q *Query) Idx() int { return q.idx }

// Add appends a WHERE fragment (without the leading AND) and its args.
func (q *Query) Add(clause string, args ...any) {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// AddContains matches any of cols against value as a case-insensitive
// substring. LIKE wildcards in value are matched literally.
func (q *Query) AddContains(value string, cols ...string) {
	if len(cols) == 0 {
		return
	}
	ors := make([]string, len(cols))
	for i, c := range cols {
		ors[i] = fmt.Sprintf("%s ILIKE $%d", c, q.idx)
	}
	q.Add("("+strings.Join(ors, " OR ")+")", "%"+escapeLike(value)+"%")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (q *Query) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

// ApplySort orders by a comma-separated list of sort keys, each optionally
// prefixed with - for descending order. Keys missing from columns are
// ignored; when none remain, def is used.
func (q *Query) ApplySort(sort, def string, columns map[string]string) {
	var parts []string
	for _, key := range strings.Split(sort, ",") {
		key = strings.TrimSpace(key)
		dir := "ASC"
		if strings.HasPrefix(key, "-") {
			dir = "DESC"
			key = key[1:]
		}
		if col, ok := columns[key]; ok {
			parts = append(parts, col+" "+dir)
		}
	}
	if len(parts) == 0 {
		q.orderBy = def
		return
	}
	q.orderBy = strings.Join(parts, ", ")
}

func (q *Query) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", q.table, q.where)
}

func (q *Query) CountArgs() []any {
	return q.args
}

// DataSQL returns the page query with ORDER BY and LIMIT/OFFSET.
func (q *Query) DataSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.table, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	return sql + fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
}

func (q *Query) DataArgs(limit, offset int) []any {
	out := make([]any, len(q.args), len(q.args)+2)
	copy(out, q.args)
	return append(out, limit, offset)
}

package repository

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)

// Predicate is a filter rendered into the WHERE clause of a repository query.
// It uses ? placeholders; the store rebinds them for the active driver.
// The zero Predicate matches every row.
type Predicate struct {
	sql  string
	args []interface{}
	err  error
}

// Where builds a predicate from a raw SQL fragment.
func Where(fragment string, args ...interface{}) Predicate {
	if strings.Count(fragment, "?") != len(args) {
		return Predicate{err: fmt.Errorf("predicate %q expects %d args, got %d",
			fragment, strings.Count(fragment, "?"), len(args))}
	}
	return Predicate{sql: fragment, args: NormalizeTimes(args)}
}

// SQL returns the fragment, its arguments and any construction error.
func (p Predicate) SQL() (string, []interface{}, error) {
	return p.sql, p.args, p.err
}

func (p Predicate) IsZero() bool {
	return p.sql == "" && p.err == nil
}

func (p Predicate) Err() error {
	return p.err
}

func column(name string, build func(col string) Predicate) Predicate {
	if !identifier.MatchString(name) {
		return Predicate{err: fmt.Errorf("invalid column name %q", name)}
	}
	return build(name)
}

func Eq(col string, v interface{}) Predicate {
	return column(col, func(c string) Predicate { return Where(c+" = ?", v) })
}

func NotEq(col string, v interface{}) Predicate {
	return column(col, func(c string) Predicate { return Where(c+" <> ?", v) })
}

func Gte(col string, v interface{}) Predicate {
	return column(col, func(c string) Predicate { return Where(c+" >= ?", v) })
}

func Lte(col string, v interface{}) Predicate {
	return column(col, func(c string) Predicate { return Where(c+" <= ?", v) })
}

// Between is inclusive at both ends.
func Between(col string, lo, hi interface{}) Predicate {
	return column(col, func(c string) Predicate { return Where(c+" >= ? AND "+c+" <= ?", lo, hi) })
}

func IsNull(col string) Predicate {
	return column(col, func(c string) Predicate { return Predicate{sql: c + " IS NULL"} })
}

func In(col string, values ...interface{}) Predicate {
	if len(values) == 0 {
		return Predicate{sql: "1 = 0"}
	}
	return column(col, func(c string) Predicate {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		return Where(c+" IN ("+marks+")", values...)
	})
}

// Contains is a case-insensitive substring match. LIKE wildcards in term are matched literally.
func Contains(col, term string) Predicate {
	return column(col, func(c string) Predicate {
		return Where("LOWER("+c+") LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(term))+"%")
	})
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func And(ps ...Predicate) Predicate {
	return join(" AND ", ps)
}

func Or(ps ...Predicate) Predicate {
	return join(" OR ", ps)
}

func Not(p Predicate) Predicate {
	if p.err != nil {
		return p
	}
	if p.sql == "" {
		return Predicate{sql: "1 = 0"}
	}
	return Predicate{sql: "NOT (" + p.sql + ")", args: p.args}
}

func join(op string, ps []Predicate) Predicate {
	var kept []Predicate
	for _, p := range ps {
		if p.err != nil {
			return p
		}
		if p.sql != "" {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return Predicate{}
	case 1:
		return kept[0]
	}

	parts := make([]string, 0, len(kept))
	var args []interface{}
	for _, p := range kept {
		parts = append(parts, "("+p.sql+")")
		args = append(args, p.args...)
	}
	return Predicate{sql: strings.Join(parts, op), args: args}
}

// NormalizeTimes moves time arguments to UTC in place so that text-encoded
// timestamps compare correctly.
func NormalizeTimes(args []interface{}) []interface{} {
	for i, a := range args {
		switch v := a.(type) {
		case time.Time:
			args[i] = v.UTC()
		case *time.Time:
			if v != nil {
				utc := v.UTC()
				args[i] = &utc
			}
		}
	}
	return args
}

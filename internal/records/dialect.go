package records

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// sqliteTimeLayout is fixed-width so lexical order matches chronological order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// dialect captures the SQL differences between the supported drivers. Queries
// are written with ? placeholders and rebound before execution.
type dialect struct {
	name       string
	numbered   bool
	rowLock    string
	claimLock  string
	encodeTime func(time.Time) any
}

var (
	sqliteDialect = dialect{
		name: "sqlite",
		encodeTime: func(t time.Time) any {
			return t.UTC().Format(sqliteTimeLayout)
		},
	}
	postgresDialect = dialect{
		name:      "postgres",
		numbered:  true,
		rowLock:   " FOR UPDATE OF m",
		claimLock: " FOR UPDATE OF m SKIP LOCKED",
		encodeTime: func(t time.Time) any {
			return t.UTC()
		},
	}
)

// rebind rewrites ? placeholders into $n for numbered dialects. Queries never
// contain literal question marks.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d dialect) timeArg(t time.Time) any {
	return d.encodeTime(t)
}

func (d dialect) nullableTimeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.encodeTime(*t)
}

// dbTime scans timestamps stored either as native values or as sqlite text.
type dbTime struct {
	Time  time.Time
	Valid bool
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (t *dbTime) parse(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		t.Time, t.Valid = time.Time{}, false
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return fmt.Errorf("parse time %q: %w", value, err)
	}
	t.Time, t.Valid = parsed.UTC(), true
	return nil
}

func (t dbTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

package sqlstore

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect carries what differs between the relational engines behind Store.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2, ...) instead of '?'.
	Numbered bool
	// LockSuffix is appended to row reads inside write transactions.
	LockSuffix string
	TxOptions  *sql.TxOptions
	Schema     []string
	// EncodeTime converts a timestamp into the value bound for a timestamp column.
	EncodeTime            func(time.Time) any
	IsUniqueViolation     func(error) bool
	IsForeignKeyViolation func(error) bool
}

// TextTimeLayout is fixed width so that encoded timestamps sort lexically.
const TextTimeLayout = "2006-01-02T15:04:05.000000000Z"

func EncodeTextTime(t time.Time) any {
	return t.UTC().Format(TextTimeLayout)
}

func EncodeNativeTime(t time.Time) any {
	return t.UTC()
}

func (d Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) time(t time.Time) any {
	if d.EncodeTime == nil {
		return EncodeNativeTime(t)
	}
	return d.EncodeTime(t)
}

func (d Dialect) nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.time(*t)
}

func (d Dialect) uniqueViolation(err error) bool {
	return d.IsUniqueViolation != nil && d.IsUniqueViolation(err)
}

func (d Dialect) foreignKeyViolation(err error) bool {
	return d.IsForeignKeyViolation != nil && d.IsForeignKeyViolation(err)
}

// timeValue scans both native timestamps and the text encoding.
type timeValue struct {
	dst *time.Time
}

func (v timeValue) Scan(src any) error {
	switch val := src.(type) {
	case time.Time:
		*v.dst = val.UTC()
	case string:
		return v.parse(val)
	case []byte:
		return v.parse(string(val))
	case nil:
		*v.dst = time.Time{}
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
	return nil
}

func (v timeValue) parse(raw string) error {
	for _, layout := range []string{TextTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			*v.dst = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", raw)
}

type nullTimeValue struct {
	dst **time.Time
}

func (v nullTimeValue) Scan(src any) error {
	if src == nil {
		*v.dst = nil
		return nil
	}
	var t time.Time
	if err := (timeValue{dst: &t}).Scan(src); err != nil {
		return err
	}
	*v.dst = &t
	return nil
}

package chain

import (
	"sort"
	"strconv"
	"strings"
)

// Field is one named value contributing to a record hash.
type Field struct {
	Key   string
	Value string
}

// String returns a text field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int returns a signed integer field in base 10.
func Int(key string, value int64) Field {
	return Field{Key: key, Value: strconv.FormatInt(value, 10)}
}

// Uint returns an unsigned integer field in base 10.
func Uint(key string, value uint64) Field {
	return Field{Key: key, Value: strconv.FormatUint(value, 10)}
}

// List returns a field holding an ordered list. Elements are escaped so that
// ["a,b"] and ["a", "b"] never canonicalize to the same value.
func List(key string, values []string) Field {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = listEscaper.Replace(v)
	}
	return Field{Key: key, Value: "[" + strings.Join(escaped, ",") + "]"}
}

// Prefixed returns fields with prefix prepended to every key.
func Prefixed(prefix string, fields []Field) []Field {
	out := make([]Field, len(fields))
	for i, f := range fields {
		out[i] = Field{Key: prefix + f.Key, Value: f.Value}
	}
	return out
}

var (
	fieldEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`, `=`, `\=`)
	listEscaper  = strings.NewReplacer(`\`, `\\`, `,`, `\,`, `[`, `\[`, `]`, `\]`)
)

// Canonical serializes fields as key=value pairs sorted by key and joined by
// "|". Keys and values are escaped so field boundaries are unambiguous.
// Fields sharing a key keep their relative order.
func Canonical(fields []Field) string {
	sorted := make([]Field, len(fields))
	copy(sorted, fields)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Key < sorted[j].Key
	})

	var b strings.Builder
	for i, f := range sorted {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(fieldEscaper.Replace(f.Key))
		b.WriteByte('=')
		b.WriteString(fieldEscaper.Replace(f.Value))
	}
	return b.String()
}

// Package record holds the schemaless row type shared by the backends and
// renderers. Rows are keyed by column id.
package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/imgajeed76/gridsync/internal/util"
)

// Record is one row as returned by a backend.
type Record map[string]any

// String renders the value of field for display. Missing and null values
// render as "".
func (r Record) String(field string) string {
	return Format(r[field])
}

// IDFunc returns a row identity function reading field.
func IDFunc(field string) func(Record) string {
	return func(r Record) string {
		return r.String(field)
	}
}

// Format renders a decoded JSON or database value as cell text.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return util.CellText(x)
	case []byte:
		return util.CellText(string(x))
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format("2006-01-02 15:04")
	case fmt.Stringer:
		return util.CellText(x.String())
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return util.CellText(fmt.Sprint(x))
	}
}

package ledger

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Diego-II/expense-tracker-api/internal/domain"
)

// Header is the first line of every ledger document.
const Header = "Amount,Merchant,Name,Card,Timestamp\n"

// FormatRow renders one newline-terminated CSV line.
func FormatRow(row []any) string {
	fields := make([]string, len(row))
	for i, v := range row {
		fields[i] = FormatField(v)
	}
	return strings.Join(fields, ",") + "\n"
}

// FormatField stringifies a value and quotes it when it contains a comma,
// a double quote or a newline. Absent values render as an empty field.
func FormatField(v any) string {
	s := stringify(v)
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *string:
		if x == nil {
			return ""
		}
		return *x
	case decimal.Decimal:
		return x.String()
	case decimal.NullDecimal:
		if !x.Valid {
			return ""
		}
		return x.Decimal.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case time.Time:
		return domain.FormatTimestamp(x)
	case fmt.Stringer:
		if isNilPointer(v) {
			return ""
		}
		return x.String()
	}
	if isNilPointer(v) {
		return ""
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		return stringify(rv.Elem().Interface())
	}
	return fmt.Sprint(v)
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

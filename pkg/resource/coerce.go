package resource

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// dateLayouts are tried in order when coercing date filter values.
var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// Coerce converts a raw filter value to the Go type matching field type t.
// Strings are parsed; values already of a suitable type pass through. List
// values ([]string) are coerced element-wise.
func Coerce(t FieldType, v any) (any, error) {
	switch raw := v.(type) {
	case []string:
		out := make([]any, 0, len(raw))
		for _, s := range raw {
			c, err := Coerce(t, s)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	case string:
		return coerceString(t, raw)
	default:
		return v, nil
	}
}

// Coerce converts a raw value for attribute a. Beyond Coerce it checks the
// store format of string attributes: uuid values must parse and are
// returned in canonical form.
func (a Attribute) Coerce(v any) (any, error) {
	if a.Type != FieldString || a.Format != FormatUUID {
		return Coerce(a.Type, v)
	}
	switch raw := v.(type) {
	case []string:
		out := make([]any, 0, len(raw))
		for _, s := range raw {
			c, err := a.Coerce(s)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	case string:
		u, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a uuid", raw)
		}
		return u.String(), nil
	default:
		return v, nil
	}
}

func coerceString(t FieldType, s string) (any, error) {
	switch t {
	case FieldNumber:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", s)
		}
		return f, nil
	case FieldBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", s)
		}
		return b, nil
	case FieldDate:
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
		return nil, fmt.Errorf("%q is not a date", s)
	default:
		return s, nil
	}
}

// FormatUUID is the Format of uuid columns.
const FormatUUID = "uuid"

// FormatOf returns the store format of a string column: empty for character
// types, the udt name for user-defined types (enums, citext), the data type
// otherwise (uuid, inet, ...). Non-string columns have no format.
func FormatOf(dataType, udtName string) string {
	if FieldTypeOf(dataType, udtName) != FieldString {
		return ""
	}
	switch dt := strings.ToLower(dataType); dt {
	case "text", "character varying", "character", "name", "\"char\"":
		return ""
	case "user-defined":
		return udtName
	default:
		return dt
	}
}

// FieldTypeOf maps an information_schema data_type (and udt_name for
// user-defined and array types) to a FieldType.
func FieldTypeOf(dataType, udtName string) FieldType {
	switch strings.ToLower(dataType) {
	case "smallint", "integer", "bigint", "numeric", "decimal", "real", "double precision", "money":
		return FieldNumber
	case "boolean":
		return FieldBoolean
	case "date", "timestamp without time zone", "timestamp with time zone",
		"time without time zone", "time with time zone":
		return FieldDate
	case "array":
		return FieldArray
	case "json", "jsonb":
		return FieldObject
	case "user-defined":
		if udtName == "vector" || strings.HasPrefix(udtName, "_") {
			return FieldArray
		}
		return FieldString
	default:
		return FieldString
	}
}

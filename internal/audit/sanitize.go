package audit

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Sanitize keeps the whitelisted keys of a free-form change description and
// coerces each value to its declared type. Everything else is dropped.
func Sanitize(changes map[string]any) Changes {
	var out Changes
	for key, value := range changes {
		switch key {
		case "fields":
			if items, ok := stringSet(value); ok {
				out.Fields = items
			}
		case "filters":
			if items, ok := stringSet(value); ok {
				out.Filters = items
			}
		case "summary":
			s := toString(value)
			out.Summary = &s
		case "metadata":
			s := toString(value)
			out.Metadata = &s
		case "count":
			n := toInt(value)
			out.Count = &n
		}
	}
	return out
}

// stringSet converts a slice, array, or map (keys) into a sorted, de-duplicated
// string list. A bare string counts as a single item; other scalars are rejected.
func stringSet(value any) ([]string, bool) {
	if value == nil {
		return nil, false
	}

	seen := make(map[string]struct{})
	switch v := value.(type) {
	case string:
		seen[v] = struct{}{}
	case []string:
		for _, s := range v {
			seen[s] = struct{}{}
		}
	default:
		rv := reflect.ValueOf(value)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			for i := 0; i < rv.Len(); i++ {
				seen[toString(rv.Index(i).Interface())] = struct{}{}
			}
		case reflect.Map:
			for _, k := range rv.MapKeys() {
				seen[toString(k.Interface())] = struct{}{}
			}
		default:
			return nil, false
		}
	}

	items := make([]string, 0, len(seen))
	for s := range seen {
		items = append(items, s)
	}
	sort.Strings(items)
	return items, true
}

func toString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// toInt mirrors integer coercion: whole numbers and numeric strings convert,
// floats truncate, anything else becomes 0.
func toInt(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case uint64:
		return int(v)
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func floatToInt(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(f)
}

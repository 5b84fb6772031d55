package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Direction is an ORDER BY direction
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// SearchFilter is the declarative search grammar shared by every search
// endpoint. It lives for one request.
type SearchFilter struct {
	Limit           int              `json:"limit"`
	Offset          int              `json:"offset"`
	Select          []string         `json:"select"`
	Relation        []string         `json:"relation"`
	WhereConditions []WhereCondition `json:"whereConditions"`
	OrderBy         *OrderBy         `json:"orderBy"`
	Keyword         string           `json:"keyword"`
	Count           CountFlag        `json:"count"`
}

// WhereCondition is one equality constraint. A null value matches NULL.
type WhereCondition struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// OrderBy pins the result order. It decodes from either
// {"field":"createdDate","direction":"DESC"} or {"createdDate":"DESC"}.
type OrderBy struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

func (o *OrderBy) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("orderBy must be an object: %w", err)
	}

	if field, ok := raw["field"]; ok {
		o.Field = field
		o.Direction = Direction(raw["direction"])
		return nil
	}

	if len(raw) != 1 {
		return fmt.Errorf("orderBy must name exactly one field")
	}
	for field, dir := range raw {
		o.Field = field
		o.Direction = Direction(dir)
	}
	return nil
}

// normalize upper-cases the direction and defaults it to ascending
func (o OrderBy) normalize() (OrderBy, bool) {
	switch d := Direction(strings.ToUpper(string(o.Direction))); d {
	case "", Asc:
		return OrderBy{Field: o.Field, Direction: Asc}, true
	case Desc:
		return OrderBy{Field: o.Field, Direction: Desc}, true
	default:
		return o, false
	}
}

// CountFlag is the count-only switch. Booleans are taken as is and numbers
// are true when non-zero. Strings must parse as a boolean or a number and
// follow the same rule; the empty string is false. Any other value is
// rejected.
type CountFlag bool

func (c *CountFlag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = false
		return nil
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}

	switch t := v.(type) {
	case bool:
		*c = CountFlag(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}
		*c = f != 0
	case string:
		flag, err := ParseCountFlag(t)
		if err != nil {
			return err
		}
		*c = flag
	default:
		return fmt.Errorf("count must be a boolean or a number")
	}
	return nil
}

// ParseCountFlag applies the CountFlag coercion rule to a query-string value
func ParseCountFlag(s string) (CountFlag, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, nil
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return CountFlag(b), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f != 0, nil
	}
	return false, fmt.Errorf("count must be a boolean or a number, got %q", s)
}

// DecodeFilter reads a SearchFilter from JSON, keeping numbers exact
func DecodeFilter(data []byte) (SearchFilter, error) {
	var f SearchFilter
	if len(bytes.TrimSpace(data)) == 0 {
		return f, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&f); err != nil {
		return SearchFilter{}, err
	}
	return f, nil
}

// coerce converts a decoded JSON value to the Go type pgx binds for kind
func coerce(kind Kind, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch kind {
	case KindInt:
		return toInt64(value)
	case KindFlag:
		if b, ok := value.(bool); ok {
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		}
		return toInt64(value)
	case KindText:
		switch t := value.(type) {
		case string:
			return t, nil
		case json.Number:
			return t.String(), nil
		}
	case KindBool:
		switch t := value.(type) {
		case bool:
			return t, nil
		case string:
			if b, err := strconv.ParseBool(t); err == nil {
				return b, nil
			}
		case json.Number:
			n, err := t.Int64()
			if err == nil {
				return n != 0, nil
			}
		}
	case KindTime:
		if s, ok := value.(string); ok {
			if ts, err := time.Parse(time.RFC3339, s); err == nil {
				return ts, nil
			}
			if ts, err := time.Parse("2006-01-02", s); err == nil {
				return ts, nil
			}
		}
	}

	return nil, fmt.Errorf("must be a %s", kind)
}

func toInt64(value any) (int64, error) {
	switch t := value.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
	case float64:
		if t == float64(int64(t)) {
			return int64(t), nil
		}
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("must be a %s", KindInt)
}

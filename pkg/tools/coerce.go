package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidArguments marks arguments that cannot be used even after
// coercion.
var ErrInvalidArguments = errors.New("invalid arguments")

// CoerceArguments parses raw provider JSON into an argument map and
// best-effort converts values to the declared parameter types. Models often
// send "3" for an integer or a lone value where a list is expected; those
// are repaired rather than rejected.
//
// Conversions applied per declared type:
//   - array: a scalar becomes a one-element array; elements are coerced to Items
//   - integer: integral numbers and numeric strings become int64, other
//     numbers float64
//   - number: numbers and numeric strings become float64
//   - boolean: "true" and "false" become bool
//   - string: numbers and booleans become their text
//
// Numbers are decoded exactly, so integers beyond 2^53 survive. Numbers no
// declared type claims stay json.Number.
//
// Empty input is an empty object. Non-object JSON and missing required
// parameters wrap ErrInvalidArguments. Undeclared keys pass through.
func CoerceArguments(raw string, d Descriptor) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}

	var args map[string]any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("%w: arguments are not a JSON object: %v", ErrInvalidArguments, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: arguments are not a JSON object: trailing data", ErrInvalidArguments)
	}
	if args == nil {
		// Literal null.
		args = map[string]any{}
	}

	var missing []string
	for _, p := range d.Parameters {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				missing = append(missing, p.Name)
			}
			continue
		}
		args[p.Name] = coerceValue(v, p.Type, p.Items)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required parameter(s): %s", ErrInvalidArguments, strings.Join(missing, ", "))
	}

	return args, nil
}

func coerceValue(v any, typ, items string) any {
	switch typ {
	case TypeArray:
		list, ok := v.([]any)
		if !ok {
			list = []any{v}
		}
		if items != "" {
			for i, e := range list {
				list[i] = coerceValue(e, items, "")
			}
		}
		return list

	case TypeInteger:
		switch x := v.(type) {
		case json.Number:
			if n, err := x.Int64(); err == nil {
				return n
			}
			if f, err := x.Float64(); err == nil {
				if n, ok := integral(f); ok {
					return n
				}
				return f
			}
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
				return n
			}
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				if n, ok := integral(f); ok {
					return n
				}
			}
		}

	case TypeNumber:
		switch x := v.(type) {
		case json.Number:
			if f, err := x.Float64(); err == nil {
				return f
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				return f
			}
		}

	case TypeBoolean:
		if s, ok := v.(string); ok {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "true":
				return true
			case "false":
				return false
			}
		}

	case TypeString:
		switch x := v.(type) {
		case json.Number:
			return x.String()
		case bool:
			return strconv.FormatBool(x)
		}
	}
	return v
}

// integral reports f as an int64 when it has no fraction and fits.
func integral(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

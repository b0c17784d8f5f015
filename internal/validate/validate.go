// Package validate checks flat JSON request bodies against declarative
// rule schemas before a controller runs.
package validate

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"nexusstore/internal/apperr"
)

type Type string

const (
	String  Type = "string"
	Number  Type = "number"
	Integer Type = "integer"
	Boolean Type = "boolean"
	Email   Type = "email"
)

// Rules constrain one field. Zero values mean "no constraint".
type Rules struct {
	Required  bool
	Type      Type
	MinLength int
	MaxLength int
	Min       *float64
	Max       *float64
	Enum      []string
	Pattern   *regexp.Regexp
}

type Field struct {
	Name  string
	Rules Rules
}

// Schema is checked in declaration order so messages are stable.
type Schema []Field

// F is shorthand for declaring a schema field.
func F(name string, r Rules) Field { return Field{Name: name, Rules: r} }

// Bound returns a pointer for Min/Max.
func Bound(v float64) *float64 { return &v }

var tags = validator.New()

func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// Check validates data against s. All field errors are joined into a
// single validation error.
func Check(data map[string]interface{}, s Schema) error {
	var errs []string
	for _, f := range s {
		errs = append(errs, checkField(f.Name, data[f.Name], f.Rules)...)
	}
	if len(errs) == 0 {
		return nil
	}
	return apperr.Validation(strings.Join(errs, ". "))
}

func checkField(name string, value interface{}, r Rules) []string {
	if isEmpty(value) {
		if r.Required {
			return []string{fmt.Sprintf("field %q is required", name)}
		}
		return nil
	}

	var errs []string
	str, isString := value.(string)
	num, isNumber := asNumber(value)

	switch r.Type {
	case "":
	case Email:
		if !isString || tags.Var(str, "required,email") != nil {
			errs = append(errs, fmt.Sprintf("field %q must be a valid email address", name))
		}
	case Number:
		if !isNumber {
			errs = append(errs, fmt.Sprintf("field %q must be a number", name))
		}
	case Integer:
		if !isNumber || num != math.Trunc(num) {
			errs = append(errs, fmt.Sprintf("field %q must be an integer", name))
		}
	case Boolean:
		if _, ok := value.(bool); !ok {
			errs = append(errs, fmt.Sprintf("field %q must be of type boolean", name))
		}
	case String:
		if !isString {
			errs = append(errs, fmt.Sprintf("field %q must be of type string", name))
		}
	}

	if isString {
		n := utf8.RuneCountInString(str)
		if r.MinLength > 0 && n < r.MinLength {
			errs = append(errs, fmt.Sprintf("field %q must be at least %d characters", name, r.MinLength))
		}
		if r.MaxLength > 0 && n > r.MaxLength {
			errs = append(errs, fmt.Sprintf("field %q must be at most %d characters", name, r.MaxLength))
		}
	}
	if isNumber {
		if r.Min != nil && num < *r.Min {
			errs = append(errs, fmt.Sprintf("field %q must be greater than or equal to %v", name, *r.Min))
		}
		if r.Max != nil && num > *r.Max {
			errs = append(errs, fmt.Sprintf("field %q must be less than or equal to %v", name, *r.Max))
		}
	}
	if len(r.Enum) > 0 && !inEnum(value, r.Enum) {
		errs = append(errs, fmt.Sprintf("field %q must be one of: %s", name, strings.Join(r.Enum, ", ")))
	}
	if r.Pattern != nil && (!isString || !r.Pattern.MatchString(str)) {
		errs = append(errs, fmt.Sprintf("field %q has an invalid format", name))
	}
	return errs
}

func inEnum(v interface{}, enum []string) bool {
	s := fmt.Sprint(v)
	for _, e := range enum {
		if e == s {
			return true
		}
	}
	return false
}

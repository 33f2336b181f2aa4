// Package schema enforces the accepted shape of upstream JSON responses.
//
// A contract runs in three steps over one payload: a structural walk that
// checks presence and JSON types field by field, a typed decode, and struct
// tag refinements (ranges, enum values, parallel array lengths). The first
// failure wins, so messages are stable for a given payload.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

const rootPath = "(root)"

// ValidationError reports the first field that did not satisfy a contract.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema validation failed at %s: %s", e.Path, e.Reason)
}

// Kind is the JSON type a Field accepts.
type Kind int

const (
	String Kind = iota
	Number
	Integer
	Bool
	Object
	Array
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Number:
		return "number"
	case Integer:
		return "integer"
	case Bool:
		return "boolean"
	case Object:
		return "object"
	case Array:
		return "array"
	default:
		return "unknown"
	}
}

// Field describes one node of a contract. Object fields are checked in
// declaration order; keys not listed are passed through untouched.
type Field struct {
	Name     string
	Kind     Kind
	Optional bool
	Fields   []Field
	Elem     *Field
}

// Contract validates raw JSON into T.
type Contract[T any] struct {
	ID   ContractID
	Root Field

	// finish receives the decoded value and the top-level keys the contract does not name.
	finish func(out *T, extra map[string]any)
}

// Validate checks raw against the contract and decodes it.
func (c Contract[T]) Validate(raw []byte) (T, error) {
	var zero T

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return zero, &ValidationError{Path: rootPath, Reason: "Invalid JSON: " + err.Error()}
	}

	if verr := check(c.Root, doc, nil); verr != nil {
		return zero, verr
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, &ValidationError{Path: rootPath, Reason: err.Error()}
	}

	if err := validate.Struct(out); err != nil {
		return zero, fromValidator(err)
	}

	if c.finish != nil {
		m, _ := doc.(map[string]any)
		c.finish(&out, extras(c.Root, m))
	}
	return out, nil
}

func check(f Field, v any, path []string) *ValidationError {
	switch f.Kind {
	case String:
		if _, ok := v.(string); !ok {
			return mismatch(f.Kind, v, path)
		}
	case Bool:
		if _, ok := v.(bool); !ok {
			return mismatch(f.Kind, v, path)
		}
	case Number:
		n, ok := v.(json.Number)
		if !ok {
			return mismatch(f.Kind, v, path)
		}
		if _, err := n.Float64(); err != nil {
			return &ValidationError{Path: joinPath(path), Reason: "Number out of range"}
		}
	case Integer:
		n, ok := v.(json.Number)
		if !ok {
			return mismatch(f.Kind, v, path)
		}
		if _, err := strconv.Atoi(n.String()); err != nil {
			return &ValidationError{Path: joinPath(path), Reason: "Expected integer, received float"}
		}
	case Array:
		items, ok := v.([]any)
		if !ok {
			return mismatch(f.Kind, v, path)
		}
		if f.Elem == nil {
			return nil
		}
		for i, item := range items {
			if verr := check(*f.Elem, item, appendPath(path, strconv.Itoa(i))); verr != nil {
				return verr
			}
		}
	case Object:
		m, ok := v.(map[string]any)
		if !ok {
			return mismatch(f.Kind, v, path)
		}
		for _, child := range f.Fields {
			val, present := m[child.Name]
			childPath := appendPath(path, child.Name)
			if !present {
				if child.Optional {
					continue
				}
				return &ValidationError{Path: joinPath(childPath), Reason: "Required"}
			}
			if verr := check(child, val, childPath); verr != nil {
				return verr
			}
		}
	}
	return nil
}

func mismatch(want Kind, got any, path []string) *ValidationError {
	return &ValidationError{
		Path:   joinPath(path),
		Reason: fmt.Sprintf("Expected %s, received %s", want, typeName(got)),
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func appendPath(path []string, seg string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, seg)
}

func joinPath(path []string) string {
	if len(path) == 0 {
		return rootPath
	}
	return strings.Join(path, ".")
}

func extras(root Field, doc map[string]any) map[string]any {
	known := make(map[string]struct{}, len(root.Fields))
	for _, f := range root.Fields {
		known[f.Name] = struct{}{}
	}
	var out map[string]any
	for k, v := range doc {
		if _, ok := known[k]; ok {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[k] = v
	}
	return out
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("samelen", sameLen); err != nil {
		panic(err)
	}
	return v
}

// sameLen requires the slice to be as long as the sibling slice named by the tag parameter.
func sameLen(fl validator.FieldLevel) bool {
	field := fl.Field()
	other := fl.Parent().FieldByName(fl.Param())
	if !other.IsValid() || field.Kind() != reflect.Slice || other.Kind() != reflect.Slice {
		return false
	}
	return field.Len() == other.Len()
}

func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Path: rootPath, Reason: err.Error()}
	}

	fe := verrs[0]
	path := namespacePath(fe.Namespace())
	switch fe.Tag() {
	case "samelen":
		// reported against the object holding the parallel arrays
		parent := rootPath
		if i := strings.LastIndexByte(path, '.'); i >= 0 {
			parent = path[:i]
		}
		return &ValidationError{Path: parent, Reason: arraysReason(parent)}
	case "gte":
		return &ValidationError{Path: path, Reason: "Number must be greater than or equal to " + fe.Param()}
	case "lte":
		return &ValidationError{Path: path, Reason: "Number must be less than or equal to " + fe.Param()}
	case "oneof":
		return &ValidationError{Path: path, Reason: "Invalid enum value. Expected " + strings.ReplaceAll(fe.Param(), " ", " | ")}
	default:
		return &ValidationError{Path: path, Reason: fmt.Sprintf("Failed %s check", fe.Tag())}
	}
}

// namespacePath turns "ForecastPayload.results[0].latitude" into "results.0.latitude".
func namespacePath(ns string) string {
	i := strings.IndexByte(ns, '.')
	if i < 0 {
		return rootPath
	}
	ns = ns[i+1:]
	return strings.NewReplacer("[", ".", "]", "").Replace(ns)
}

func arraysReason(parent string) string {
	seg := parent
	if i := strings.LastIndexByte(seg, '.'); i >= 0 {
		seg = seg[i+1:]
	}
	if seg == "" || seg == rootPath {
		return "Arrays must have the same length"
	}
	return strings.ToUpper(seg[:1]) + seg[1:] + " arrays must have the same length"
}

package rest

import (
	"cmp"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/edgeflare/pgjsonapi/pkg/resource"
)

// Pagination bounds the page window of list requests. A zero DefaultSize
// leaves requests without page[size] unpaginated unless MaxSize is set.
type Pagination struct {
	DefaultSize int `mapstructure:"defaultSize" validate:"gte=0"`
	MaxSize     int `mapstructure:"maxSize" validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type queryParser struct {
	reg     *resource.Registry
	entity  *resource.Entity
	paging  Pagination
	details []resource.ErrorDetail
}

func (p *queryParser) fail(code string, path []string, format string, args ...any) {
	p.details = append(p.details, resource.ErrorDetail{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Path:    path,
	})
}

// ParseQuery validates the query string of a read request on e. Every
// referenced name is checked against the registry, so the returned Query
// compiles without contract violations.
func ParseQuery(values url.Values, reg *resource.Registry, e *resource.Entity, paging Pagination) (*resource.Query, error) {
	p := &queryParser{reg: reg, entity: e, paging: paging}
	q := &resource.Query{}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	pageValues := map[string]string{}
	for _, key := range keys {
		family, segments, ok := parseKey(key)
		if !ok {
			p.fail("invalid_parameter", []string{key}, "malformed parameter %q", key)
			continue
		}
		vals := values[key]
		switch family {
		case "filter":
			for _, v := range vals {
				if cond, ok := p.condition(key, segments, v); ok {
					q.Filter = append(q.Filter, cond)
				}
			}
		case "sort":
			if len(segments) != 0 {
				p.fail("invalid_parameter", []string{key}, "sort takes no brackets")
				continue
			}
			q.Sort = append(q.Sort, p.sort(lastValue(vals))...)
		case "fields":
			if len(segments) != 1 {
				p.fail("invalid_parameter", []string{key}, "fields needs exactly one type or relation")
				continue
			}
			p.fields(&q.Fields, segments[0], lastValue(vals))
		case "include":
			if len(segments) != 0 {
				p.fail("invalid_parameter", []string{key}, "include takes no brackets")
				continue
			}
			q.Include = p.include(lastValue(vals))
		case "page":
			if len(segments) != 1 || (segments[0] != "number" && segments[0] != "size") {
				p.fail("invalid_parameter", []string{key}, "page supports page[number] and page[size]")
				continue
			}
			pageValues[segments[0]] = lastValue(vals)
		default:
			p.fail("unknown_parameter", []string{key}, "unknown query parameter %q", key)
		}
	}
	q.Page = p.page(pageValues)

	if len(p.details) > 0 {
		return nil, resource.InvalidQuery(p.details...)
	}
	return q, nil
}

// parseKey splits "filter[a][b]" into "filter" and ["a", "b"].
func parseKey(key string) (string, []string, bool) {
	family, rest, found := strings.Cut(key, "[")
	if !found {
		return key, nil, true
	}
	rest = "[" + rest
	var segments []string
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, false
		}
		end := strings.IndexByte(rest, ']')
		if end < 2 {
			return "", nil, false
		}
		segments = append(segments, rest[1:end])
		rest = rest[end+1:]
	}
	return family, segments, true
}

func lastValue(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[len(vals)-1]
}

// splitList splits a comma separated value, dropping empty items.
func splitList(v string) []string {
	var out []string
	for item := range strings.SplitSeq(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (p *queryParser) condition(key string, segments []string, value string) (resource.Condition, bool) {
	path := []string{key}
	if len(segments) == 0 || len(segments) > 2 {
		p.fail("invalid_filter", path, "filter needs a field and an optional operand")
		return resource.Condition{}, false
	}
	op := resource.OpEq
	if len(segments) == 2 {
		parsed, err := resource.ParseOperand(segments[1])
		if err != nil {
			p.fail("invalid_operand", path, "%v", err)
			return resource.Condition{}, false
		}
		op = parsed
	}
	cond := resource.Condition{Operand: op, Value: value}
	if op.IsList() {
		cond.Value = splitList(value)
	}

	relName, field, dotted := strings.Cut(segments[0], ".")
	if !dotted {
		cond.Field = relName
		if attr, ok := p.entity.Column(relName); ok {
			return cond, p.checkValue(path, attr, cond)
		}
		if _, ok := p.entity.Relation(relName); ok {
			if !cond.IsNull() {
				p.fail("invalid_filter", path, "relation %s only supports eq or ne null", relName)
				return resource.Condition{}, false
			}
			return cond, true
		}
		p.fail("unknown_field", path, "%s has no field %q", p.entity.Type(), relName)
		return resource.Condition{}, false
	}

	_, target, err := p.reg.Relation(p.entity, relName)
	if err != nil {
		p.fail("unknown_relation", path, "%s has no relation %q", p.entity.Type(), relName)
		return resource.Condition{}, false
	}
	attr, ok := target.Column(field)
	if !ok {
		p.fail("unknown_field", path, "%s has no field %q", target.Type(), field)
		return resource.Condition{}, false
	}
	cond.Relation = relName
	cond.Field = field
	return cond, p.checkValue(path, attr, cond)
}

// checkValue rejects values the attribute type cannot hold.
func (p *queryParser) checkValue(path []string, attr resource.Attribute, cond resource.Condition) bool {
	if cond.IsNull() {
		return true
	}
	switch cond.Operand {
	case resource.OpLike, resource.OpRegexp:
		return true
	case resource.OpSome:
		if attr.Type != resource.FieldArray {
			p.fail("invalid_operand", path, "some is only valid on array fields, %s is %s", attr.Name, attr.Type)
			return false
		}
		return true
	}
	if attr.Type == resource.FieldArray || attr.Type == resource.FieldObject {
		return true
	}
	var items []string
	switch v := cond.Value.(type) {
	case string:
		items = []string{v}
	case []string:
		items = v
	}
	for _, item := range items {
		if _, err := attr.Coerce(item); err != nil {
			p.fail("invalid_value", path, "%s: %v", attr.Name, err)
			return false
		}
	}
	return true
}

func (p *queryParser) sort(value string) []resource.SortField {
	var out []resource.SortField
	for item := range strings.SplitSeq(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			p.fail("invalid_sort", []string{"sort"}, "empty sort field")
			continue
		}
		dir := resource.Asc
		if name, ok := strings.CutPrefix(item, "-"); ok {
			item, dir = name, resource.Desc
		}
		relName, field, dotted := strings.Cut(item, ".")
		if !dotted {
			if _, ok := p.entity.Column(item); !ok {
				p.fail("unknown_field", []string{"sort"}, "%s has no field %q", p.entity.Type(), item)
				continue
			}
			out = append(out, resource.SortField{Field: item, Direction: dir})
			continue
		}
		_, target, err := p.reg.Relation(p.entity, relName)
		if err != nil {
			p.fail("unknown_relation", []string{"sort"}, "%s has no relation %q", p.entity.Type(), relName)
			continue
		}
		if _, ok := target.Column(field); !ok {
			p.fail("unknown_field", []string{"sort"}, "%s has no field %q", target.Type(), field)
			continue
		}
		out = append(out, resource.SortField{Relation: relName, Field: field, Direction: dir})
	}
	return out
}

// fields fills the sparse fieldset named by key: the requested type, or a
// relation of it.
func (p *queryParser) fields(f *resource.Fields, key, value string) {
	path := []string{"fields", key}
	names := splitList(value)
	if names == nil {
		names = []string{}
	}

	target := p.entity
	if key != p.entity.Type() {
		_, t, err := p.reg.Relation(p.entity, key)
		if err != nil {
			p.fail("unknown_relation", path, "%q is neither %s nor one of its relations", key, p.entity.Type())
			return
		}
		target = t
	}
	for _, name := range names {
		if _, ok := target.Column(name); ok {
			continue
		}
		if _, ok := target.Relation(name); ok {
			continue
		}
		p.fail("unknown_field", path, "%s has no field %q", target.Type(), name)
	}

	if key == p.entity.Type() {
		f.Target = names
		return
	}
	if f.Relation == nil {
		f.Relation = make(map[string][]string)
	}
	f.Relation[key] = names
}

func (p *queryParser) include(value string) []string {
	var out []string
	for _, name := range splitList(value) {
		if strings.Contains(name, ".") {
			p.fail("unsupported_include", []string{"include"}, "nested include %q is not supported", name)
			continue
		}
		if _, ok := p.entity.Relation(name); !ok {
			p.fail("unknown_relation", []string{"include"}, "%s has no relation %q", p.entity.Type(), name)
			continue
		}
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

func (p *queryParser) page(values map[string]string) resource.Page {
	size := cmp.Or(p.paging.DefaultSize, p.paging.MaxSize)
	number := 1
	for _, part := range []string{"number", "size"} {
		raw, ok := values[part]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			p.fail("invalid_page", []string{"page", part}, "page[%s] must be an integer", part)
			continue
		}
		tag := "min=1"
		if part == "size" && p.paging.MaxSize > 0 {
			tag += ",max=" + strconv.Itoa(p.paging.MaxSize)
		}
		if err := validate.Var(n, tag); err != nil {
			p.fail("invalid_page", []string{"page", part}, "page[%s] %s", part, validationMessage(err))
			continue
		}
		if part == "number" {
			number = n
		} else {
			size = n
		}
	}
	if size == 0 {
		return resource.Page{}
	}
	return resource.Page{Number: number, Size: size}
}

func validationMessage(err error) string {
	var msgs []string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("must satisfy %s=%s", fe.Tag(), fe.Param()))
		}
		return strings.Join(msgs, ", ")
	}
	return err.Error()
}

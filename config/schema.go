package config

import (
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/picklebridge/errors"
)

var builtins = map[string]bool{
	"bool": true, "s8": true, "s16": true, "s32": true, "s64": true,
	"u8": true, "u16": true, "u32": true, "u64": true,
	"f32": true, "f64": true, "char": true, "string": true,
	"list": true, "option": true, "tuple": true,
}

func isBuiltin(name string) bool { return builtins[name] }

// Schema is the set of named types declared by a config, resolved to WIT
// types. A named type resolves to the same *wit.TypeDef wherever it is
// referenced.
type Schema struct {
	cfg       *Config
	types     map[string]wit.Type
	resolving map[string]bool
}

// Schema resolves every type the config declares. Recursive types are
// rejected.
func (c *Config) Schema() (*Schema, error) {
	s := &Schema{
		cfg:       c,
		types:     make(map[string]wit.Type),
		resolving: make(map[string]bool),
	}
	for _, name := range s.declared() {
		if _, err := s.named(name); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Lookup returns the named type.
func (s *Schema) Lookup(name string) (wit.Type, bool) {
	t, ok := s.types[name]
	return t, ok
}

// Names lists the declared type names in sorted order.
func (s *Schema) Names() []string {
	return keys(s.types)
}

// Parse resolves a type expression such as "list<option<point>>" against
// the schema.
func (s *Schema) Parse(expr string) (wit.Type, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.InvalidInput(errors.PhaseConfig, "empty type expression")
	}

	if open := strings.IndexByte(expr, '<'); open >= 0 {
		if !strings.HasSuffix(expr, ">") {
			return nil, errors.InvalidInput(errors.PhaseConfig, "unterminated type arguments in "+expr)
		}
		head := strings.TrimSpace(expr[:open])
		args, err := splitArgs(expr[open+1 : len(expr)-1])
		if err != nil {
			return nil, errors.InvalidInput(errors.PhaseConfig, err.Error()+" in "+expr)
		}
		types := make([]wit.Type, len(args))
		for i, a := range args {
			if types[i], err = s.Parse(a); err != nil {
				return nil, err
			}
		}
		return generic(head, types, expr)
	}

	if _, ok := s.cfg.section(expr); ok {
		return s.named(expr)
	}
	t, err := wit.ParseType(expr)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindNotFound).
			Cause(err).
			Detail("unknown type %q", expr).
			Build()
	}
	return t, nil
}

func generic(head string, args []wit.Type, expr string) (wit.Type, error) {
	switch head {
	case "list", "option":
		if len(args) != 1 {
			return nil, errors.InvalidInput(errors.PhaseConfig, head+" takes one type argument: "+expr)
		}
		if head == "list" {
			return &wit.TypeDef{Kind: &wit.List{Type: args[0]}}, nil
		}
		return &wit.TypeDef{Kind: &wit.Option{Type: args[0]}}, nil
	case "tuple":
		if len(args) == 0 {
			return nil, errors.InvalidInput(errors.PhaseConfig, "tuple needs at least one type argument: "+expr)
		}
		return &wit.TypeDef{Kind: &wit.Tuple{Types: args}}, nil
	}
	return nil, errors.InvalidInput(errors.PhaseConfig, "unknown generic type "+head+" in "+expr)
}

// splitArgs splits a comma separated argument list at nesting depth zero.
func splitArgs(s string) ([]string, error) {
	var (
		out   []string
		depth int
		start int
	)
	for i, ch := range s {
		switch ch {
		case '<':
			depth++
		case '>':
			depth--
			if depth < 0 {
				return nil, errors.InvalidInput(errors.PhaseConfig, "unbalanced '>'")
			}
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, "unbalanced '<'")
	}
	if last := strings.TrimSpace(s[start:]); last != "" || len(out) > 0 {
		out = append(out, last)
	}
	for _, a := range out {
		if a == "" {
			return nil, errors.InvalidInput(errors.PhaseConfig, "empty type argument")
		}
	}
	return out, nil
}

func (s *Schema) named(name string) (wit.Type, error) {
	if t, ok := s.types[name]; ok {
		return t, nil
	}
	if s.resolving[name] {
		return nil, errors.InvalidInput(errors.PhaseConfig, "type "+name+" refers to itself")
	}
	s.resolving[name] = true
	defer delete(s.resolving, name)

	section, _ := s.cfg.section(name)
	var kind wit.TypeDefKind
	switch section {
	case "types":
		fields := s.cfg.Types[name]
		rec := &wit.Record{Fields: make([]wit.Field, 0, len(fields))}
		for _, f := range s.cfg.fieldOrder(name) {
			ft, err := s.Parse(fields[f])
			if err != nil {
				return nil, errors.Wrap(errors.PhaseConfig, errors.KindOf(err), err, "field "+name+"."+f)
			}
			rec.Fields = append(rec.Fields, wit.Field{Name: f, Type: ft})
		}
		kind = rec

	case "aliases":
		target, err := s.Parse(s.cfg.Aliases[name])
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindOf(err), err, "alias "+name)
		}
		kind = target

	case "enums":
		cases := s.cfg.Enums[name]
		if len(cases) == 0 {
			return nil, errors.InvalidInput(errors.PhaseConfig, "enum "+name+" has no cases")
		}
		e := &wit.Enum{Cases: make([]wit.EnumCase, len(cases))}
		for i, c := range cases {
			e.Cases[i] = wit.EnumCase{Name: c}
		}
		kind = e

	case "flags":
		f := &wit.Flags{Flags: make([]wit.Flag, len(s.cfg.Flags[name]))}
		for i, n := range s.cfg.Flags[name] {
			f.Flags[i] = wit.Flag{Name: n}
		}
		kind = f
	}

	n := name
	td := &wit.TypeDef{Name: &n, Kind: kind}
	s.types[name] = td
	return td, nil
}

// section reports which table declares name.
func (c *Config) section(name string) (string, bool) {
	if _, ok := c.Types[name]; ok {
		return "types", true
	}
	if _, ok := c.Aliases[name]; ok {
		return "aliases", true
	}
	if _, ok := c.Enums[name]; ok {
		return "enums", true
	}
	if _, ok := c.Flags[name]; ok {
		return "flags", true
	}
	return "", false
}

// fieldOrder returns the fields of record name in file order. Records
// built in code rather than decoded fall back to sorted order.
func (c *Config) fieldOrder(name string) []string {
	if order, ok := c.order[name]; ok && len(order) == len(c.Types[name]) {
		return order
	}
	return keys(c.Types[name])
}

func (s *Schema) declared() []string {
	var names []string
	names = append(names, keys(s.cfg.Types)...)
	names = append(names, keys(s.cfg.Aliases)...)
	names = append(names, keys(s.cfg.Enums)...)
	names = append(names, keys(s.cfg.Flags)...)
	return names
}

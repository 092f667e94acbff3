package generator

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"
)

// The declarative surface is a class-like block of assignment-shaped lines:
//
//	type Counter <: baseExpr
//	    increment(self *Counter, by int64) = self.Count += by
//	    area(self *Counter) = self.W * self.H
//	    area(self *Counter, scale float64) = self.W * self.H * scale
//	    value.get(self *Counter) = self.Count
//	    value.set!(self *Counter, v int64) = self.Count = v
//	end
//
// A line's left side is either name(params...) for a method, or
// attr.get(params...) / attr.set!(params...) for an accessor. Lines sharing a
// method name become clauses of one generated function, dispatched on
// argument count. Bodies are Go expressions or statements emitted verbatim.

// Descriptor is the parsed intermediate form of one class block. Parsing is
// fully decoupled from code emission: the descriptor carries everything the
// translation phase needs and nothing about trampolines or tables.
type Descriptor struct {
	TypeName string
	SelfType string
	Base     string
	Methods  []*MethodGroup
	Getters  map[string]*Accessor
	Setters  map[string]*Accessor

	accessorOrder []string
	methodsByName map[string]*MethodGroup
}

// MethodGroup collects every clause registered under one exposed name.
type MethodGroup struct {
	Name    string
	Clauses []*Clause
}

// Clause is one declarative line: its parameters (self first) and its body.
type Clause struct {
	Params []Param
	Body   string
	Line   int
}

// Accessor is one get or set! line.
type Accessor struct {
	Params []Param
	Body   string
	Line   int
}

// Param is a declared parameter, optionally carrying a Go type. An untyped
// parameter is bridged as any.
type Param struct {
	Name string
	Type string
}

// SyntaxError reports a malformed declarative line.
type SyntaxError struct {
	Line    int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// ConfigError reports an inconsistent but well-formed block, such as a setter
// without a getter.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Parse reads one class block into a descriptor.
func Parse(src string) (*Descriptor, error) {
	desc := &Descriptor{
		Getters:       map[string]*Accessor{},
		Setters:       map[string]*Accessor{},
		methodsByName: map[string]*MethodGroup{},
	}

	sawHeader := false
	sawEnd := false
	lineNo := 0

	scanner := bufio.NewScanner(strings.NewReader(src))
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if sawEnd {
			return nil, &SyntaxError{Line: lineNo, Message: "content after end"}
		}

		if !sawHeader {
			if err := parseHeader(desc, line, lineNo); err != nil {
				return nil, err
			}
			sawHeader = true
			continue
		}

		if line == "end" {
			sawEnd = true
			continue
		}

		if err := parseBodyLine(desc, line, lineNo); err != nil {
			return nil, err
		}
	}

	if !sawHeader {
		return nil, &SyntaxError{Line: lineNo, Message: "missing type header"}
	}
	if !sawEnd {
		return nil, &SyntaxError{Line: lineNo, Message: "missing end"}
	}

	if err := desc.validate(); err != nil {
		return nil, err
	}
	return desc, nil
}

func parseHeader(desc *Descriptor, line string, lineNo int) error {
	rest, ok := strings.CutPrefix(line, "type ")
	if !ok {
		return &SyntaxError{Line: lineNo, Message: "expected type header"}
	}

	name := strings.TrimSpace(rest)
	if idx := strings.Index(rest, "<:"); idx >= 0 {
		name = strings.TrimSpace(rest[:idx])
		desc.Base = strings.TrimSpace(rest[idx+2:])
		if desc.Base == "" {
			return &SyntaxError{Line: lineNo, Message: "empty base clause"}
		}
	}
	if !identRe.MatchString(name) {
		return &SyntaxError{Line: lineNo, Message: fmt.Sprintf("invalid type name %q", name)}
	}
	desc.TypeName = name
	return nil
}

func parseBodyLine(desc *Descriptor, line string, lineNo int) error {
	open := strings.Index(line, "(")
	if open < 0 {
		return &SyntaxError{Line: lineNo, Message: "expected name(params...) = body"}
	}
	head := strings.TrimSpace(line[:open])

	closeIdx := matchParen(line, open)
	if closeIdx < 0 {
		return &SyntaxError{Line: lineNo, Message: "unbalanced parameter list"}
	}

	rest := strings.TrimSpace(line[closeIdx+1:])
	body, ok := strings.CutPrefix(rest, "=")
	if !ok {
		return &SyntaxError{Line: lineNo, Message: "expected = after parameter list"}
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return &SyntaxError{Line: lineNo, Message: "empty body"}
	}

	params, err := parseParams(line[open+1:closeIdx], lineNo)
	if err != nil {
		return err
	}
	if len(params) == 0 || params[0].Name != "self" {
		return &SyntaxError{Line: lineNo, Message: "first parameter must be self"}
	}
	if params[0].Type != "" {
		if desc.SelfType == "" {
			desc.SelfType = params[0].Type
		} else if desc.SelfType != params[0].Type {
			return &SyntaxError{Line: lineNo, Message: fmt.Sprintf("self type %s conflicts with %s", params[0].Type, desc.SelfType)}
		}
	}

	if dot := strings.Index(head, "."); dot >= 0 {
		return desc.addAccessor(head[:dot], head[dot+1:], params, body, lineNo)
	}
	return desc.addMethod(head, params, body, lineNo)
}

func (desc *Descriptor) addMethod(name string, params []Param, body string, lineNo int) error {
	if !identRe.MatchString(name) {
		return &SyntaxError{Line: lineNo, Message: fmt.Sprintf("invalid method name %q", name)}
	}

	group, ok := desc.methodsByName[name]
	if !ok {
		group = &MethodGroup{Name: name}
		desc.methodsByName[name] = group
		desc.Methods = append(desc.Methods, group)
	}
	for _, clause := range group.Clauses {
		if len(clause.Params) == len(params) {
			return &ConfigError{Message: fmt.Sprintf("line %d: duplicate clause of %s with %d arguments", lineNo, name, len(params)-1)}
		}
	}
	group.Clauses = append(group.Clauses, &Clause{Params: params, Body: body, Line: lineNo})
	return nil
}

func (desc *Descriptor) addAccessor(attr, kind string, params []Param, body string, lineNo int) error {
	if !identRe.MatchString(attr) {
		return &SyntaxError{Line: lineNo, Message: fmt.Sprintf("invalid attribute name %q", attr)}
	}

	switch kind {
	case "get":
		if len(params) != 1 {
			return &SyntaxError{Line: lineNo, Message: "getter takes exactly (self)"}
		}
		if _, dup := desc.Getters[attr]; dup {
			return &ConfigError{Message: fmt.Sprintf("line %d: duplicate getter for %s", lineNo, attr)}
		}
		desc.Getters[attr] = &Accessor{Params: params, Body: body, Line: lineNo}
		desc.accessorOrder = append(desc.accessorOrder, attr)
	case "set!":
		if len(params) != 2 {
			return &SyntaxError{Line: lineNo, Message: "setter takes exactly (self, value)"}
		}
		if _, dup := desc.Setters[attr]; dup {
			return &ConfigError{Message: fmt.Sprintf("line %d: duplicate setter for %s", lineNo, attr)}
		}
		desc.Setters[attr] = &Accessor{Params: params, Body: body, Line: lineNo}
	default:
		return &SyntaxError{Line: lineNo, Message: fmt.Sprintf("unknown accessor %q, expected get or set!", kind)}
	}
	return nil
}

func (desc *Descriptor) validate() error {
	for attr := range desc.Setters {
		if _, ok := desc.Getters[attr]; !ok {
			return &ConfigError{Message: fmt.Sprintf("attribute %s has a setter but no getter", attr)}
		}
	}
	if desc.SelfType == "" {
		return &ConfigError{Message: fmt.Sprintf("type %s never declares a typed self parameter", desc.TypeName)}
	}
	return nil
}

// AccessorNames returns the declared attributes in first-appearance order.
func (desc *Descriptor) AccessorNames() []string {
	return desc.accessorOrder
}

// matchParen returns the index of the parenthesis closing the one at open, or
// -1. Parameter types may nest parentheses and brackets freely.
func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func parseParams(list string, lineNo int) ([]Param, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil, nil
	}

	var params []Param
	for _, field := range splitTopLevel(list) {
		field = strings.TrimSpace(field)
		if field == "" {
			return nil, &SyntaxError{Line: lineNo, Message: "empty parameter"}
		}
		name, typ, _ := strings.Cut(field, " ")
		if !identRe.MatchString(name) {
			return nil, &SyntaxError{Line: lineNo, Message: fmt.Sprintf("invalid parameter name %q", name)}
		}
		params = append(params, Param{Name: name, Type: strings.TrimSpace(typ)})
	}
	return params, nil
}

// splitTopLevel splits on commas outside brackets, so types like
// map[string]any survive.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

package generator

import (
	"bytes"
	"embed"
	"fmt"
	"go/format"
	goparser "go/parser"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/tools/go/packages"
)

//go:embed templates/*.tmpl
var templates embed.FS

// Config drives one generation run. Inputs are declarative class blocks, the
// output is a single Go file of trampoline-shaped functions plus one
// RegisterX helper per block. When Package is empty the package name is
// resolved from the Go package already living in the output directory.
type Config struct {
	Package string   `toml:"package"`
	Output  string   `toml:"output"`
	Inputs  []string `toml:"inputs"`
}

type templateData struct {
	Pkg   string
	Types []*templateType
}

type templateType struct {
	Name       string
	GoName     string
	SelfType   string
	Base       string
	SampleExpr string
	Methods    []*templateMethod
	Accessors  []*templateAccessor
}

type templateMethod struct {
	Exposed  string
	FuncName string
	Clauses  []*templateClause
}

type templateClause struct {
	Args []templateArg
	Body string
}

type templateArg struct {
	Name string
	Type string
}

type templateAccessor struct {
	Name       string
	GetFunc    string
	GetBody    string
	SetFunc    string
	SetArgName string
	SetArgType string
	SetBody    string
}

// Generate parses every configured input block and writes the formatted
// bindings file.
func Generate(cfg Config) error {
	if cfg.Output == "" {
		return &ConfigError{Message: "no output file configured"}
	}
	if len(cfg.Inputs) == 0 {
		return &ConfigError{Message: "no input files configured"}
	}

	pkg := cfg.Package
	if pkg == "" {
		resolved, err := resolvePackage(cfg.Output)
		if err != nil {
			return err
		}
		pkg = resolved
	}

	data := &templateData{Pkg: pkg}
	for _, input := range cfg.Inputs {
		src, err := os.ReadFile(input)
		if err != nil {
			return err
		}
		desc, err := Parse(string(src))
		if err != nil {
			return fmt.Errorf("%s: %w", input, err)
		}
		data.Types = append(data.Types, translate(desc))
	}

	out, err := Render(data)
	if err != nil {
		return err
	}
	return os.WriteFile(cfg.Output, out, 0o644)
}

// Render executes the bindings template and gofmts the result. Split from
// Generate so callers can generate to memory.
func Render(data *templateData) ([]byte, error) {
	tmpl, err := template.ParseFS(templates, "templates/*.tmpl")
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "bindings.tmpl", data); err != nil {
		return nil, err
	}

	formatted, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("generated bindings do not parse: %w", err)
	}
	return formatted, nil
}

// Translate turns one parsed descriptor into template input.
func Translate(desc *Descriptor) *templateData {
	return &templateData{Types: []*templateType{translate(desc)}}
}

func translate(desc *Descriptor) *templateType {
	t := &templateType{
		Name:       desc.TypeName,
		GoName:     exportName(desc.TypeName),
		SelfType:   desc.SelfType,
		Base:       desc.Base,
		SampleExpr: sampleExpr(desc.SelfType),
	}

	for _, group := range desc.Methods {
		m := &templateMethod{
			Exposed:  group.Name,
			FuncName: fmt.Sprintf("bind%s%s", t.GoName, exportName(group.Name)),
		}
		for _, clause := range group.Clauses {
			c := &templateClause{Body: resultBody(clause.Body)}
			for _, p := range clause.Params[1:] {
				c.Args = append(c.Args, templateArg{Name: p.Name, Type: paramType(p)})
			}
			m.Clauses = append(m.Clauses, c)
		}
		t.Methods = append(t.Methods, m)
	}

	for _, attr := range desc.AccessorNames() {
		a := &templateAccessor{
			Name:    attr,
			GetFunc: fmt.Sprintf("bind%s%sGet", t.GoName, exportName(attr)),
			GetBody: resultBody(desc.Getters[attr].Body),
		}
		if set, ok := desc.Setters[attr]; ok {
			a.SetFunc = fmt.Sprintf("bind%s%sSet", t.GoName, exportName(attr))
			a.SetArgName = set.Params[1].Name
			a.SetArgType = paramType(set.Params[1])
			a.SetBody = assignBody(set.Body)
		}
		t.Accessors = append(t.Accessors, a)
	}
	return t
}

func paramType(p Param) string {
	if p.Type == "" {
		return "any"
	}
	return p.Type
}

// resultBody shapes a declarative body into the tail of an (any, error)
// function. An expression body becomes its return value; a statement body is
// spliced verbatim and falls through to a nil result.
func resultBody(body string) string {
	if isExpression(body) {
		return "return " + body + ", nil"
	}
	return body + "\nreturn nil, nil"
}

// assignBody shapes a setter body into the tail of an error-returning
// function.
func assignBody(body string) string {
	if isExpression(body) {
		return "_ = " + body + "\nreturn nil"
	}
	return body + "\nreturn nil"
}

func isExpression(body string) bool {
	_, err := goparser.ParseExpr(body)
	return err == nil
}

func sampleExpr(selfType string) string {
	if strings.HasPrefix(selfType, "*") {
		return "(" + selfType + ")(nil)"
	}
	return "*new(" + selfType + ")"
}

var illegalIdentChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

var titleCaser = cases.Title(language.English, cases.NoLower)

func exportName(name string) string {
	return titleCaser.String(illegalIdentChars.ReplaceAllString(name, "_"))
}

func resolvePackage(output string) (string, error) {
	dir := filepath.Dir(output)
	pkgs, err := packages.Load(&packages.Config{Mode: packages.NeedName, Dir: dir}, ".")
	if err != nil {
		return "", err
	}
	if len(pkgs) == 0 || pkgs[0].Name == "" {
		return "", &ConfigError{Message: fmt.Sprintf("cannot resolve the package for %s, set package in the config", output)}
	}
	return pkgs[0].Name, nil
}

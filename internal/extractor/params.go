package extractor

import (
	"context"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"

	"stubgen/internal/symbol"
)

const prototypeName = "stubgen_params"

// ParamParser splits a C parameter list into typed, named parameters.
// The C grammar is tried first; a lexical splitter handles what it rejects.
type ParamParser struct {
	parser *sitter.Parser
}

func NewParamParser() *ParamParser {
	parser := sitter.NewParser()
	parser.SetLanguage(c.GetLanguage())
	return &ParamParser{parser: parser}
}

func (p *ParamParser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

// Parse returns the parameters of list, the text between the parentheses of a
// prototype. It fails on function-pointer, variadic and unnamed parameters.
func (p *ParamParser) Parse(list string) ([]symbol.Param, bool) {
	trimmed := collapseSpace(stripComments(list))
	if trimmed == "" || trimmed == "void" {
		return []symbol.Param{}, true
	}
	if params, ok := p.parseTree(trimmed); ok {
		return params, true
	}
	return splitParams(trimmed)
}

func (p *ParamParser) parseTree(list string) ([]symbol.Param, bool) {
	src := []byte("void " + prototypeName + "(" + list + ");")
	tree, err := p.parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, false
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() || root.NamedChildCount() != 1 {
		return nil, false
	}
	decl := root.NamedChild(0)
	if decl.Type() != "declaration" {
		return nil, false
	}
	fn := decl.ChildByFieldName("declarator")
	if fn == nil || fn.Type() != "function_declarator" {
		return nil, false
	}
	plist := fn.ChildByFieldName("parameters")
	if plist == nil {
		return nil, false
	}

	var params []symbol.Param
	for i := 0; i < int(plist.NamedChildCount()); i++ {
		child := plist.NamedChild(i)
		switch child.Type() {
		case "comment":
			continue
		case "parameter_declaration":
			param, ok := paramFromNode(child, src)
			if !ok {
				return nil, false
			}
			params = append(params, param)
		default:
			// variadic_parameter and anything unexpected
			return nil, false
		}
	}
	return params, len(params) > 0
}

// paramFromNode splits a parameter_declaration into the text before the
// identifier, the identifier and any array suffix after it.
func paramFromNode(n *sitter.Node, src []byte) (symbol.Param, bool) {
	d := n.ChildByFieldName("declarator")
	for d != nil {
		switch d.Type() {
		case "identifier":
			typ := collapseSpace(string(src[n.StartByte():d.StartByte()]))
			suffix := strings.Join(strings.Fields(string(src[d.EndByte():n.EndByte()])), "")
			if typ == "" || (suffix != "" && !strings.HasPrefix(suffix, "[")) {
				return symbol.Param{}, false
			}
			return symbol.Param{Type: typ, Name: d.Content(src), Suffix: suffix}, true
		case "pointer_declarator", "array_declarator":
			d = d.ChildByFieldName("declarator")
		default:
			// function and parenthesized declarators
			return symbol.Param{}, false
		}
	}
	return symbol.Param{}, false
}

var (
	paramPattern    = regexp.MustCompile(`^(.*?[\s\*])([A-Za-z_]\w*)\s*((?:\[[^\]]*\]\s*)*)$`)
	commentPattern  = regexp.MustCompile(`(?s)/\*.*?\*/|//[^\n]*`)
	reservedInParam = map[string]bool{
		"const": true, "volatile": true, "struct": true, "enum": true, "union": true,
		"unsigned": true, "signed": true, "int": true, "char": true, "short": true,
		"long": true, "float": true, "double": true, "void": true, "restrict": true,
	}
)

// splitParams is the lexical fallback: split on top-level commas and take the
// last identifier of each piece as its name.
func splitParams(list string) ([]symbol.Param, bool) {
	if strings.ContainsAny(list, "()") || strings.Contains(list, "...") {
		return nil, false
	}
	var params []symbol.Param
	for _, piece := range strings.Split(list, ",") {
		m := paramPattern.FindStringSubmatch(strings.TrimSpace(piece))
		if m == nil || reservedInParam[m[2]] {
			return nil, false
		}
		typ := collapseSpace(m[1])
		if onlyQualifiers(typ) {
			return nil, false
		}
		params = append(params, symbol.Param{
			Type:   typ,
			Name:   m[2],
			Suffix: strings.Join(strings.Fields(m[3]), ""),
		})
	}
	return params, true
}

func onlyQualifiers(typ string) bool {
	for _, f := range strings.Fields(strings.ReplaceAll(typ, "*", " ")) {
		if f != "const" && f != "volatile" && f != "struct" && f != "enum" && f != "union" {
			return false
		}
	}
	return true
}

func stripComments(s string) string {
	return commentPattern.ReplaceAllString(s, " ")
}

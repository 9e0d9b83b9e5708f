package inspect

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Symbol is one outline entry of a skeleton read.
type Symbol struct {
	Line      int
	Kind      string
	Signature string
}

const maxSignature = 160

func languageFor(ext string) *sitter.Language {
	switch ext {
	case ".go":
		return golang.GetLanguage()
	case ".py":
		return python.GetLanguage()
	case ".js", ".jsx", ".mjs", ".cjs":
		return javascript.GetLanguage()
	case ".ts", ".mts", ".cts":
		return typescript.GetLanguage()
	case ".tsx":
		return tsx.GetLanguage()
	case ".rs":
		return rust.GetLanguage()
	}
	return nil
}

// declKinds maps outline-worthy node types to a short kind label.
var declKinds = map[string]string{
	// Go
	"import_declaration":   "import",
	"function_declaration": "func",
	"method_declaration":   "method",
	"type_declaration":     "type",
	"const_declaration":    "const",
	"var_declaration":      "var",
	// Python
	"import_statement":      "import",
	"import_from_statement": "import",
	"function_definition":   "def",
	"class_definition":      "class",
	// JS / TS
	"class_declaration":          "class",
	"abstract_class_declaration": "class",
	"interface_declaration":      "interface",
	"type_alias_declaration":     "type",
	"enum_declaration":           "enum",
	"lexical_declaration":        "const",
	"method_definition":          "method",
	"method_signature":           "method",
	// Rust
	"use_declaration": "use",
	"function_item":   "fn",
	"struct_item":     "struct",
	"enum_item":       "enum",
	"trait_item":      "trait",
	"impl_item":       "impl",
	"mod_item":        "mod",
}

// bodyKinds are container nodes whose members are outlined one level deeper.
var bodyKinds = map[string]bool{
	"class_body":        true,
	"block":             true,
	"declaration_list":  true,
	"interface_body":    true,
	"object_type":       true,
}

// outlineTreeSitter returns nil, false when the language is unsupported or
// parsing failed.
func outlineTreeSitter(ctx context.Context, ext string, src []byte) ([]Symbol, bool) {
	lang := languageFor(ext)
	if lang == nil {
		return nil, false
	}
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil || tree == nil {
		return nil, false
	}
	defer tree.Close()

	var out []Symbol
	var walk func(n *sitter.Node, depth int)
	walk = func(n *sitter.Node, depth int) {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child == nil {
				continue
			}
			// Export and decorator wrappers are outlined through the
			// declaration they carry.
			if child.Type() == "decorated_definition" ||
				(child.Type() == "export_statement" && child.ChildByFieldName("declaration") != nil) {
				walk(child, depth)
				continue
			}
			kind, ok := declKinds[child.Type()]
			if !ok && child.Type() == "export_statement" {
				kind, ok = "export", true
			}
			if ok {
				out = append(out, Symbol{
					Line:      int(child.StartPoint().Row) + 1,
					Kind:      kind,
					Signature: signatureOf(child.Content(src), depth),
				})
			}
			if depth >= 2 {
				continue
			}
			// Descend into class-like declarations so
			// members show up. Function bodies are not walked.
			if ok && kind != "func" && kind != "def" && kind != "fn" && kind != "method" {
				walk(child, depth+1)
				continue
			}
			if bodyKinds[child.Type()] && depth > 0 {
				walk(child, depth+1)
			}
		}
	}
	walk(tree.RootNode(), 0)
	return out, true
}

// signatureOf keeps the declaration header: first line, cut at the body.
func signatureOf(text string, depth int) string {
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if strings.HasSuffix(line, "{") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "{"))
	}
	if len(line) > maxSignature {
		line = line[:maxSignature] + "..."
	}
	return strings.Repeat("  ", depth) + line
}

var fallbackDecl = regexp.MustCompile(`^\s*(?:export\s+|pub(?:\([^)]*\))?\s+|public\s+|private\s+|protected\s+|static\s+|async\s+|abstract\s+|final\s+)*` +
	`((?:import|from|package|using|require|include|def|class|interface|struct|enum|trait|impl|fn|func|function|module|type|namespace|object)\b|const\s+\w+\s*=\s*(?:async\s*)?\()`)

// outlineLines is the line-pattern outline used for languages without a
// bundled grammar.
func outlineLines(src []byte) []Symbol {
	var out []Symbol
	for i, line := range strings.Split(string(src), "\n") {
		if m := fallbackDecl.FindStringSubmatch(line); m != nil {
			out = append(out, Symbol{
				Line:      i + 1,
				Kind:      strings.Fields(m[1])[0],
				Signature: signatureOf(line, 0),
			})
		}
	}
	return out
}

// Outline returns the skeleton of a source file. Tree-sitter is used when a
// grammar exists for ext; otherwise declarations are matched line by line.
func Outline(ctx context.Context, ext string, src []byte) []Symbol {
	if syms, ok := outlineTreeSitter(ctx, strings.ToLower(ext), src); ok {
		return syms
	}
	return outlineLines(src)
}

func formatSymbols(syms []Symbol) string {
	var b strings.Builder
	for _, s := range syms {
		fmt.Fprintf(&b, "L%-5d %-9s %s\n", s.Line, s.Kind, s.Signature)
	}
	return b.String()
}

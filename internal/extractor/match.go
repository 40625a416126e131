package extractor

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"

	"github.com/xjtu-graphics/judgerd/internal/domain"
)

// candidate is one function_definition node tree-sitter found whose name
// (and, for a qualified signature, enclosing class) matches the requested
// signature — pending the type-canonicalization check in typesMatch.
type candidate struct {
	node       *sitter.Node
	returnType string // as spelled in source, pre-canonicalization
	paramTypes []string
}

// parseSource parses src with the cpp grammar and returns its root node.
func parseSource(ctx context.Context, src []byte) (*sitter.Node, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(cpp.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse source: %w", err)
	}
	return tree.RootNode(), nil
}

// findCandidates walks the tree looking for function_definition nodes whose
// declared name (and enclosing class, for a qualified "Class::method"
// signature) matches sig — the tree-sitter-native analogue of
// _find_function_signature's preorder walk over FUNCTION_DECL/CXX_METHOD
// cursors, narrowed up front to nodes that are actually definitions.
func findCandidates(root *sitter.Node, src []byte, sig domain.FunctionSignature) ([]candidate, error) {
	className, methodName, err := splitQualifiedName(sig.Name)
	if err != nil {
		return nil, err
	}

	var out []candidate
	var walk func(n *sitter.Node, enclosingClass string)
	walk = func(n *sitter.Node, enclosingClass string) {
		if n == nil {
			return
		}

		nextEnclosingClass := enclosingClass
		if n.Type() == "class_specifier" || n.Type() == "struct_specifier" {
			if name := childByFieldName(n, "name"); name != nil {
				nextEnclosingClass = name.Content(src)
			}
		}

		if n.Type() == "function_definition" {
			if c, ok := matchDefinition(n, src, className, methodName, enclosingClass); ok {
				out = append(out, c)
			}
		}

		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i), nextEnclosingClass)
		}
	}
	walk(root, "")
	return out, nil
}

// splitQualifiedName splits a "Class::method" signature name, matching
// _is_function_match's ValueError on more than one "::".
func splitQualifiedName(name string) (class, method string, err error) {
	parts := strings.Split(name, "::")
	switch len(parts) {
	case 1:
		return "", parts[0], nil
	case 2:
		return parts[0], parts[1], nil
	default:
		return "", "", fmt.Errorf("function name containing multiple \"::\" is not supported")
	}
}

// matchDefinition checks one function_definition node's spelled name and,
// for a qualified "Class::method" signature, its class — resolved either
// from the declarator's own qualified_identifier scope (an out-of-class
// definition like "int Calculator::multiply(...)") or from lexical nesting
// inside a class/struct body (a definition written inline in the class) —
// and collects its spelled return/parameter types for the caller to
// canonicalize and compare.
func matchDefinition(n *sitter.Node, src []byte, className, methodName, enclosingClass string) (candidate, bool) {
	declarator := childByFieldName(n, "declarator")
	if declarator == nil {
		return candidate{}, false
	}

	funcDeclarator, nameNode, scope := unwrapFunctionDeclarator(declarator, src)
	if funcDeclarator == nil || nameNode == nil {
		return candidate{}, false
	}

	if nameNode.Content(src) != methodName {
		return candidate{}, false
	}

	actualClass := scope
	if actualClass == "" {
		actualClass = enclosingClass
	}
	if className != actualClass {
		return candidate{}, false
	}

	returnType := spelledReturnType(n, src)
	paramTypes := spelledParamTypes(funcDeclarator, src)

	return candidate{node: n, returnType: returnType, paramTypes: paramTypes}, true
}

// unwrapFunctionDeclarator descends through pointer/reference declarators to
// the function_declarator, and returns its name node plus the class scope
// named on a qualified_identifier declarator ("Class::method"), if any —
// empty for a bare identifier/field_identifier.
func unwrapFunctionDeclarator(n *sitter.Node, src []byte) (funcDeclarator, nameNode *sitter.Node, scope string) {
	cur := n
	for cur != nil {
		switch cur.Type() {
		case "function_declarator":
			declarator := childByFieldName(cur, "declarator")
			if declarator == nil {
				return cur, nil, ""
			}
			if declarator.Type() == "qualified_identifier" {
				name := childByFieldName(declarator, "name")
				scopeNode := childByFieldName(declarator, "scope")
				scopeText := ""
				if scopeNode != nil {
					scopeText = scopeNode.Content(src)
				}
				return cur, name, scopeText
			}
			return cur, declarator, ""
		case "pointer_declarator", "reference_declarator":
			cur = childByFieldName(cur, "declarator")
		default:
			return nil, nil, ""
		}
	}
	return nil, nil, ""
}

// spelledReturnType returns the function_definition's declared return type
// text exactly as written (e.g. "int", "std::vector<int>", "const T&").
func spelledReturnType(n *sitter.Node, src []byte) string {
	typeNode := childByFieldName(n, "type")
	if typeNode == nil {
		return ""
	}
	return strings.TrimSpace(typeNode.Content(src))
}

// spelledParamTypes returns each parameter's declared type text, stripping
// the parameter name itself so only the type expression remains.
func spelledParamTypes(funcDeclarator *sitter.Node, src []byte) []string {
	params := childByFieldName(funcDeclarator, "parameters")
	if params == nil {
		return nil
	}

	var out []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		if p.Type() != "parameter_declaration" {
			continue
		}
		typeNode := childByFieldName(p, "type")
		if typeNode == nil {
			continue
		}
		typeText := strings.TrimSpace(typeNode.Content(src))
		if declarator := childByFieldName(p, "declarator"); declarator != nil {
			typeText += spelledDeclaratorSuffix(declarator, src)
		}
		out = append(out, typeText)
	}
	return out
}

// spelledDeclaratorSuffix reconstructs the pointer/reference qualifiers a
// parameter's declarator contributes to its type (e.g. "*", "&", "&&"),
// since tree-sitter-cpp attaches those to the declarator node, not the type
// node.
func spelledDeclaratorSuffix(declarator *sitter.Node, src []byte) string {
	var suffix strings.Builder
	cur := declarator
	for cur != nil {
		switch cur.Type() {
		case "pointer_declarator":
			suffix.WriteString(" *")
			cur = childByFieldName(cur, "declarator")
		case "reference_declarator":
			text := cur.Content(src)
			if strings.HasPrefix(text, "&&") {
				suffix.WriteString(" &&")
			} else {
				suffix.WriteString(" &")
			}
			cur = childByFieldName(cur, "declarator")
		default:
			cur = nil
		}
	}
	return suffix.String()
}

func childByFieldName(n *sitter.Node, field string) *sitter.Node {
	if n == nil {
		return nil
	}
	return n.ChildByFieldName(field)
}

package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// canonicalizeTypes resolves each of typeNames to clang's own canonical
// (desugared) spelling, by appending one synthesized variable declaration
// per type to a scratch copy of sourceFile and asking clang++ to dump its
// AST as JSON. This is the Go-native descendant of
// function_extractor.py's _parse_types: there, libclang re-parses the
// translation unit with the extra declarations appended as an unsaved
// buffer and walks the resulting cursors; here, clang++ itself does both
// the parsing and the canonicalization (accessible only via its own AST
// dump, since no libclang binding exists in this toolchain), and the
// result is looked up by the synthesized variable's declared name.
func canonicalizeTypes(ctx context.Context, sourceFile string, compileArgs []string, typeNames []string) (map[string]string, error) {
	original, err := os.ReadFile(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sourceFile, err)
	}

	varNames := make([]string, len(typeNames))
	var synthesized bytes.Buffer
	synthesized.Write(original)
	if len(original) > 0 && original[len(original)-1] != '\n' {
		synthesized.WriteByte('\n')
	}
	for i, typeName := range typeNames {
		varNames[i] = fmt.Sprintf("__judger_tmp_var_for_parse_%d__", i)
		fmt.Fprintf(&synthesized, "[[maybe_unused]] %s %s;\n", typeName, varNames[i])
	}

	scratch, err := os.CreateTemp(filepath.Dir(sourceFile), "."+filepath.Base(sourceFile)+".judger-types-*.cpp")
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}
	defer os.Remove(scratch.Name())
	if _, err := scratch.Write(synthesized.Bytes()); err != nil {
		scratch.Close()
		return nil, fmt.Errorf("write scratch file: %w", err)
	}
	scratch.Close()

	args, err := withSystemIncludes(ctx, compileArgs)
	if err != nil {
		return nil, err
	}
	args = append(args, "-Xclang", "-ast-dump=json", "-fsyntax-only", scratch.Name())

	cmd := exec.CommandContext(ctx, "clang++", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("clang++ -ast-dump=json failed: %w: %s", err, stderr.String())
	}

	var root map[string]interface{}
	if err := json.Unmarshal(stdout.Bytes(), &root); err != nil {
		return nil, fmt.Errorf("parse clang ast dump: %w", err)
	}

	wanted := make(map[string]bool, len(varNames))
	for _, v := range varNames {
		wanted[v] = true
	}

	found := make(map[string]string, len(varNames))
	collectVarDeclTypes(root, wanted, found)

	resolved := make(map[string]string, len(typeNames))
	for i, typeName := range typeNames {
		spelling, ok := found[varNames[i]]
		if !ok {
			return nil, fmt.Errorf("type %q did not resolve to any declaration in the synthesized translation unit", typeName)
		}
		resolved[typeName] = spelling
	}
	return resolved, nil
}

// collectVarDeclTypes walks a clang -ast-dump=json tree looking for VarDecl
// nodes whose "name" is one of wanted, recording the canonical spelling of
// their type (desugaredQualType when clang reports one — i.e. the
// declaration used a typedef/using-alias — otherwise qualType).
func collectVarDeclTypes(node interface{}, wanted map[string]bool, found map[string]string) {
	obj, ok := node.(map[string]interface{})
	if !ok {
		if arr, ok := node.([]interface{}); ok {
			for _, child := range arr {
				collectVarDeclTypes(child, wanted, found)
			}
		}
		return
	}

	if kind, _ := obj["kind"].(string); kind == "VarDecl" {
		if name, _ := obj["name"].(string); wanted[name] {
			if t, ok := obj["type"].(map[string]interface{}); ok {
				if desugared, ok := t["desugaredQualType"].(string); ok && desugared != "" {
					found[name] = desugared
				} else if qual, ok := t["qualType"].(string); ok {
					found[name] = qual
				}
			}
		}
	}

	if inner, ok := obj["inner"]; ok {
		collectVarDeclTypes(inner, wanted, found)
	}
}

package extractor

import (
	"context"
	"fmt"
	"os"

	"github.com/xjtu-graphics/judgerd/internal/domain"
)

// Extractor locates and extracts one function's implementation out of a
// submission tree, given its build directory (for compile_commands.json).
type Extractor struct {
	buildDir string
	db       *CompileDB
}

// New builds an Extractor rooted at buildDir, matching
// FunctionExtractor.__init__'s eager CompilationDatabase.fromDirectory load.
func New(buildDir string) (*Extractor, error) {
	db, err := LoadCompileDB(buildDir)
	if err != nil {
		return nil, err
	}
	return &Extractor{buildDir: buildDir, db: db}, nil
}

// ExtractFunctionImplementation extracts the implementation of sig out of
// sourceFile, or returns ("", false, nil) if no definition matches —
// mirroring extract_function_implementation's Optional[str] return, split
// into a found bool since Go has no None-for-string idiom.
func (e *Extractor) ExtractFunctionImplementation(ctx context.Context, sourceFile string, sig domain.FunctionSignature) (string, bool, error) {
	args, err := e.db.Args(sourceFile)
	if err != nil {
		return "", false, err
	}

	src, err := os.ReadFile(sourceFile)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", sourceFile, err)
	}

	root, err := parseSource(ctx, src)
	if err != nil {
		return "", false, err
	}

	candidates, err := findCandidates(root, src, sig)
	if err != nil {
		return "", false, err
	}
	if len(candidates) == 0 {
		return "", false, nil
	}

	resolved, err := e.resolveSignatureTypes(ctx, sourceFile, args, sig, candidates)
	if err != nil {
		return "", false, err
	}
	wantReturn := resolved[sig.ReturnType]
	wantParams := make([]string, len(sig.Parameters))
	for i, p := range sig.Parameters {
		wantParams[i] = resolved[p.Type]
	}

	for _, c := range candidates {
		if !typesMatch(resolved, c, wantReturn, wantParams) {
			continue
		}
		body, err := sliceFunctionBody(sourceFile, c.node)
		if err != nil {
			return "", false, err
		}
		return body, true, nil
	}
	return "", false, nil
}

// resolveSignatureTypes canonicalizes every type string that needs
// comparing — the signature's own types plus every candidate's spelled
// return/parameter types — in one batched clang++ call, the Go-native
// analogue of _parse_types's single pass over the combined type list.
func (e *Extractor) resolveSignatureTypes(ctx context.Context, sourceFile string, args []string, sig domain.FunctionSignature, candidates []candidate) (map[string]string, error) {
	seen := map[string]bool{}
	var typeNames []string
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			typeNames = append(typeNames, t)
		}
	}

	add(sig.ReturnType)
	for _, p := range sig.Parameters {
		add(p.Type)
	}
	for _, c := range candidates {
		add(c.returnType)
		for _, t := range c.paramTypes {
			add(t)
		}
	}

	return canonicalizeTypes(ctx, sourceFile, args, typeNames)
}

func typesMatch(resolved map[string]string, c candidate, wantReturn string, wantParams []string) bool {
	if len(c.paramTypes) != len(wantParams) {
		return false
	}
	if resolved[c.returnType] != wantReturn {
		return false
	}
	for i, t := range c.paramTypes {
		if resolved[t] != wantParams[i] {
			return false
		}
	}
	return true
}

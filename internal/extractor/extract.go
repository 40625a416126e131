package extractor

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// sliceFunctionBody returns the exact source text spanned by node, read
// fresh off disk and sliced by line/column — the same start/end
// line-and-column splicing _extract_function_body performs over
// function_cursor.extent.start/body_cursor.extent.end, just driven by
// tree-sitter's zero-based Point rows/columns instead of libclang's
// one-based Location rows/columns.
func sliceFunctionBody(sourceFile string, node *sitter.Node) (string, error) {
	data, err := os.ReadFile(sourceFile)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", sourceFile, err)
	}

	lines, err := splitKeepingNewlines(data)
	if err != nil {
		return "", err
	}

	start := node.StartPoint()
	end := node.EndPoint()
	startLine, startCol := int(start.Row), int(start.Column)
	endLine, endCol := int(end.Row), int(end.Column)

	if startLine >= len(lines) || endLine >= len(lines) {
		return "", fmt.Errorf("function span (lines %d-%d) exceeds file length %d", startLine, endLine, len(lines))
	}

	if startLine == endLine {
		line := lines[startLine]
		return safeSlice(line, startCol, endCol), nil
	}

	var b strings.Builder
	b.WriteString(safeSlice(lines[startLine], startCol, len(lines[startLine])))
	for i := startLine + 1; i < endLine; i++ {
		b.WriteString(lines[i])
	}
	b.WriteString(safeSlice(lines[endLine], 0, endCol))
	return b.String(), nil
}

// splitKeepingNewlines splits data into lines, keeping each line's
// trailing newline — mirroring Python's readlines().
func splitKeepingNewlines(data []byte) ([]string, error) {
	var lines []string
	scanner := bufio.NewReader(bytes.NewReader(data))
	for {
		line, err := scanner.ReadString('\n')
		if len(line) > 0 {
			lines = append(lines, line)
		}
		if err != nil {
			break
		}
	}
	return lines, nil
}

func safeSlice(s string, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(s) {
		end = len(s)
	}
	if start > end {
		return ""
	}
	return s[start:end]
}

// Package pipeline implements the per-judgment evaluation run: CMake
// configure+build, an optional named unit test, and — when the judgment
// context carries function requirements — source extraction via
// internal/extractor, followed by a result report to the Manager. It runs
// as a separate subprocess (cmd/judge-pipeline) so a crashing evaluation
// never takes the Executor's HTTP face down with it.
//
// Grounded on original_source/judger/executor/validate.py's
// compile_project/run_tests/submit_result/main.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/xjtu-graphics/judgerd/internal/domain"
	"github.com/xjtu-graphics/judgerd/internal/extractor"
)

// Run executes one judgment's evaluation pipeline end to end: compile,
// optional test, optional function extraction, report, cleanup. Errors
// that occur before a result can be reported are themselves reported as
// domain.ResultError, matching validate.py's main() catch-all. nProc comes
// from the Executor's own PARALLEL_BUILD config, not the judgment context —
// it's a host resource limit, not per-submission data.
func Run(ctx context.Context, managerIP string, managerPort int, nProc int, jc domain.JudgmentContext) {
	defer cleanup(jc.WorkingDir)

	result, log, impls := evaluate(ctx, nProc, jc)
	report(ctx, managerIP, managerPort, jc.JudgmentID, result, log, impls)
}

func evaluate(ctx context.Context, nProc int, jc domain.JudgmentContext) (domain.JudgeResult, string, []string) {
	if nProc <= 0 {
		nProc = 1
	}

	ok, compileLog, err := compileProject(ctx, jc.WorkingDir, nProc)
	if err != nil {
		return domain.ResultError, err.Error(), nil
	}
	if !ok {
		return domain.ResultFailed, compileLog, nil
	}

	if jc.UnitTestName != "" {
		ok, testLog, err := runTests(ctx, jc.WorkingDir, nProc, jc.UnitTestName)
		if err != nil {
			return domain.ResultError, err.Error(), nil
		}
		if !ok {
			return domain.ResultFailed, testLog, nil
		}
	}

	impls, allFound, err := extractFunctions(ctx, jc)
	if err != nil {
		return domain.ResultError, err.Error(), nil
	}
	if !allFound {
		return domain.ResultFailed, "required function implementation not found", nil
	}

	return domain.ResultPassed, "", impls
}

// compileProject runs `cmake -S . -B build` then `cmake --build build
// --config Release --target dandelion --parallel n`, matching
// validate.py's compile_project verbatim (spec.md §4.6 step 2 hardcodes the
// dandelion target).
func compileProject(ctx context.Context, workDir string, nProc int) (bool, string, error) {
	buildDir := filepath.Join(workDir, "build")
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return false, "", fmt.Errorf("create build dir: %w", err)
	}

	out, ok, err := runCommand(ctx, "cmake", "-S", workDir, "-B", buildDir)
	if err != nil || !ok {
		return false, out, err
	}

	out, ok, err = runCommand(ctx, "cmake", "--build", buildDir,
		"--config", "Release", "--target", "dandelion", "--parallel", fmt.Sprintf("%d", nProc))
	return ok, out, err
}

// runTests mirrors validate.py's run_tests: configure and build the
// template's test/ subdirectory, then invoke the resulting test binary
// with unitTestName as its sole argument.
func runTests(ctx context.Context, workDir string, nProc int, unitTestName string) (bool, string, error) {
	testDir := filepath.Join(workDir, "test")
	testBuildDir := filepath.Join(testDir, "build")
	if err := os.MkdirAll(testBuildDir, 0o755); err != nil {
		return false, "", fmt.Errorf("create test build dir: %w", err)
	}

	out, ok, err := runCommand(ctx, "cmake", "-S", testDir, "-B", testBuildDir)
	if err != nil || !ok {
		return false, out, err
	}

	out, ok, err = runCommand(ctx, "cmake", "--build", testBuildDir,
		"--config", "Release", "--target", "test", "--parallel", fmt.Sprintf("%d", nProc))
	if err != nil || !ok {
		return false, out, err
	}

	testBinary := filepath.Join(testBuildDir, "test")
	out, ok, err = runCommand(ctx, testBinary, unitTestName)
	return ok, out, err
}

// runCommand runs name with args, combining stdout/stderr the way
// subprocess.run(..., stderr=subprocess.STDOUT) does, returning whether it
// exited zero.
func runCommand(ctx context.Context, name string, args ...string) (string, bool, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if err == nil {
		return out.String(), true, nil
	}
	if _, ok := err.(*exec.ExitError); ok {
		return out.String(), false, nil
	}
	return out.String(), false, err
}

// extractFunctions runs internal/extractor over every function requirement
// in the judgment context. allFound is false the moment a requirement
// yields no definition (spec.md §4.6 step 4: "failed" with "required
// function implementation not found"); a non-nil error means extraction
// itself failed (an internal error, not just a non-match), which the
// caller reports as ResultError instead.
func extractFunctions(ctx context.Context, jc domain.JudgmentContext) ([]string, bool, error) {
	if len(jc.FunctionRequirements) == 0 {
		return nil, true, nil
	}

	buildDir := filepath.Join(jc.WorkingDir, "build")
	ext, err := extractor.New(buildDir)
	if err != nil {
		return nil, false, fmt.Errorf("open extractor at %s: %w", buildDir, err)
	}

	var impls []string
	for _, req := range jc.FunctionRequirements {
		sourceFile := filepath.Join(jc.WorkingDir, req.SourceFilePath)
		body, found, err := ext.ExtractFunctionImplementation(ctx, sourceFile, req.FunctionSignature)
		if err != nil {
			return nil, false, fmt.Errorf("extract requirement %d: %w", req.ID, err)
		}
		if !found {
			slog.WarnContext(ctx, "pipeline: required function implementation not found",
				"judgment_id", jc.JudgmentID, "requirement_id", req.ID)
			return nil, false, nil
		}
		impls = append(impls, body)
	}
	return impls, true, nil
}

// cleanup removes the working directory unconditionally, matching
// validate.py's `finally: shutil.rmtree(..., ignore_errors=True)`.
func cleanup(workDir string) {
	if workDir == "" {
		return
	}
	if err := os.RemoveAll(workDir); err != nil {
		slog.Error("pipeline: cleanup failed", "working_dir", workDir, "error", err)
	}
}

// report posts the judgment's verdict to the Manager's result sink,
// matching validate.py's submit_result — best-effort, logged on failure.
func report(ctx context.Context, managerIP string, managerPort int, judgmentID int64, result domain.JudgeResult, logText string, impls []string) {
	url := fmt.Sprintf("http://%s:%d/api/judge/%d/result", managerIP, managerPort, judgmentID)
	body, err := json.Marshal(domain.JudgmentResultReport{Result: result, Log: logText, FunctionImpls: impls})
	if err != nil {
		slog.ErrorContext(ctx, "pipeline: marshal result report failed", "error", err)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		slog.ErrorContext(ctx, "pipeline: build result report request failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.ErrorContext(ctx, "pipeline: report result failed", "judgment_id", judgmentID, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.ErrorContext(ctx, "pipeline: manager rejected result report", "judgment_id", judgmentID, "status", resp.StatusCode)
		return
	}
	slog.InfoContext(ctx, "pipeline: result reported", "judgment_id", judgmentID, "result", result)
}

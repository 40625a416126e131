package executorapi

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xjtu-graphics/judgerd/internal/domain"
)

const defaultPipelineBinary = "judge-pipeline"

// HandleJudge is POST /api/judge/{judgmentID} — intake (spec.md §4.4).
// Resolves the judgment's submission/problem chain, builds a fresh working
// directory from the cached template with the submission unpacked directly
// over its root (spec.md §4.5's resolution of the template/submission
// overlay question — not nested under the template's own directory name,
// which is what judge_judgment does), spawns the evaluation pipeline
// detached, and returns 202 without waiting on it.
//
// Grounded on original_source/judger/executor/__init__.py's judge_judgment.
func (s *Server) HandleJudge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	judgmentID, err := strconv.ParseInt(chi.URLParam(r, "judgmentID"), 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid judgment id")
		return
	}

	judgment, err := s.WebClient.GetJudgment(ctx, judgmentID)
	if err != nil {
		slog.ErrorContext(ctx, "fetch judgment failed", "judgment_id", judgmentID, "error", err)
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	slog.InfoContext(ctx, "submission id obtained", "judgment_id", judgmentID, "submission_id", judgment.SubmissionID)

	submission, err := s.WebClient.GetSubmission(ctx, judgment.SubmissionID)
	if err != nil {
		slog.ErrorContext(ctx, "fetch submission failed", "submission_id", judgment.SubmissionID, "error", err)
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	problem, err := s.WebClient.GetProblem(ctx, submission.ProblemID)
	if err != nil {
		slog.ErrorContext(ctx, "fetch problem failed", "problem_id", submission.ProblemID, "error", err)
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	unitTestName := ""
	if problem.HasAutograder {
		unitTestName = problem.UnitTestName
	}
	slog.InfoContext(ctx, "problem info obtained", "problem_id", problem.ID, "has_autograder", problem.HasAutograder)

	code, err := s.WebClient.GetSubmissionCode(ctx, judgment.SubmissionID)
	if err != nil {
		slog.ErrorContext(ctx, "fetch submission code failed", "submission_id", judgment.SubmissionID, "error", err)
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	slog.InfoContext(ctx, "source code attachment id obtained", "attachment_id", code.AttachmentID)

	zipPath := filepath.Join(s.TmpDir, fmt.Sprintf("submission_%d.zip", judgment.SubmissionID))
	if err := s.WebClient.DownloadAttachment(ctx, code.AttachmentID, zipPath); err != nil {
		slog.ErrorContext(ctx, "download submission attachment failed", "attachment_id", code.AttachmentID, "error", err)
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer os.Remove(zipPath)

	entry, err := s.Templates.Get(ctx, problem.TemplateID)
	if err != nil {
		slog.ErrorContext(ctx, "resolve template failed", "template_id", problem.TemplateID, "error", err)
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	workDir := filepath.Join(s.TmpDir, fmt.Sprintf("judgement_for_%d", judgmentID))
	if err := os.RemoveAll(workDir); err != nil {
		slog.ErrorContext(ctx, "clear stale working dir failed", "working_dir", workDir, "error", err)
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := copyTree(entry.Path, workDir); err != nil {
		slog.ErrorContext(ctx, "copy template into working dir failed", "working_dir", workDir, "error", err)
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := unzipOver(zipPath, workDir); err != nil {
		slog.ErrorContext(ctx, "unpack submission into working dir failed", "working_dir", workDir, "error", err)
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	slog.InfoContext(ctx, "submission unpacked", "zip_path", zipPath, "working_dir", workDir)

	functionRequirements, err := s.WebClient.GetProblemFunctions(ctx, problem.ID)
	if err != nil {
		slog.ErrorContext(ctx, "fetch function requirements failed", "problem_id", problem.ID, "error", err)
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	jc := domain.JudgmentContext{
		JudgmentID:           judgmentID,
		SubmissionID:         judgment.SubmissionID,
		ProblemID:            problem.ID,
		TemplateID:           problem.TemplateID,
		HasAutograder:        problem.HasAutograder,
		UnitTestName:         unitTestName,
		FunctionRequirements: functionRequirements,
		WorkingDir:           workDir,
	}

	if err := s.startPipeline(ctx, jc); err != nil {
		slog.ErrorContext(ctx, "start pipeline failed", "judgment_id", judgmentID, "error", err)
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	slog.InfoContext(ctx, "pipeline started", "judgment_id", judgmentID)

	w.WriteHeader(http.StatusAccepted)
}

// startPipeline spawns cmd/judge-pipeline detached, handing it the judgment
// context as JSON on stdin, and returns as soon as the process has started —
// the Go analogue of judge_judgment's subprocess.Popen fire-and-forget.
func (s *Server) startPipeline(ctx context.Context, jc domain.JudgmentContext) error {
	binary := s.PipelineBinary
	if binary == "" {
		binary = defaultPipelineBinary
	}

	payload, err := json.Marshal(domain.PipelineInvocation{
		ManagerIP:     s.ManagerIP,
		ManagerPort:   s.ManagerPort,
		ParallelBuild: s.ParallelBuild,
		Judgment:      jc,
	})
	if err != nil {
		return fmt.Errorf("marshal judgment context: %w", err)
	}

	cmd := exec.Command(binary)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open pipeline stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	if _, err := stdin.Write(payload); err != nil {
		slog.ErrorContext(ctx, "write judgment context to pipeline stdin failed", "error", err)
	}
	stdin.Close()

	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Error("pipeline process exited with error", "judgment_id", jc.JudgmentID, "error", err)
		}
	}()

	return nil
}

// copyTree recursively copies src into dst, creating dst.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// unzipOver extracts src directly into destDir, overlaying any files the
// template copy already placed there — strategy (a) of the template/
// submission overlay resolution (spec.md §4.5), deliberately not the
// nested-under-dir_name layout original_source uses.
func unzipOver(src, destDir string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(destDir, f.Name)
		rel, err := filepath.Rel(destDir, target)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("zip entry %q escapes destination directory", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return copyErr
		}
	}
	return nil
}

func httpError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

package managerapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xjtu-graphics/judgerd/internal/domain"
)

// remoteIP extracts the bare host from r.RemoteAddr (middleware.RealIP has
// already rewritten it from X-Forwarded-For/X-Real-IP where applicable).
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseJudgmentID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "judgmentID"), 10, 64)
}

// HandleJudgeSubmission is POST /api/judge/{judgmentID} — intake (spec.md
// §4.1). Persists a new Task and returns immediately; dispatch happens on
// the next tick of internal/dispatcher.
func (s *Server) HandleJudgeSubmission(w http.ResponseWriter, r *http.Request) {
	judgmentID, err := parseJudgmentID(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid judgment id")
		return
	}

	if _, err := s.Store.CreateTask(r.Context(), judgmentID); err != nil {
		slog.ErrorContext(r.Context(), "create task failed", "judgment_id", judgmentID, "error", err)
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// HandleExecutorHeartbeat is POST /api/judge/executors — the heartbeat sink
// (spec.md §4.1). Upserts the Executor row keyed by remote IP.
func (s *Server) HandleExecutorHeartbeat(w http.ResponseWriter, r *http.Request) {
	var payload domain.HeartbeatPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httpError(w, http.StatusBadRequest, "invalid json data")
		return
	}

	ip := remoteIP(r)
	if err := s.Store.UpsertHeartbeat(r.Context(), ip, payload); err != nil {
		slog.ErrorContext(r.Context(), "upsert heartbeat failed", "ip", ip, "error", err)
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandleJudgeResult is POST /api/judge/{judgmentID}/result — the result
// sink (spec.md §4.1). Looks up the reporting Executor by remote IP, marks
// it idle *before* forwarding anything to the Web backend, then forwards
// the verdict (and any function implementations) without failing the
// response on forwarding errors — the executor has fulfilled its
// obligation once the Manager has recorded the result.
func (s *Server) HandleJudgeResult(w http.ResponseWriter, r *http.Request) {
	judgmentID, err := parseJudgmentID(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid judgment id")
		return
	}

	var report domain.JudgmentResultReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		httpError(w, http.StatusBadRequest, "invalid json data")
		return
	}

	ip := remoteIP(r)
	if err := s.Store.SetExecutorIdle(r.Context(), ip); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			httpError(w, http.StatusNotFound, "unknown executor")
			return
		}
		slog.ErrorContext(r.Context(), "mark executor idle failed", "ip", ip, "error", err)
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusOK)

	s.forwardResult(r.Context(), judgmentID, report)
}

// forwardResult relays the verdict to the Web backend. Errors are logged
// and swallowed (spec.md §4.1, §7): the executor's obligation ends once the
// Manager has the result.
func (s *Server) forwardResult(ctx context.Context, judgmentID int64, report domain.JudgmentResultReport) {
	if s.WebClient == nil {
		return
	}

	if err := s.WebClient.PostJudgmentResult(ctx, judgmentID, report.Result, report.Log); err != nil {
		slog.ErrorContext(ctx, "forward result to web backend failed", "judgment_id", judgmentID, "error", err)
	}

	if len(report.FunctionImpls) == 0 || report.Result != domain.ResultPassed {
		return
	}

	judgment, err := s.WebClient.GetJudgment(ctx, judgmentID)
	if err != nil {
		slog.ErrorContext(ctx, "fetch judgment for function_impls forwarding failed", "judgment_id", judgmentID, "error", err)
		return
	}

	for _, impl := range report.FunctionImpls {
		if _, err := s.WebClient.PostFunctionImpl(ctx, judgment.SubmissionID, impl); err != nil {
			slog.ErrorContext(ctx, "forward function_impl failed", "judgment_id", judgmentID, "error", err)
		}
	}
}

func httpError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

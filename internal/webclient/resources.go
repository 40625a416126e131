package webclient

import (
	"context"
	"fmt"

	"github.com/xjtu-graphics/judgerd/internal/domain"
)

// GetJudgment fetches GET /api/judgments/{id}.
func (c *Client) GetJudgment(ctx context.Context, id int64) (*domain.Judgment, error) {
	var j domain.Judgment
	if err := c.Get(ctx, fmt.Sprintf("/api/judgments/%d", id), &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// GetSubmission fetches GET /api/submissions/{id}.
func (c *Client) GetSubmission(ctx context.Context, id int64) (*domain.Submission, error) {
	var s domain.Submission
	if err := c.Get(ctx, fmt.Sprintf("/api/submissions/%d", id), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetProblem fetches GET /api/problems/{id}.
func (c *Client) GetProblem(ctx context.Context, id int64) (*domain.Problem, error) {
	var p domain.Problem
	if err := c.Get(ctx, fmt.Sprintf("/api/problems/%d", id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetSubmissionCode fetches GET /api/submissions/{id}/code.
func (c *Client) GetSubmissionCode(ctx context.Context, id int64) (*domain.SubmissionCode, error) {
	var sc domain.SubmissionCode
	if err := c.Get(ctx, fmt.Sprintf("/api/submissions/%d/code", id), &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// DownloadAttachment streams GET /api/submissions/attachments/{id} to destPath.
func (c *Client) DownloadAttachment(ctx context.Context, attachmentID int64, destPath string) error {
	return c.DownloadTo(ctx, fmt.Sprintf("/api/submissions/attachments/%d", attachmentID), destPath)
}

// GetTemplateMeta fetches GET /api/templates/{id}.
func (c *Client) GetTemplateMeta(ctx context.Context, templateID int64) (*domain.TemplateMeta, error) {
	var m domain.TemplateMeta
	if err := c.Get(ctx, fmt.Sprintf("/api/templates/%d", templateID), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DownloadTemplate streams GET /api/templates/{id}/download to destPath.
func (c *Client) DownloadTemplate(ctx context.Context, templateID int64, destPath string) error {
	return c.DownloadTo(ctx, fmt.Sprintf("/api/templates/%d/download", templateID), destPath)
}

// GetProblemFunctions fetches GET /api/problems/{id}/functions.
func (c *Client) GetProblemFunctions(ctx context.Context, problemID int64) ([]domain.FunctionRequirement, error) {
	var reqs []domain.FunctionRequirement
	if err := c.Get(ctx, fmt.Sprintf("/api/problems/%d/functions", problemID), &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// PostJudgmentResult posts POST /api/judgments/{id}/result, the plain
// {result, log} body the Manager forwards to the Web backend (function
// implementations are reported separately via PostFunctionImpl).
func (c *Client) PostJudgmentResult(ctx context.Context, judgmentID int64, result domain.JudgeResult, log string) error {
	body := map[string]string{"result": string(result), "log": log}
	return c.PostJSON(ctx, fmt.Sprintf("/api/judgments/%d/result", judgmentID), body, nil)
}

// FunctionImplResponse is the response to PostFunctionImpl.
type FunctionImplResponse struct {
	FunctionImplID int64 `json:"function_impl_id"`
}

// PostFunctionImpl posts POST /api/submissions/{id}/function_impls.
func (c *Client) PostFunctionImpl(ctx context.Context, submissionID int64, code string) (*FunctionImplResponse, error) {
	body := map[string]string{"code": code}
	var out FunctionImplResponse
	if err := c.PostJSON(ctx, fmt.Sprintf("/api/submissions/%d/function_impls", submissionID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// judge-pipeline is the per-judgment evaluation subprocess the Executor
// spawns for every judge intake request. It reads its judgment context as
// JSON from stdin (extending validate.py's sys.argv-based invocation, since
// judgerd's context additionally carries function requirements), runs
// internal/pipeline, and exits — all reporting happens over HTTP before it
// does, so its own exit status is not consulted by the Executor.
package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/xjtu-graphics/judgerd/internal/domain"
	"github.com/xjtu-graphics/judgerd/internal/pipeline"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		slog.Error("read invocation from stdin failed", "error", err)
		os.Exit(1)
	}

	var inv domain.PipelineInvocation
	if err := json.Unmarshal(raw, &inv); err != nil {
		slog.Error("parse invocation failed", "error", err)
		os.Exit(1)
	}

	pipeline.Run(context.Background(), inv.ManagerIP, inv.ManagerPort, inv.ParallelBuild, inv.Judgment)
}

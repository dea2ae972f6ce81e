/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"scenewright/internal/script"
)

// Environment passed to external renderers.
const (
	EnvSceneDir         = "SW_SCENE_DIR"
	EnvSceneArtifact    = "SW_SCENE_ARTIFACT"
	EnvSceneFingerprint = "SW_SCENE_FINGERPRINT"
)

// stderrTail bounds how much renderer stderr is quoted in errors.
const stderrTail = 2048

// CommandRenderer runs an external program once per scene. The program
// receives a JSON job on stdin and the scene paths in its environment, and
// must write the artifact before exiting 0.
type CommandRenderer struct {
	Argv    []string
	Env     []string // extra KEY=value entries, e.g. provider API keys
	Timeout time.Duration
}

type jobPayload struct {
	Index       int          `json:"index"`
	Fingerprint string       `json:"fingerprint"`
	Dir         string       `json:"dir"`
	Artifact    string       `json:"artifact"`
	Scene       script.Scene `json:"scene"`
}

func (c CommandRenderer) Render(ctx context.Context, job Job) error {
	if len(c.Argv) == 0 {
		return errors.New("render command is not configured")
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	payload, err := json.Marshal(jobPayload{
		Index:       job.Index,
		Fingerprint: job.Fingerprint,
		Dir:         job.Dir,
		Artifact:    job.Artifact,
		Scene:       job.Scene,
	})
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Dir = job.Dir
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Env = append(cmd.Env,
		EnvSceneDir+"="+job.Dir,
		EnvSceneArtifact+"="+job.Artifact,
		EnvSceneFingerprint+"="+job.Fingerprint,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", c.Argv[0], ctxErr)
		}
		msg := strings.TrimSpace(tail(stderr.String(), stderrTail))
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", c.Argv[0], err, msg)
		}
		return fmt.Errorf("%s: %w", c.Argv[0], err)
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n:]
}

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns panics into crash reports.
// Recover is deferred at the top of main; Guard wraps work running on
// pipeline goroutines so one failing scene cannot take the process down.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "scenewright/internal/log"
	"scenewright/internal/storage"
	"scenewright/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// PanicError is returned by Guard when the guarded function panicked.
type PanicError struct {
	Value  any
	Stack  []byte
	Report string // path of the written crash report, if any
}

func (e *PanicError) Error() string {
	if e.Report != "" {
		return fmt.Sprintf("panic: %v (report: %s)", e.Value, e.Report)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recover captures a panic, logs an error with stacktrace,
// writes an error report file and exits with status 2.
//
// Usage: defer crash.Recover(ph)
func Recover(ph *storage.ProjectHandle) {
	if r := recover(); r != nil {
		l := applog.WithComponent("crash")
		stack := debug.Stack()
		l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

		reportPath, err := writeReport(ph, "main", r, stack)
		if err != nil {
			l.Error("write crash report failed", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
			l.Error("failed to write crash message to stderr", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
			l.Error("failed to write version info to stderr", slog.Any("err", err))
		}
		exitFn(2)
	}
}

// Guard runs fn and converts a panic into a *PanicError after writing a
// crash report. what names the work in the report.
func Guard(ph *storage.ProjectHandle, what string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			pe := &PanicError{Value: r, Stack: stack}
			path, werr := writeReport(ph, what, r, stack)
			if werr == nil {
				pe.Report = path
			}
			applog.WithComponent("crash").Error("panic in guarded work",
				slog.String("work", what), slog.Any("panic", r), slog.String("report", pe.Report))
			err = pe
		}
	}()
	return fn()
}

// ReportDir returns where crash reports for ph are written.
func ReportDir(ph *storage.ProjectHandle) string {
	if ph == nil || ph.Root == "" {
		return os.TempDir()
	}
	return filepath.Join(ph.Root, storage.IndexDirName)
}

func writeReport(ph *storage.ProjectHandle, what string, panicVal any, stack []byte) (string, error) {
	dir := ReportDir(ph)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		dir = os.TempDir()
	}
	stamp := time.Now().Format("20060102-150405.000000")
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", stamp))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Scenewright Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(&buf, "Work: %s\n", what)
	if ph != nil {
		_, _ = fmt.Fprintf(&buf, "Project: %s\n", ph.Name)
		_, _ = fmt.Fprintf(&buf, "ProjectRoot: %s\n", ph.Root)
		_, _ = fmt.Fprintf(&buf, "Script: %s\n", ph.ScriptPath)
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, err
	}
	_ = f.Sync()
	return path, nil
}

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"scenewright/internal/actors"
	"scenewright/internal/backend"
	"scenewright/internal/cache"
	"scenewright/internal/config"
	"scenewright/internal/export"
	applog "scenewright/internal/log"
	"scenewright/internal/pipeline"
	"scenewright/internal/script"
	"scenewright/internal/storage"
	"scenewright/internal/version"
)

var errUsage = errors.New("usage")

// app holds state shared by all subcommands.
type app struct {
	cfg      config.AppConfig
	rootFlag string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "scenewright",
		Short:         "Turn a scene script into cached, rendered video scenes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			applog.Init(applog.Options{
				Level:     cfg.Logging.Level,
				Format:    cfg.Logging.Format,
				AddSource: cfg.Logging.Source,
				File:      cfg.Logging.File,
				Console:   cmd.ErrOrStderr(),
			})
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&a.rootFlag, "root", "", "Project directory (overrides [project] and the configured base dir)")
	cmd.AddCommand(
		a.initCmd(),
		a.parseCmd(),
		a.statusCmd(),
		a.renderCmd(),
		a.exportCmd(),
		a.snapshotsCmd(),
		a.rendersCmd(),
		versionCmd(),
	)
	return cmd
}

// projectDir resolves the project from --root or the optional [project] argument.
func (a *app) projectDir(args []string) string {
	if a.rootFlag != "" {
		return a.rootFlag
	}
	var name string
	if len(args) > 0 {
		name = args[0]
	}
	return a.cfg.ProjectDir(name)
}

// load opens the project, parses its script and stores a snapshot of the
// script text in the project index when it changed.
func (a *app) load(ctx context.Context, args []string) (*storage.ProjectHandle, []script.Scene, error) {
	ph, err := storage.Open(a.projectDir(args))
	if err != nil {
		return nil, nil, err
	}
	text, err := storage.ReadScript(ph)
	if err != nil {
		return ph, nil, err
	}
	scenes, err := script.Parse(text)
	if err != nil {
		return ph, nil, err
	}
	db, err := openIndex(ctx, ph.Root)
	if err != nil {
		applog.WithComponent("cli").Warn("index unavailable", slog.Any("err", err))
		return ph, scenes, nil
	}
	defer db.Close()
	if saved, err := storage.SaveScriptSnapshot(ctx, db, text, time.Now()); err != nil {
		applog.WithComponent("cli").Warn("script snapshot failed", slog.Any("err", err))
	} else if saved {
		applog.WithComponent("cli").Debug("script snapshot stored", slog.String("project", ph.Name))
	}
	return ph, scenes, nil
}

// openIndex opens the project index. An index that cannot be opened is moved
// aside and recreated once before giving up.
func openIndex(ctx context.Context, root string) (*sql.DB, error) {
	db, err := storage.InitOrOpenIndex(root)
	if err == nil {
		return db, nil
	}
	l := applog.WithComponent("cli")
	l.Warn("index unusable, rebuilding", slog.Any("err", err))
	rebuilt, rbErr := storage.DetectAndRebuildIndex(ctx, root)
	if rbErr != nil {
		return nil, errors.Join(err, rbErr)
	}
	if rebuilt {
		l.Info("index rebuilt", slog.String("path", storage.IndexPath(root)))
	}
	return storage.InitOrOpenIndex(root)
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <dir>",
		Short: "Create a project with a sample script and casting file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			casting, err := actors.Default().Marshal()
			if err != nil {
				return err
			}
			ph, err := storage.InitProject(abs, casting)
			if err != nil {
				return err
			}
			applog.WithComponent("cli").Info("project created", slog.String("root", ph.Root))
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Created project at", ph.Root)
			return err
		},
	}
}

func (a *app) parseCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "parse [project]",
		Short: "Parse the script and print its scenes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, scenes, err := a.load(cmd.Context(), args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(scenes)
			}
			for i, s := range scenes {
				fmt.Fprintf(out, "Scene %d: %s\n", i+1, s.Overlay())
				for _, p := range s.Paragraphs() {
					fmt.Fprintf(out, "  [%s] %s\n", p.Actor, oneLine(p.Text))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print scenes as JSON")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [project]",
		Short: "Show which scenes are already rendered",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ph, scenes, err := a.load(ctx, args)
			if err != nil {
				return err
			}
			plan, err := pipeline.Plan(ph, scenes)
			if err != nil {
				return err
			}
			rows, err := statusRows(ctx, ph, plan)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			writeStatus(out, rows)
			casting, err := actors.Load(filepath.Join(ph.Root, storage.ActorsFileName))
			if err != nil {
				return err
			}
			for _, name := range casting.Missing(scenes) {
				fmt.Fprintf(out, "warning: actor %q has no casting entry, %s settings will be used\n", name, script.DefaultActor)
			}
			return nil
		},
	}
}

func (a *app) renderCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "render [project]",
		Short: "Render every scene that is not cached",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(a.cfg.Render.Command) == 0 {
				return fmt.Errorf("%w: render.command is not set in %s", errUsage, configPathOrDefault())
			}
			ctx := cmd.Context()
			ph, scenes, err := a.load(ctx, args)
			if err != nil {
				return err
			}
			casting, err := actors.Load(filepath.Join(ph.Root, storage.ActorsFileName))
			if err != nil {
				return err
			}
			env, err := config.RendererEnv()
			if err != nil {
				return err
			}
			env = append(env,
				"SW_ACTORS_FILE="+filepath.Join(ph.Root, storage.ActorsFileName),
				"SW_FINAL_MOVIE="+storage.FinalMoviePath(ph),
			)
			db, err := openIndex(ctx, ph.Root)
			if err != nil {
				return err
			}
			defer db.Close()

			if workers <= 0 {
				workers = a.cfg.Render.Workers
			}
			runner := &pipeline.Runner{
				Project: ph,
				Workers: workers,
				Index:   db,
				Renderer: pipeline.CommandRenderer{
					Argv:    a.cfg.Render.Command,
					Env:     env,
					Timeout: a.cfg.Render.Timeout(),
				},
			}
			if len(casting.Missing(scenes)) > 0 {
				applog.WithComponent("cli").Warn("uncast actors", slog.Any("actors", casting.Missing(scenes)))
			}
			if dsn := a.cfg.Backend.DSN; dsn != "" {
				ledger, err := backend.Open(ctx, dsn)
				if err != nil {
					applog.WithComponent("cli").Warn("shared ledger unavailable", slog.Any("err", err))
				} else {
					defer ledger.Close()
					runner.Ledger = ledger
				}
			}
			results, runErr := runner.Run(ctx, scenes)
			out := cmd.OutOrStdout()
			writeResults(out, results)
			if runErr == nil {
				fmt.Fprintf(out, "All %d scenes rendered; final movie: %s\n", len(results), storage.FinalMoviePath(ph))
			}
			return runErr
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent scene renders (default from config)")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export [project]",
		Short: "Write a storyboard PDF of the parsed scenes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ph, scenes, err := a.load(cmd.Context(), args)
			if err != nil {
				return err
			}
			plan, err := pipeline.Plan(ph, scenes)
			if err != nil {
				return err
			}
			casting, err := actors.Load(filepath.Join(ph.Root, storage.ActorsFileName))
			if err != nil {
				return err
			}
			path, err := export.StoryboardPDF(ph, plan, out, export.StoryboardOptions{Casting: casting})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Wrote", path)
			return err
		},
	}
	cmd.Flags().StringVar(&out, "out", "storyboard.pdf", "Output file; relative paths go to <project>/exports")
	return cmd
}

func (a *app) snapshotsCmd() *cobra.Command {
	var (
		limit, keep, restore int
		backups              bool
	)
	cmd := &cobra.Command{
		Use:   "snapshots [project]",
		Short: "List stored versions of the script",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ph, err := storage.Open(a.projectDir(args))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if backups {
				files, err := storage.ScriptBackups(ph)
				if err != nil {
					return err
				}
				for _, f := range files {
					fmt.Fprintln(out, f)
				}
				return nil
			}
			ctx := cmd.Context()
			db, err := openIndex(ctx, ph.Root)
			if err != nil {
				return err
			}
			defer db.Close()
			if restore > 0 {
				snaps, err := storage.ListScriptSnapshots(ctx, db, restore)
				if err != nil {
					return err
				}
				if len(snaps) < restore {
					return fmt.Errorf("%w: only %d snapshots stored", errUsage, len(snaps))
				}
				snap := snaps[restore-1]
				if err := storage.SaveScript(ph, snap.Text); err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "Restored script from %s; previous version kept in %s\n",
					snap.TS.Local().Format(time.DateTime), storage.BackupsDirName)
				return err
			}
			if keep > 0 {
				n, err := storage.PruneOldScriptSnapshots(ctx, db, keep)
				if err != nil {
					return err
				}
				applog.WithComponent("cli").Info("pruned snapshots", slog.Int64("removed", n))
			}
			snaps, err := storage.ListScriptSnapshots(ctx, db, limit)
			if err != nil {
				return err
			}
			for _, s := range snaps {
				fmt.Fprintf(out, "%s  %d bytes  %s\n", s.TS.Local().Format(time.DateTime), len(s.Text), oneLine(firstLine(s.Text)))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum snapshots to list")
	cmd.Flags().IntVar(&keep, "prune", 0, "Keep only the newest N snapshots")
	cmd.Flags().BoolVar(&backups, "backups", false, "List script.txt backup files instead")
	cmd.Flags().IntVar(&restore, "restore", 0, "Replace script.txt with the Nth newest snapshot (1 = newest)")
	return cmd
}

func (a *app) rendersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "renders",
		Short: "Inspect or prune the project's render index",
	}
	cmd.AddCommand(a.rendersListCmd(), a.rendersPruneCmd())
	return cmd
}

func (a *app) rendersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [project]",
		Short: "List recorded renders",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ph, err := storage.Open(a.projectDir(args))
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := openIndex(ctx, ph.Root)
			if err != nil {
				return err
			}
			defer db.Close()
			recs, err := storage.ListRenders(ctx, db)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCENE\tOVERLAY\tPARAGRAPHS\tFINGERPRINT\tRENDERED AT\tTOOK")
			for _, r := range recs {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n", r.SceneIndex+1, r.OverlayTag, r.Paragraphs, r.Fingerprint,
					r.RenderedAt.Local().Format(time.DateTime), r.Duration.Round(time.Millisecond))
			}
			return tw.Flush()
		},
	}
}

func (a *app) rendersPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune [project]",
		Short: "Drop render records of scenes no longer in the script",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ph, scenes, err := a.load(ctx, args)
			if err != nil {
				return err
			}
			keep := make([]string, len(scenes))
			for i, s := range scenes {
				keep[i] = cache.Fingerprint(s)
			}
			db, err := openIndex(ctx, ph.Root)
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := storage.PruneRenders(ctx, db, keep)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d render records\n", n)
			return err
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "scenewright", version.String())
			return err
		},
	}
}

// statusRow is one scene of the status table.
type statusRow struct {
	pipeline.SceneStatus
	Record   storage.RenderRecord
	Recorded bool // the index holds a render record
	Audio    bool // scene audio and every paragraph audio are cached
}

// statusRows joins the cache plan with the render index. A missing index
// only hides the render times.
func statusRows(ctx context.Context, ph *storage.ProjectHandle, plan []pipeline.SceneStatus) ([]statusRow, error) {
	c := cache.New(ph.Root)
	db, err := openIndex(ctx, ph.Root)
	if err != nil {
		applog.WithComponent("cli").Warn("index unavailable", slog.Any("err", err))
	} else {
		defer db.Close()
	}
	rows := make([]statusRow, len(plan))
	for i, st := range plan {
		rows[i].SceneStatus = st
		audio, err := c.IsSceneAudioComplete(st.Scene)
		if err != nil {
			return nil, err
		}
		rows[i].Audio = audio
		if db == nil {
			continue
		}
		rec, ok, err := storage.LookupRender(ctx, db, st.Fingerprint)
		if err != nil {
			return nil, err
		}
		rows[i].Record, rows[i].Recorded = rec, ok
	}
	return rows, nil
}

func writeStatus(w io.Writer, rows []statusRow) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENE\tOVERLAY\tPARAGRAPHS\tFINGERPRINT\tSTATE\tAUDIO\tRENDERED AT\tTOOK")
	rendered := 0
	for _, r := range rows {
		state := "pending"
		if r.Rendered {
			state = "rendered"
			rendered++
		}
		audio := "-"
		if r.Audio {
			audio = "complete"
		}
		at, took := "-", "-"
		if r.Recorded {
			at = r.Record.RenderedAt.Local().Format(time.DateTime)
			took = r.Record.Duration.Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n", r.Index+1, r.Scene.Overlay().Tag, r.Scene.Len(), r.Fingerprint, state, audio, at, took)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%d of %d scenes rendered\n", rendered, len(rows))
}

func writeResults(w io.Writer, results []pipeline.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENE\tRESULT\tTOOK\tARTIFACT")
	for _, r := range results {
		took := "-"
		if r.Outcome != pipeline.Cached {
			took = r.Duration.Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Index+1, r.Outcome, took, r.Artifact)
	}
	_ = tw.Flush()
}

func configPathOrDefault() string {
	if p, err := config.ConfigPath(); err == nil {
		return p
	}
	return "the config file"
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

// oneLine collapses newlines and truncates for terminal listings.
func oneLine(s string) string {
	const maxRunes = 72
	b := make([]rune, 0, maxRunes)
	for _, r := range s {
		if len(b) == maxRunes {
			return string(b) + "…"
		}
		if r == '\n' || r == '\r' || r == '\t' {
			r = ' '
		}
		b = append(b, r)
	}
	return string(b)
}

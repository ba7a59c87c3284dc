package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/Sakimotor/TranslationFramework2/internal/config"
	"github.com/Sakimotor/TranslationFramework2/internal/jobs"
	"github.com/Sakimotor/TranslationFramework2/internal/service"
	"github.com/Sakimotor/TranslationFramework2/pkg/file"
	"github.com/Sakimotor/TranslationFramework2/pkg/log"
)

func newProjectCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Work on every asset of the game directory",
	}
	cmd.AddCommand(newProjectInitCommand(ctx))
	cmd.AddCommand(newProjectDiscoverCommand(ctx))
	cmd.AddCommand(newProjectRebuildCommand(ctx))
	cmd.AddCommand(newProjectHistoryCommand(ctx))
	cmd.AddCommand(newProjectScheduleCommand(ctx))
	return cmd
}

func newProjectInitCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the current settings to the project file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := ctx.projectPath()
			if file.Exists(path) && !force {
				return service.NewError(service.ErrValidation, "project file already exists; use --force to overwrite").
					WithContext("path", path)
			}
			if err := config.WriteProjectFile(path, cfg.Project()); err != nil {
				return service.WrapError(err, service.ErrFileWrite, "cannot write project file").
					WithContext("path", path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing project file")
	return cmd
}

func newProjectDiscoverCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "List the assets found in the game directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *service.ProjectService) error {
				assets, err := svc.Discover(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(assets))
				for _, a := range assets {
					size := "?"
					if info, err := os.Stat(a.Path); err == nil {
						size = humanize.IBytes(uint64(info.Size()))
					}
					rows = append(rows, []string{
						a.RelativePath,
						size,
						yesNo(file.Exists(svc.Open(a).ChangesFile())),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Asset", "Size", "Overlay"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}

func newProjectRebuildCommand(ctx *commandContext) *cobra.Command {
	var changedOnly bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild every asset into the output directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *service.ProjectService) error {
				var (
					run *jobs.RebuildRun
					err error
				)
				if changedOnly {
					run, err = svc.RebuildChanged(cmd.Context(), jobs.SourceManual)
				} else {
					run, err = svc.RebuildAll(cmd.Context(), jobs.SourceManual)
				}
				if run != nil {
					printRun(cmd, run)
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&changedOnly, "changed", false, "Only rebuild assets saved since their last rebuild")
	return cmd
}

func newProjectHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past rebuild runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *service.ProjectService) error {
				runs, err := svc.History(cmd.Context(), limit)
				if err != nil {
					return err
				}
				colorize := shouldColorize(cmd.OutOrStdout())
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					counts := run.Counts()
					rows = append(rows, []string{
						run.ID,
						run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
						string(run.Source),
						statusLabel(run.Status, colorize),
						strconv.Itoa(counts[jobs.StatusSuccess]),
						strconv.Itoa(counts[jobs.StatusSkipped]),
						strconv.Itoa(counts[jobs.StatusFailed]),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Run", "Started", "Source", "Status", "Rebuilt", "Skipped", "Failed"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show (0 for all)")
	return cmd
}

func newProjectScheduleCommand(ctx *commandContext) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Rebuild changed assets on the configured cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
				return service.WrapError(err, service.ErrFileWrite, "cannot create data directory")
			}
			lock := flock.New(filepath.Join(cfg.Paths.DataDir, "schedule.lock"))
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire schedule lock: %w", err)
			}
			if !ok {
				return service.NewError(service.ErrValidation, "another scheduler is already running for this project").
					WithContext("data_dir", cfg.Paths.DataDir)
			}
			defer lock.Unlock()

			return ctx.withService(func(svc *service.ProjectService) error {
				if once {
					run, _, err := svc.TriggerScheduled(cmd.Context())
					if run != nil {
						printRun(cmd, run)
					}
					return err
				}

				if err := svc.Schedule(cmd.Context()); err != nil {
					return err
				}
				info, err := svc.NextRun()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Schedule %q, next run %s (in %s)\n",
					info.Expression, info.Next.Format(time.RFC3339), info.TimeUntilNext.Round(time.Second))

				svc.Start()
				<-cmd.Context().Done()
				log.Info("Stopping scheduler, waiting for a running rebuild")
				<-svc.Stop().Done()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run a single scheduled pass and exit")
	return cmd
}

func printRun(cmd *cobra.Command, run *jobs.RebuildRun) {
	colorize := shouldColorize(cmd.OutOrStdout())
	rows := make([][]string, 0, len(run.Assets))
	for _, a := range run.Assets {
		detail := a.OutputPath
		if a.Error != "" {
			detail = cell(a.Error, textColumnWidth)
		}
		rows = append(rows, []string{
			a.RelativePath,
			statusLabel(a.Status, colorize),
			strconv.Itoa(a.Patched),
			strconv.Itoa(a.Entries),
			detail,
		})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(
		[]string{"Asset", "Status", "Patched", "Texts", "Output"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
	fmt.Fprintf(out, "Run %s: %s\n", run.ID, statusLabel(run.Status, colorize))
}

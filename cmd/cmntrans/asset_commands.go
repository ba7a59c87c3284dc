package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/Sakimotor/TranslationFramework2/internal/service"
	"github.com/Sakimotor/TranslationFramework2/internal/subtitle"
)

const textColumnWidth = 48

func newScanCommand(ctx *commandContext) *cobra.Command {
	var translatedOnly bool
	var full bool

	cmd := &cobra.Command{
		Use:   "scan <asset>",
		Short: "List the texts of an asset with their offsets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *service.ProjectService) error {
				f, err := svc.OpenPath(args[0])
				if err != nil {
					return err
				}
				entries, err := f.Entries()
				if err != nil {
					return err
				}

				limit := textColumnWidth
				if full {
					limit = 0
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					if translatedOnly && !e.Translated() {
						continue
					}
					rows = append(rows, []string{
						formatOffset(e.Offset),
						e.Kind.String(),
						strconv.Itoa(e.MaxLength),
						cell(e.Original, limit),
						cell(e.Translation, limit),
					})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(
					[]string{"Offset", "Kind", "Max", "Original", "Translation"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				source := "asset"
				if f.FromOverlay() {
					source = "overlay " + f.ChangesFile()
				}
				fmt.Fprintf(out, "%d texts (from %s)\n", len(entries), source)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&translatedOnly, "translated", false, "Only list texts that have a translation")
	cmd.Flags().BoolVar(&full, "full", false, "Do not shorten long texts")
	return cmd
}

func newSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <asset> <offset> <text>",
		Short: "Translate one text and save the overlay",
		Long: "Translate one text and save the overlay. The offset is the one shown by scan;\n" +
			"hexadecimal (0x...) and decimal are accepted. An empty text restores the original.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			offset, err := parseOffset(args[1])
			if err != nil {
				return err
			}
			return ctx.withService(func(svc *service.ProjectService) error {
				f, err := svc.OpenPath(args[0])
				if err != nil {
					return err
				}
				if err := f.SetTranslation(offset, args[2]); err != nil {
					return err
				}
				if err := f.Save(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s saved (%s translated)\n",
					f.RelativePath(), formatOffset(offset), progress(f.Stats().Translated, f.Stats().Total))
				return nil
			})
		},
	}
}

// translationFile is the input of the apply command.
type translationFile struct {
	Translations map[string]string `toml:"translations"`
}

func newApplyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <asset> <file.toml>",
		Short: "Apply translations keyed by offset from a TOML file",
		Long: "Apply translations keyed by offset from a TOML file of the form\n\n" +
			"  [translations]\n  \"0x00001A40\" = \"Good morning\"\n\n" +
			"Texts that do not fit are reported; the others are saved.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			translations, err := readTranslationFile(args[1])
			if err != nil {
				return err
			}
			return ctx.withService(func(svc *service.ProjectService) error {
				f, err := svc.OpenPath(args[0])
				if err != nil {
					return err
				}
				applied, applyErr := f.ApplyTranslations(translations)
				if applied > 0 {
					if err := f.Save(); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d translations applied to %s\n",
					applied, len(translations), f.RelativePath())
				return applyErr
			})
		},
	}
}

func readTranslationFile(path string) (map[int64]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tf translationFile
	if err := toml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	ret := make(map[int64]string, len(tf.Translations))
	var errs []error
	for key, text := range tf.Translations {
		offset, err := parseOffset(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ret[offset] = text
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ret, nil
}

func newSaveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "save <asset>",
		Short: "Write the overlay of an asset, creating it from a scan if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *service.ProjectService) error {
				f, err := svc.OpenPath(args[0])
				if err != nil {
					return err
				}
				if err := f.Save(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %d texts to %s\n", f.Stats().Total, f.ChangesFile())
				return nil
			})
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [asset]",
		Short: "Show translation progress of one asset or of the whole project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *service.ProjectService) error {
				if len(args) == 1 {
					f, err := svc.OpenPath(args[0])
					if err != nil {
						return err
					}
					return printAssetStatus(cmd, f)
				}
				statuses, err := svc.Status(cmd.Context())
				if err != nil {
					return err
				}
				printProjectStatus(cmd, statuses)
				return nil
			})
		},
	}
}

func printAssetStatus(cmd *cobra.Command, f *subtitle.File) error {
	if err := f.Load(); err != nil {
		return err
	}
	stats := f.Stats()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Asset:       %s\n", f.Path())
	fmt.Fprintf(out, "Overlay:     %s (%s)\n", f.ChangesFile(), yesNo(f.FromOverlay()))
	fmt.Fprintf(out, "Language:    %s\n", f.Language())
	fmt.Fprintf(out, "Texts:       %d\n", stats.Total)
	fmt.Fprintf(out, "Translated:  %s\n", progress(stats.Translated, stats.Total))
	return nil
}

func printProjectStatus(cmd *cobra.Command, statuses []service.AssetStatus) {
	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		translated := progress(st.Translated, st.Total)
		if st.Error != "" {
			translated = "error: " + cell(st.Error, textColumnWidth)
		}
		lastRebuild := "never"
		if !st.LastRebuild.IsZero() {
			lastRebuild = st.LastRebuild.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			st.RelativePath,
			translated,
			yesNo(st.HasOverlay),
			lastRebuild,
			yesNo(st.Stale()),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Asset", "Translated", "Overlay", "Last rebuild", "Needs rebuild"},
		rows,
		nil,
	))
}

func newRebuildCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild <asset>",
		Short: "Write a translated copy of one asset to the output directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *service.ProjectService) error {
				asset, err := svc.AssetFor(args[0])
				if err != nil {
					return err
				}
				run, err := svc.RebuildAsset(cmd.Context(), asset)
				if run != nil {
					printRun(cmd, run)
				}
				return err
			})
		},
	}
}

func parseOffset(s string) (int64, error) {
	offset, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64)
	if err != nil || offset < 0 {
		return 0, service.NewError(service.ErrValidation, fmt.Sprintf("invalid offset %q", s))
	}
	return offset, nil
}

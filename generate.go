package main

import (
	"PromptBot/model"
	"PromptBot/repo"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	generateOutDir string
	generateRandom bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [pick...]",
	Short: "Build a prompt from the command line and save the images",
	Long: `Generate walks the wizard once without Telegram. Each pick decides one step,
in order: an option label, an option index, or "-" to skip the step.

  promptbot generate 1 "playing chess" - - 2

With --random the backend picks one of its canned prompts instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		gen, err := newGenerator(appConfig)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(generateOutDir, 0o755); err != nil {
			return fmt.Errorf("error creating %s: %w", generateOutDir, err)
		}

		ch := repo.NewPromptChannel(ctx, gen, 1)
		var prompt string
		if generateRandom {
			if len(args) > 0 {
				return errors.New("picks cannot be combined with --random")
			}
			rp, ok := gen.(repo.RandomPrompter)
			if !ok {
				return fmt.Errorf("backend %q has no random prompts", appConfig.Backend.Kind)
			}
			if prompt, err = rp.RandomPrompt(ctx); err != nil {
				return err
			}
			if err := ch.SendMessage(ctx, prompt); err != nil {
				return err
			}
		} else {
			catalog, err := model.LoadCatalog(appConfig.Catalog.Path)
			if err != nil {
				return fmt.Errorf("error loading catalog: %w", err)
			}
			w, err := buildWizard(catalog, args)
			if err != nil {
				return err
			}
			if err := w.Generate(ctx, ch); err != nil {
				return err
			}
			prompt = w.Text()
		}
		log.Info().Str("prompt", prompt).Msg("prompt submitted")

		paths, err := saveImages(ch, prompt, generateOutDir)
		for _, p := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return err
	},
}

func init() {
	generateCmd.Flags().StringVarP(&generateOutDir, "out", "o", ".", "Directory the images are written to")
	generateCmd.Flags().BoolVar(&generateRandom, "random", false, "Ask the backend for a random prompt")
}

// buildWizard applies picks to a fresh wizard, one step per pick.
func buildWizard(catalog *model.Catalog, picks []string) (*model.Wizard, error) {
	w := model.NewWizard(catalog)
	for _, pick := range picks {
		step := w.CurrentGroup() + 1
		if w.Done() {
			return nil, fmt.Errorf("pick %q: %w", pick, model.ErrCatalogExhausted)
		}
		if pick == "-" {
			if err := w.Skip(); err != nil {
				return nil, fmt.Errorf("step %d: %w", step, err)
			}
			continue
		}
		option, err := findOption(w.CurrentOptions(), pick)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}
		if err := w.AddOption(w.CurrentGroup(), option); err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}
	}
	return w, nil
}

// findOption matches pick against the labels first and falls back to an index.
func findOption(options []string, pick string) (int, error) {
	for i, label := range options {
		if label == pick {
			return i, nil
		}
	}
	i, err := strconv.Atoi(pick)
	if err != nil {
		return 0, fmt.Errorf("no option %q", pick)
	}
	if i < 0 || i >= len(options) {
		return 0, fmt.Errorf("option %d: %w", i, model.ErrOptionOutOfRange)
	}
	return i, nil
}

// saveImages writes every image arriving on ch to dir under its download name.
func saveImages(ch *repo.PromptChannel, prompt, dir string) ([]string, error) {
	var paths []string
	var writeErr error
	for img := range ch.Messages() {
		if writeErr != nil {
			continue
		}
		p := filepath.Join(dir, fileName(model.DownloadName(prompt, len(paths))))
		if err := os.WriteFile(p, img.Data, 0o644); err != nil {
			writeErr = fmt.Errorf("error writing %s: %w", p, err)
			continue
		}
		paths = append(paths, p)
	}
	if err := ch.Err(); err != nil {
		return paths, err
	}
	return paths, writeErr
}

// fileName keeps a download name inside its directory by replacing path separators.
func fileName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, string(filepath.Separator), "_")
	return filepath.Base(name)
}

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/foodfinderyyc/smsbot/internal/convo"
	"github.com/foodfinderyyc/smsbot/internal/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newTestConvoCmd(cfg *Config) *cobra.Command {
	var (
		scriptPath string
		testFile   string
	)
	cmd := &cobra.Command{
		Use:   "test-convo [reply...]",
		Short: "Run a scripted dialogue against the live providers",
		Long: "Plays the given replies through the dialogue and prints the transcript. Replies come from the " +
			"arguments or from --script, a YAML or JSON list. With --test-file the transcript is also written to " +
			"<state-dir>/" + TranscriptDirName + "/<test-file>.",
		RunE: func(cmd *cobra.Command, args []string) error {
			script := args
			if scriptPath != "" {
				loaded, err := loadScript(scriptPath)
				if err != nil {
					return err
				}
				script = loaded
			}
			return runTestConvo(cmd, cfg, script, testFile)
		},
	}
	cmd.Flags().StringVar(&scriptPath, "script", "", "file holding the list of replies")
	cmd.Flags().StringVar(&testFile, "test-file", "", "transcript file name under the transcript directory")
	return cmd
}

// loadScript reads a list of replies. JSON is accepted because it is valid YAML.
func loadScript(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	var script []string
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("failed to parse script %s: %w", path, err)
	}
	return script, nil
}

func runTestConvo(cmd *cobra.Command, cfg *Config, script []string, testFile string) error {
	if len(script) == 0 {
		return models.ErrEmptyConvoScript
	}
	if testFile != "" {
		req := models.TestConvoRequest{Convo: script, TestFile: testFile}
		if err := req.Validate(); err != nil {
			return err
		}
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	if testFile != "" {
		if err := os.MkdirAll(cfg.TranscriptDir(), 0755); err != nil {
			return err
		}
		f, err := os.Create(filepath.Join(cfg.TranscriptDir(), testFile))
		if err != nil {
			return err
		}
		defer f.Close()
		out = io.MultiWriter(out, f)
	}

	outcome, _, err := convo.RunScript(cmd.Context(), rt.engine, rt.resolver, cfg.TestUser, script, out)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "outcome: %s\n", outcome)
	return nil
}

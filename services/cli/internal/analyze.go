package internal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/synapse-ai/synapse/shared/config"
	"github.com/synapse-ai/synapse/shared/llm"
	"github.com/synapse-ai/synapse/shared/refactor"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Analyse a snippet and print the suggested refactor",
	Long: `Analyse a JavaScript or TypeScript file. With no file, or "-", the snippet
is read from stdin.

Examples:
  synapse analyze cart.js                  # via the gateway
  synapse analyze --offline cart.ts --diff # local pipeline, show a diff
  pbpaste | synapse analyze --lang ts -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().Bool("offline", false, "run the pipeline locally instead of calling the gateway")
	analyzeCmd.Flags().StringP("lang", "l", "", "language tag (javascript, typescript, tsx); inferred from the file name")
	analyzeCmd.Flags().Bool("ts", false, "prefer TypeScript output")
	analyzeCmd.Flags().String("model", "", "preferred model id (advisory)")
	analyzeCmd.Flags().BoolP("diff", "d", false, "print a unified diff against the input")
	analyzeCmd.Flags().Bool("json", false, "print the raw JSON result")
	analyzeCmd.Flags().Bool("no-color", false, "disable syntax highlighting")
	analyzeCmd.Flags().Duration("timeout", 10*time.Second, "gateway request timeout")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	name := "-"
	if len(args) == 1 {
		name = args[0]
	}
	code, err := readSource(cmd.InOrStdin(), name)
	if err != nil {
		return err
	}

	langFlag, _ := cmd.Flags().GetString("lang")
	preferTS, _ := cmd.Flags().GetBool("ts")
	model, _ := cmd.Flags().GetString("model")
	if langFlag == "" && name != "-" {
		langFlag = string(refactor.LanguageForFile(name))
	}
	sub := refactor.Submission{
		Code:        code,
		Language:    langFlag,
		Preferences: refactor.Preferences{UseTypescript: preferTS},
		Model:       model,
	}

	var a refactor.Analysis
	if offline, _ := cmd.Flags().GetBool("offline"); offline {
		a, err = analyzeLocal(cmd, sub)
	} else {
		a, err = analyzeRemote(cmd, sub)
	}
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	}

	showDiff, _ := cmd.Flags().GetBool("diff")
	noColor, _ := cmd.Flags().GetBool("no-color")
	return renderAnalysis(cmd.OutOrStdout(), code, sub.Lang(), a, renderOptions{diff: showDiff, color: !noColor})
}

func analyzeLocal(cmd *cobra.Command, sub refactor.Submission) (refactor.Analysis, error) {
	_ = godotenv.Load()
	cfg, err := config.FromEnv()
	if err != nil {
		return refactor.Analysis{}, err
	}
	d, err := llm.New(cfg.LLM())
	if err != nil {
		return refactor.Analysis{}, err
	}
	engine := refactor.NewEngine(refactor.WithDispatcher(d))
	return engine.Analyze(cmd.Context(), sub)
}

func analyzeRemote(cmd *cobra.Command, sub refactor.Submission) (refactor.Analysis, error) {
	api, _ := cmd.Flags().GetString("api")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	reply, err := newAPIClient(api, timeout).analyze(cmd.Context(), sub)
	if err != nil {
		return refactor.Analysis{}, err
	}
	return reply.Analysis, nil
}

func readSource(stdin io.Reader, name string) (string, error) {
	var (
		b   []byte
		err error
	)
	if name == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	return string(b), nil
}

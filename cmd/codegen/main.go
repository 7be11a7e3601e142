// Command codegen is the headless operator front end for the codegen engine:
// plan a goal, validate candidate paths, and apply an accepted plan against a
// local project bundle or a remote repository.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/buildrhq/codegen/pkg/engine"
	"github.com/buildrhq/codegen/pkg/executor"
	"github.com/buildrhq/codegen/pkg/planner"
	"github.com/buildrhq/codegen/pkg/types"
	"github.com/buildrhq/codegen/pkg/workspace"
)

const version = "0.1.0"

var (
	flagConfig      string
	flagProjectRoot string
	flagRepo        string
	flagBase        string
	flagTenant      string
	flagAllow       []string
	flagDeny        []string
	flagModel       string
	flagBaseURL     string
	flagOffline     bool
	flagAsync       bool
	flagPlanFile    string
	flagTestCmd     string
	flagLintCmd     string
	flagArtifacts   string
)

var rootCmd = &cobra.Command{
	Use:           "codegen",
	Short:         "Autonomous code-modification engine",
	Long:          "codegen plans and applies goal-driven file changes against an isolated workspace,\nwith guardrails, test/lint gates, and atomic rollback.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var planCmd = &cobra.Command{
	Use:   "plan <goal text>",
	Short: "Produce a plan for a goal without mutating the repository",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		goal, err := buildGoal(strings.Join(args, " "), true)
		if err != nil {
			return err
		}

		plan, err := eng.Plan(signalContext(), goal)
		if err != nil {
			return err
		}
		return printJSON(cmd, plan)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <path>...",
	Short: "Check candidate paths against the guardrail policy",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		goal, err := buildGoal("validate candidate paths", true)
		if err != nil {
			return err
		}

		violations, err := eng.Validate(goal, args)
		if err != nil {
			return err
		}
		if len(violations) == 0 {
			cmd.Println("pass")
			return nil
		}
		for _, v := range violations {
			cmd.Printf("violation: %s\n", v)
		}
		return fmt.Errorf("%d guardrail violation(s)", len(violations))
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply <goal text>",
	Short: "Plan (or load a plan) and run the full apply pipeline",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		goal, err := buildGoal(strings.Join(args, " "), false)
		if err != nil {
			return err
		}
		ctx := signalContext()

		var plan *types.Plan
		if flagPlanFile != "" {
			plan, err = loadPlan(flagPlanFile)
		} else {
			plan, err = eng.Plan(ctx, goal)
		}
		if err != nil {
			return err
		}

		if flagAsync {
			jobID, err := eng.ApplyAsync(ctx, goal, plan)
			if err != nil {
				return err
			}
			cmd.Printf("job %s started\n", jobID)
			return pollJob(cmd, eng, jobID)
		}

		result, err := eng.Apply(ctx, goal, plan)
		if err != nil {
			return err
		}
		if err := printJSON(cmd, result); err != nil {
			return err
		}
		if result.Status != types.StatusSuccess {
			return fmt.Errorf("execution %s in phase %s", result.Status, result.FailedPhase)
		}
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&flagProjectRoot, "project-root", ".", "root directory of exported project bundles")
	rootCmd.PersistentFlags().StringVar(&flagRepo, "repo", "", "repository ref: local:<project-id> or <owner>/<repo>[@branch]")
	rootCmd.PersistentFlags().StringVar(&flagBase, "base", "", "base branch (defaults to the ref branch or main)")
	rootCmd.PersistentFlags().StringVar(&flagTenant, "tenant", "", "tenant identifier for credential scoping")
	rootCmd.PersistentFlags().StringSliceVar(&flagAllow, "allow", nil, "allow-list path patterns")
	rootCmd.PersistentFlags().StringSliceVar(&flagDeny, "deny", nil, "deny glob patterns")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "planning model")
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", os.Getenv("OPENAI_BASE_URL"), "OpenAI-compatible base URL")
	rootCmd.PersistentFlags().BoolVar(&flagOffline, "offline", false, "skip the planning capability and use the deterministic fallback")
	rootCmd.PersistentFlags().StringVar(&flagTestCmd, "test-command", "", "test command run inside the workspace")
	rootCmd.PersistentFlags().StringVar(&flagLintCmd, "lint-command", "", "lint command run inside the workspace")
	rootCmd.PersistentFlags().StringVar(&flagArtifacts, "artifacts", ".codegen/artifacts", "artifact output directory")

	applyCmd.Flags().BoolVar(&flagAsync, "async", false, "run as a background job and poll for the result")
	applyCmd.Flags().StringVar(&flagPlanFile, "plan", "", "apply a previously saved plan JSON instead of re-planning")

	rootCmd.AddCommand(planCmd, validateCmd, applyCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// buildEngine assembles an engine from flags and the optional config file.
func buildEngine() (*engine.Engine, error) {
	config := engine.DefaultConfig()
	if flagConfig != "" {
		loaded, err := engine.LoadConfig(flagConfig)
		if err != nil {
			return nil, err
		}
		config = loaded
	}
	if flagTestCmd != "" {
		config.Executor.TestCommand = flagTestCmd
	}
	if flagLintCmd != "" {
		config.Executor.LintCommand = flagLintCmd
	}
	if config.Executor.ArtifactDir == "" {
		config.Executor.ArtifactDir = flagArtifacts
	}
	if config.Workspace.BundleDir == "" {
		config.Workspace.BundleDir = config.Executor.ArtifactDir
	}

	opts := engine.Options{
		Projects:    workspace.NewDirProjectStore(flagProjectRoot),
		Credentials: workspace.NewEnvCredentials(""),
		Remote:      &executor.GHOpener{},
	}
	if !flagOffline {
		capability, err := planner.NewOpenAICapability("", flagBaseURL, flagModel)
		if err == nil {
			opts.Capability = capability
		} else {
			fmt.Fprintf(os.Stderr, "warning: planning capability disabled: %v\n", err)
		}
	}

	return engine.New(config, opts)
}

func buildGoal(goalText string, dryRun bool) (*types.CodegenGoal, error) {
	ref, err := parseRepoRef(flagRepo)
	if err != nil {
		return nil, err
	}
	return &types.CodegenGoal{
		GoalText:   goalText,
		RepoRef:    ref,
		BranchBase: flagBase,
		DryRun:     dryRun,
		AllowPaths: flagAllow,
		DenyGlobs:  flagDeny,
		Tenant:     flagTenant,
	}, nil
}

// parseRepoRef understands local:<project-id> and <owner>/<repo>[@branch].
func parseRepoRef(s string) (types.RepoRef, error) {
	if s == "" {
		return types.RepoRef{}, fmt.Errorf("--repo is required")
	}
	if rest, ok := strings.CutPrefix(s, "local:"); ok {
		return types.LocalRepo(rest), nil
	}

	branch := ""
	if at := strings.LastIndex(s, "@"); at != -1 {
		branch = s[at+1:]
		s = s[:at]
	}
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return types.RepoRef{}, fmt.Errorf("invalid repo ref %q", s)
	}
	return types.RemoteRepo(parts[0], parts[1], branch), nil
}

func loadPlan(path string) (*types.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	var plan types.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}
	return &plan, nil
}

func pollJob(cmd *cobra.Command, eng *engine.Engine, jobID string) error {
	for {
		time.Sleep(time.Second)
		job, ok := eng.Job(jobID)
		if !ok {
			return fmt.Errorf("job %s disappeared", jobID)
		}
		cmd.Printf("job %s: %s\n", jobID, job.State)
		if job.State.Terminal() {
			if job.Result != nil {
				if err := printJSON(cmd, job.Result); err != nil {
					return err
				}
				if job.Result.Status != types.StatusSuccess {
					return fmt.Errorf("execution %s in phase %s", job.Result.Status, job.Result.FailedPhase)
				}
			}
			return nil
		}
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM so a half-run
// pipeline rolls back instead of being killed mid-apply.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nshutting down gracefully...")
		cancel()
	}()
	return ctx
}

// claude-runner drives an external CLI coding agent toward a goal under
// a wall-clock budget: it plans, executes, supervises, verifies claims,
// and persists resumable state.
package main

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/claude-runner/claude-runner/pkg/version"
)

// exitStatus is the process exit code decided by the run: 0 only when
// the final status is completed.
var exitStatus int

var opts struct {
	goal         string
	subGoals     []string
	timeLimit    time.Duration
	directory    string
	contextArg   string
	configFile   string
	stateDir     string
	agentBinary  string
	parallel     bool
	ui           bool
	uiPort       int
	resume       string
	listSessions bool
	retry        bool
	maxRetries   int
	verbose      bool
	quiet        bool
	jsonOut      bool
}

var rootCmd = &cobra.Command{
	Use:   "claude-runner [goal]",
	Short: "Autonomous goal runner for CLI coding agents",
	Long: `claude-runner repeatedly invokes an external CLI coding agent toward a
goal under a time budget. It builds a step plan, supervises every agent
turn, verifies completion claims against real artifacts, and persists
state so interrupted runs can resume.

The goal is given as positional arguments or --goal:

  claude-runner "Add input validation to every API handler"
  claude-runner --resume --time-limit 30m
  claude-runner --list-sessions`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: false,
	Version:       version.Full(),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, args)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(exitStatus)
}

func init() {
	f := rootCmd.Flags()

	f.StringVar(&opts.goal, "goal", "", "goal statement (alternative to positional arguments)")
	f.StringArrayVar(&opts.subGoals, "sub-goal", nil, "ordered sub-goal, repeatable")
	f.DurationVar(&opts.timeLimit, "time-limit", 2*time.Hour, "wall-clock budget for the run")
	f.StringVarP(&opts.directory, "directory", "C", ".", "working directory the agent operates in")
	f.StringVar(&opts.contextArg, "context", "", "extra goal context, inline or @file")
	f.StringVar(&opts.configFile, "config", "", "path to a YAML config file")
	f.StringVar(&opts.stateDir, "state-dir", "", "state directory (default .claude-runner under the working directory)")
	f.StringVar(&opts.agentBinary, "agent-binary", "", "agent executable (default claude)")
	f.BoolVar(&opts.parallel, "parallel", false, "run independent plan steps concurrently")
	f.BoolVar(&opts.ui, "ui", false, "serve the HTTP/WebSocket dashboard")
	f.IntVar(&opts.uiPort, "ui-port", 7777, "dashboard port")
	f.StringVar(&opts.resume, "resume", "", "resume a session: bare for the newest resumable match, or an explicit id")
	f.Lookup("resume").NoOptDefVal = "latest"
	f.BoolVar(&opts.listSessions, "list-sessions", false, "list stored sessions and exit")
	f.BoolVar(&opts.retry, "retry", false, "retry the whole run until it completes or attempts run out")
	f.IntVar(&opts.maxRetries, "max-retries", 3, "attempt budget for --retry")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress per-event output, print only the final report")
	f.BoolVar(&opts.jsonOut, "json", false, "emit every event as a JSON line on stdout")
}

// newEnv returns the CLAUDE_RUNNER_* environment lookup. Bound keys
// mirror flag names, so CLAUDE_RUNNER_AGENT_BINARY pairs with
// --agent-binary. Precedence stays config file < environment < flag.
func newEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("CLAUDE_RUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, key := range []string{
		"config", "state-dir", "agent-binary", "time-limit", "ui-port", "parallel",
	} {
		_ = v.BindEnv(key)
	}
	return v
}

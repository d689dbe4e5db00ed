package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/claude-runner/claude-runner/pkg/agent"
	"github.com/claude-runner/claude-runner/pkg/api"
	"github.com/claude-runner/claude-runner/pkg/cleanup"
	"github.com/claude-runner/claude-runner/pkg/config"
	"github.com/claude-runner/claude-runner/pkg/engine"
	"github.com/claude-runner/claude-runner/pkg/events"
	"github.com/claude-runner/claude-runner/pkg/session"
)

func run(cmd *cobra.Command, args []string) error {
	setupLogging()

	workdir, err := filepath.Abs(opts.directory)
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}
	if info, err := os.Stat(workdir); err != nil || !info.IsDir() {
		return fmt.Errorf("working directory %s is not a directory", workdir)
	}

	loadDotenv(workdir)

	cfg, err := loadConfig(cmd, newEnv())
	if err != nil {
		return err
	}

	if opts.listSessions {
		return listSessions(cfg, workdir)
	}

	goal, err := resolveGoal(args, workdir)
	if err != nil {
		return err
	}

	bus := events.NewBus(cfg.Engine.EventHistoryLimit)
	renderDone := startRenderer(bus)

	var srv *api.Server
	if cfg.UI.Enabled {
		srv = startDashboard(cfg, workdir, bus)
	}

	sweeper := cleanup.NewService(cfg.State, session.New(cfg.State, workdir))
	sweeper.Start(context.Background())
	defer sweeper.Stop()

	ctl := &control{}
	watchSignals(ctl)

	factory := agent.NewCLIFactory(cfg.Agent, workdir)
	var report *events.CompletePayload
	var runErr error
	if opts.retry {
		report, runErr = retryLoop(cfg, goal, factory, bus, ctl)
	} else {
		report, runErr = singleRun(cfg, goal, factory, bus, ctl)
	}

	if srv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutCtx)
		cancel()
	}
	bus.Close()
	<-renderDone

	if runErr != nil {
		exitStatus = 1
		return runErr
	}
	printReport(report)
	if report.Status != engine.StatusCompleted {
		exitStatus = 1
	}
	return nil
}

// ── configuration assembly ──

func setupLogging() {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	if opts.quiet {
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func loadDotenv(workdir string) {
	for _, path := range []string{filepath.Join(workdir, ".env"), ".env"} {
		if err := godotenv.Load(path); err == nil {
			slog.Debug("Loaded environment file", "path", path)
			return
		}
	}
}

// loadConfig layers the run configuration: built-in defaults, then the
// YAML file, then CLAUDE_RUNNER_* environment values, then flags.
func loadConfig(cmd *cobra.Command, env *viper.Viper) (*config.Config, error) {
	path := opts.configFile
	if path == "" && env.IsSet("config") {
		path = env.GetString("config")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if env.IsSet("state-dir") {
		cfg.State.Dir = env.GetString("state-dir")
	}
	if env.IsSet("agent-binary") {
		cfg.Agent.Binary = env.GetString("agent-binary")
	}
	if env.IsSet("time-limit") {
		cfg.Engine.TimeLimit = env.GetDuration("time-limit")
	}
	if env.IsSet("ui-port") {
		cfg.UI.Port = env.GetInt("ui-port")
	}
	if env.IsSet("parallel") {
		cfg.Engine.Parallel = env.GetBool("parallel")
	}

	f := cmd.Flags()
	if f.Changed("time-limit") {
		cfg.Engine.TimeLimit = opts.timeLimit
	}
	if f.Changed("state-dir") {
		cfg.State.Dir = opts.stateDir
	}
	if f.Changed("agent-binary") {
		cfg.Agent.Binary = opts.agentBinary
	}
	if f.Changed("parallel") {
		cfg.Engine.Parallel = opts.parallel
	}
	if f.Changed("ui") {
		cfg.UI.Enabled = opts.ui
	}
	if f.Changed("ui-port") {
		cfg.UI.Port = opts.uiPort
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveGoal(args []string, workdir string) (engine.Goal, error) {
	statement := strings.TrimSpace(opts.goal)
	if statement == "" && len(args) > 0 {
		statement = strings.TrimSpace(strings.Join(args, " "))
	}
	if statement == "" && opts.resume == "" {
		return engine.Goal{}, fmt.Errorf("nothing to do: give a goal or --resume")
	}

	goalContext, err := readContextArg(opts.contextArg)
	if err != nil {
		return engine.Goal{}, err
	}

	return engine.Goal{
		Statement: statement,
		SubGoals:  opts.subGoals,
		Workdir:   workdir,
		Context:   goalContext,
		Resume:    opts.resume,
	}, nil
}

func readContextArg(arg string) (string, error) {
	if !strings.HasPrefix(arg, "@") {
		return arg, nil
	}
	data, err := os.ReadFile(strings.TrimPrefix(arg, "@"))
	if err != nil {
		return "", fmt.Errorf("reading context file: %w", err)
	}
	return string(data), nil
}

// ── run paths ──

// control hands the operator's stop request to whichever engine is
// currently running; a stop before attach reaches the engine the moment
// it attaches.
type control struct {
	mu      sync.Mutex
	eng     *engine.Engine
	stopped bool
	reason  string
}

func (c *control) attach(e *engine.Engine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eng = e
	if c.stopped {
		e.Stop(c.reason)
	}
}

func (c *control) stop(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.reason = reason
	if c.eng != nil {
		c.eng.Stop(reason)
	}
}

func (c *control) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func watchSignals(ctl *control) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("Shutdown signal received", "signal", sig)
		ctl.stop("operator requested shutdown")
		<-sigCh
		slog.Warn("Second signal, exiting immediately")
		os.Exit(130)
	}()
}

func singleRun(cfg *config.Config, goal engine.Goal, factory agent.Factory, bus *events.Bus, ctl *control) (*events.CompletePayload, error) {
	eng := engine.New(cfg, goal, factory, bus)
	ctl.attach(eng)
	return eng.Run(context.Background())
}

// retryLoop runs whole attempts until one completes or the budget runs
// out. Attempts after the first resume whatever the previous one left
// resumable; a failed attempt starts fresh because its session is
// terminal.
func retryLoop(cfg *config.Config, goal engine.Goal, factory agent.Factory, bus *events.Bus, ctl *control) (*events.CompletePayload, error) {
	max := opts.maxRetries
	if max < 1 {
		max = 1
	}
	pub := events.NewPublisher(bus, uuid.New().String())
	pub.RetryLoopStarted(max)

	var report *events.CompletePayload
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= max; attempt++ {
		if ctl.isStopped() {
			break
		}
		attempts = attempt
		pub.AttemptStarting(attempt, max)

		eng := engine.New(cfg, goal, factory, bus)
		ctl.attach(eng)
		r, err := eng.Run(context.Background())
		if err != nil {
			lastErr = err
			pub.AttemptCompleted(attempt, max, "fatal_error")
			slog.Error("Attempt failed", "attempt", attempt, "error", err)
		} else {
			report = r
			lastErr = nil
			pub.AttemptCompleted(attempt, max, r.Status)
			if r.Status == engine.StatusCompleted {
				break
			}
		}
		goal.Resume = "latest"
	}

	status := "exhausted"
	switch {
	case report != nil && report.Status == engine.StatusCompleted:
		status = engine.StatusCompleted
	case ctl.isStopped() && report != nil:
		status = report.Status
	case ctl.isStopped():
		status = engine.StatusAborted
	}
	pub.RetryLoopCompleted(attempts, max, status)

	if report == nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("stopped before the first attempt started")
	}
	return report, nil
}

// ── auxiliary commands ──

func listSessions(cfg *config.Config, workdir string) error {
	store := session.New(cfg.State, workdir)
	sessions, err := store.ListSessions()
	if err != nil {
		return err
	}

	if opts.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions stored.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSTATUS\tUPDATED\tSTEPS\tGOAL")
	for _, s := range sessions {
		steps := "-"
		if s.Plan != nil {
			done, total := s.Plan.Progress()
			steps = fmt.Sprintf("%d/%d", done, total)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.Status, s.UpdatedAt.Format("2006-01-02 15:04"), steps, truncate(s.Goal, 60))
	}
	return w.Flush()
}

func startDashboard(cfg *config.Config, workdir string, bus *events.Bus) *api.Server {
	// The dashboard reads session records from disk, so it gets its own
	// store over the same state dir as the engine's.
	srv := api.NewServer(cfg.UI, session.New(cfg.State, workdir), bus)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// The run outlives a dead dashboard.
			slog.Error("Dashboard server failed", "error", err)
		}
	}()
	return srv
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

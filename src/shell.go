package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ryansname/powertree/src/powertree"
	"github.com/ryansname/powertree/src/snapshot"
)

// readlineWriter wraps output so it does not clobber the readline prompt
type readlineWriter struct {
	rl  *readline.Instance
	dst io.Writer
}

func (w *readlineWriter) Write(p []byte) (n int, err error) {
	if w.rl != nil {
		w.rl.Clean()
	}
	n, err = w.dst.Write(p)
	if w.rl != nil {
		w.rl.Refresh()
	}
	return n, err
}

// Global readline writers for log output and command output
var (
	rlWriter    = &readlineWriter{dst: os.Stderr}
	rlOutWriter = &readlineWriter{dst: os.Stdout}
)

// ShellState holds the model being explored and the selected use case
type ShellState struct {
	cfg     Config
	model   *powertree.Model
	eval    *powertree.Evaluation
	useCase string
	out     io.Writer
}

// NewShellState creates a shell over an already evaluated model
func NewShellState(cfg Config, m *powertree.Model, ev *powertree.Evaluation, useCase string, out io.Writer) *ShellState {
	return &ShellState{
		cfg:     cfg,
		model:   m,
		eval:    ev,
		useCase: useCase,
		out:     out,
	}
}

// result returns the selected use case's propagation result, or nil
func (s *ShellState) result() *powertree.Result {
	if s.eval == nil {
		return nil
	}
	return s.eval.Results[s.useCase]
}

// Reload re-reads the model file and re-evaluates every use case
func (s *ShellState) Reload(ctx context.Context) error {
	m, err := snapshot.Load(s.cfg.ModelPath)
	if err != nil {
		return err
	}
	ev, err := powertree.EvaluateAll(ctx, m, s.cfg.Workers)
	if err != nil {
		return err
	}

	s.model = m
	s.eval = ev
	if _, ok := m.UseCases[s.useCase]; !ok {
		s.useCase, _ = selectUseCase(m, "")
	}
	for _, issue := range ev.Issues() {
		log.Println(issue)
	}
	log.Printf("Reloaded %s: %d use cases, %d profiles", s.cfg.ModelPath, len(ev.Results), len(ev.Estimates))
	return nil
}

func (s *ShellState) listUseCases() {
	for _, name := range s.model.UseCaseNames() {
		marker := " "
		if name == s.useCase {
			marker = "*"
		}
		res := s.eval.Results[name]
		fmt.Fprintf(s.out, "%s %s: %.3f mW, %.3f mA\n", marker, name, res.TotalPowerMW, res.RailCurrentMA())
	}
}

// handleShellCommand processes a shell command
func handleShellCommand(ctx context.Context, cmd string, s *ShellState) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return
	}

	switch parts[0] {
	case "usecases":
		s.listUseCases()

	case "use":
		if len(parts) < 2 {
			log.Println("Usage: use <use case>")
			return
		}
		name := strings.Join(parts[1:], " ")
		if _, ok := s.model.UseCases[name]; !ok {
			log.Printf("Unknown use case: %s", name)
			return
		}
		s.useCase = name
		log.Printf("Using %s", name)

	case "tree":
		if res := s.result(); res != nil {
			writeTree(s.out, res)
		}

	case "breakdown":
		res := s.result()
		if res == nil {
			return
		}
		opts := powertree.DecomposeOptions{SplitEfficiencyLoss: s.cfg.Losses}
		if len(parts) > 1 && parts[1] == "losses" {
			opts.SplitEfficiencyLoss = true
		}
		writeBreakdown(s.out, res, opts, s.cfg.OthersShare)

	case "life":
		writeLife(s.out, s.model, s.eval)

	case "validate":
		issues := powertree.Validate(s.model)
		if len(issues) == 0 {
			fmt.Fprintln(s.out, "No issues")
			return
		}
		writeIssues(s.out, issues)

	case "reload":
		if err := s.Reload(ctx); err != nil {
			log.Printf("Error: %v", err)
		}

	case "sankey":
		if len(parts) < 2 {
			log.Println("Usage: sankey <path>")
			return
		}
		res := s.result()
		if res == nil {
			return
		}
		files, err := writeSankeyFiles(parts[1], res, s.cfg.Device+"_"+s.useCase)
		if err != nil {
			log.Printf("Error: %v", err)
			return
		}
		log.Printf("Wrote %s", strings.Join(files, ", "))

	case "help":
		fmt.Fprintln(s.out, "Commands:")
		fmt.Fprintln(s.out, "  usecases                - List use cases with total power (* = selected)")
		fmt.Fprintln(s.out, "  use <use case>          - Select a use case")
		fmt.Fprintln(s.out, "  tree                    - Show the power tree of the selected use case")
		fmt.Fprintln(s.out, "  breakdown [losses]      - Battery rail breakdown, optionally with conversion losses")
		fmt.Fprintln(s.out, "  life                    - Battery life per usage profile")
		fmt.Fprintln(s.out, "  validate                - Check the model for problems")
		fmt.Fprintln(s.out, "  reload                  - Re-read the model file")
		fmt.Fprintln(s.out, "  sankey <path>           - Write the sankey card for the selected use case")
		fmt.Fprintln(s.out, "  help                    - Show this help")

	default:
		log.Printf("Unknown command: %s (try 'help')", parts[0])
	}
}

// readlineLoop runs the readline loop, sending commands to the channel
func readlineLoop(
	ctx context.Context,
	cancel context.CancelFunc,
	rl *readline.Instance,
	commandChan chan<- string,
) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			cancel() // Ctrl+C or Ctrl+D, shutdown the app
			return
		}
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line != "" {
			commandChan <- line
		}
	}
}

// getHistoryFilePath returns the path for the shell history file
func getHistoryFilePath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "" // No history if we can't find home
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	powertreeCache := filepath.Join(cacheDir, "powertree")
	_ = os.MkdirAll(powertreeCache, 0750)
	return filepath.Join(powertreeCache, "shell_history")
}

// shellWorker provides an interactive shell over the evaluated model
func shellWorker(ctx context.Context, cancel context.CancelFunc, state *ShellState) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "powertree> ",
		HistoryFile: getHistoryFilePath(),
	})
	if err != nil {
		log.Printf("Shell: readline init failed: %v", err)
		return
	}
	defer func() {
		_ = rl.Close()
		rlWriter.rl = nil
		rlOutWriter.rl = nil
	}()

	// Redirect log and command output through readline-aware writers
	rlWriter.rl = rl
	rlOutWriter.rl = rl
	log.SetOutput(rlWriter)
	state.out = rlOutWriter

	log.Println("Shell started (type 'help' for commands)")

	commandChan := make(chan string, 10)
	go readlineLoop(ctx, cancel, rl, commandChan)

	for {
		select {
		case cmd := <-commandChan:
			handleShellCommand(ctx, cmd, state)
		case <-ctx.Done():
			log.Println("Shell stopped")
			return
		}
	}
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/tessellate-ai/weave"
)

// CLI configuration
type Config struct {
	GraphFile      string
	Inputs         map[string]any
	LogsDir        string
	CheckpointsDir string
	Timeout        time.Duration
	ValidateOnly   bool
	Verbose        bool
	JSON           bool
}

func main() {
	config := parseFlags()

	if config.GraphFile == "" {
		color.Red("Error: workflow graph file is required")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(config.GraphFile); os.IsNotExist(err) {
		color.Red("Error: workflow graph file '%s' not found", config.GraphFile)
		os.Exit(1)
	}

	logger := setupLogger(config.Verbose)

	color.Blue("Loading workflow graph from: %s", config.GraphFile)
	graph, err := weave.LoadFile(config.GraphFile)
	if err != nil {
		log.Fatalf("Failed to load workflow graph: %v", err)
	}
	color.Cyan("Workflow: %s (%s)", graph.Name(), graph.WorkflowID())

	engine := buildEngine(config, logger)

	result := engine.ValidateGraph(context.Background(), graph)
	showValidation(result, config)
	if config.ValidateOnly {
		if !result.Valid {
			os.Exit(1)
		}
		return
	}
	if !result.Valid {
		color.Red("Graph is invalid, refusing to run")
		os.Exit(1)
	}

	ctx := context.Background()
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
		color.Yellow("Timeout: %v", config.Timeout)
	}

	startTime := time.Now()
	run, err := engine.Start(ctx, graph, config.Inputs)
	if err != nil {
		log.Fatalf("Failed to start run: %v", err)
	}
	color.Green("Run started (ID: %s)...\n", run.ID)

	run, err = engine.Wait(ctx, run.ID)
	if err != nil {
		log.Fatalf("Failed waiting for run: %v", err)
	}
	showResults(run, time.Since(startTime), config)
}

func parseFlags() *Config {
	config := &Config{
		Inputs: make(map[string]any),
	}

	flag.StringVar(&config.GraphFile, "file", "", "Path to the YAML workflow graph file (required)")
	flag.StringVar(&config.GraphFile, "f", "", "Path to the YAML workflow graph file (shorthand)")

	var inputFlags stringSlice
	flag.Var(&inputFlags, "input", "Input parameter in format key=value (can be used multiple times)")
	flag.Var(&inputFlags, "i", "Input parameter in format key=value (shorthand, can be used multiple times)")

	flag.StringVar(&config.LogsDir, "logs", "", "Directory to store run logs (optional)")
	flag.StringVar(&config.CheckpointsDir, "checkpoints", "", "Directory to store checkpoints (optional)")
	flag.DurationVar(&config.Timeout, "timeout", 0, "Run timeout (e.g., 30s, 5m, 1h)")
	flag.DurationVar(&config.Timeout, "t", 0, "Run timeout (shorthand)")
	flag.BoolVar(&config.ValidateOnly, "validate", false, "Validate the graph and exit without running")
	flag.BoolVar(&config.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&config.Verbose, "v", false, "Enable verbose logging (shorthand)")
	flag.BoolVar(&config.JSON, "json", false, "Output results in JSON format")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Weave CLI - Validate and run workflow graphs

Usage: %s [options] -file <graph.yaml>

Examples:
  # Validate a graph without running it
  %s -file graph.yaml -validate

  # Run a graph with inputs
  %s -file graph.yaml -input name=Ada -input count=5

  # Run with checkpointing and a timeout
  %s -file graph.yaml -checkpoints ./checkpoints -timeout 30s

Options:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
		flag.PrintDefaults()

		fmt.Fprintf(os.Stderr, `
Node Roles:
  agent       - Delegate to an agent backend (requires an agent client)
  function    - Run inline risor code or a registered Go function
  condition   - Evaluate an expression and record the boolean result
  human_input - Suspend the run until a human approves or rejects
  custom      - Caller-supplied executor

Input Format:
  Use -input key=value for each input parameter.
  Values are parsed as JSON if possible, otherwise as strings.

`)
	}

	flag.Parse()

	for _, input := range inputFlags {
		parts := strings.SplitN(input, "=", 2)
		if len(parts) != 2 {
			fmt.Fprintf(os.Stderr, "Error: invalid input format '%s'. Use key=value\n", input)
			os.Exit(1)
		}
		key, value := parts[0], parts[1]
		var parsedValue any
		if err := json.Unmarshal([]byte(value), &parsedValue); err != nil {
			parsedValue = value
		}
		config.Inputs[key] = parsedValue
	}
	return config
}

// Custom flag type for handling multiple input values
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelError
	if verbose {
		level = slog.LevelInfo
	}
	return weave.NewLogger(level)
}

func buildEngine(config *Config, logger *slog.Logger) *weave.Engine {
	opts := weave.EngineOptions{Logger: logger}

	if config.CheckpointsDir != "" {
		store, err := weave.NewFileCheckpointStore(config.CheckpointsDir)
		if err != nil {
			log.Fatalf("Failed to create checkpoint store: %v", err)
		}
		opts.CheckpointStore = store
		color.Blue("Checkpoints: %s", config.CheckpointsDir)
	}
	if config.LogsDir != "" {
		runLogger, err := weave.NewFileRunLogger(config.LogsDir)
		if err != nil {
			log.Fatalf("Failed to create run logger: %v", err)
		}
		opts.RunLogger = runLogger
		color.Blue("Run logs: %s", config.LogsDir)
	}
	if config.Verbose {
		opts.Notifier = weave.NewSlogNotifier(logger)
	}
	return weave.NewEngine(opts)
}

func showValidation(result *weave.ValidationResult, config *Config) {
	if config.JSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("Failed to format validation result: %v", err)
		}
		fmt.Println(string(data))
		return
	}
	for _, message := range result.Errors {
		color.Red("error: %s", message)
	}
	for _, message := range result.Warnings {
		color.Yellow("warning: %s", message)
	}
	if result.Valid {
		color.Green("Graph is valid")
	}
	stats := result.Stats
	color.White("Nodes: %d  Edges: %d  Max depth: %d  Avg branching: %.2f",
		stats.NodeCount, stats.EdgeCount, stats.MaxDepth, stats.AvgOutDegree)
}

func showResults(run *weave.Run, duration time.Duration, config *Config) {
	color.White("Run finished in %v", duration)
	color.White("Status: %s", run.Status)

	switch run.Status {
	case weave.RunStatusCompleted:
		color.Green("Run successful!")
	case weave.RunStatusFailed:
		color.Red("Error: %s", run.Error)
	case weave.RunStatusCancelled:
		color.Yellow("Run was cancelled")
	}

	if len(run.Output) > 0 {
		fmt.Printf("\n")
		color.Magenta("Outputs:")
		if config.JSON {
			data, err := json.MarshalIndent(run.Output, "", "  ")
			if err != nil {
				fmt.Printf("Error formatting outputs: %v\n", err)
			} else {
				fmt.Println(string(data))
			}
		} else {
			for key, value := range run.Output {
				if data, err := json.Marshal(value); err == nil {
					fmt.Printf("  %s: %s\n", key, string(data))
				} else {
					fmt.Printf("  %s: %v\n", key, value)
				}
			}
		}
	}

	if run.Status != weave.RunStatusCompleted {
		os.Exit(1)
	}
}

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

	"github.com/flowspring/flowengine"
	"github.com/flowspring/flowengine/handlers"
	"github.com/flowspring/flowengine/script"
	"github.com/flowspring/flowengine/sqlite"
)

// CLI configuration
type Config struct {
	FlowFile  string
	Inputs    map[string]any
	Constants map[string]any
	Database  string
	Timeout   time.Duration
	Verbose   bool
	JSON      bool
	Quiet     bool
}

func main() {
	config := parseFlags()

	if config.FlowFile == "" {
		color.Red("Error: flow file is required")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(config.FlowFile); os.IsNotExist(err) {
		color.Red("Error: flow file '%s' not found", config.FlowFile)
		os.Exit(1)
	}

	logger := setupLogger(config.Verbose)

	color.Blue("Loading flow from: %s", config.FlowFile)
	graph, err := flowengine.LoadFile(config.FlowFile)
	if err != nil {
		log.Fatalf("Failed to load flow: %v", err)
	}
	if graph.Name() != "" {
		color.Cyan("Flow: %s", graph.Name())
	}

	opts := flowengine.EngineOptions{
		Registry: handlers.DefaultRegistry(logger, script.NewRisorCompiler(script.DefaultGlobals())),
		Logger:   logger,
	}
	if !config.Quiet {
		opts.Formatter = &colorFormatter{}
	}

	// Persist to SQLite when a database path is given; otherwise executions
	// live only in memory for the lifetime of the process.
	if config.Database != "" {
		store, err := sqlite.Open(config.Database)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer store.Close()
		opts.ExecutionStore = store
		opts.NodeExecutionStore = store
		opts.CallbackStore = store
		color.Blue("Database: %s", config.Database)
	}

	engine, err := flowengine.NewEngine(opts)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	ctx := context.Background()
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
		color.Yellow("Timeout: %v", config.Timeout)
	}

	startTime := time.Now()
	executionID, err := engine.Execute(ctx, flowengine.ExecuteOptions{
		Graph:     graph,
		Inputs:    config.Inputs,
		Constants: config.Constants,
	})
	duration := time.Since(startTime)

	showExecutionResults(ctx, engine, executionID, err, duration, config)
}

func parseFlags() *Config {
	config := &Config{
		Inputs:    make(map[string]any),
		Constants: make(map[string]any),
	}

	flag.StringVar(&config.FlowFile, "file", "", "Path to the YAML flow definition file (required)")
	flag.StringVar(&config.FlowFile, "f", "", "Path to the YAML flow definition file (shorthand)")

	var inputFlags stringSlice
	flag.Var(&inputFlags, "input", "Input parameter in format key=value (can be used multiple times)")
	flag.Var(&inputFlags, "i", "Input parameter in format key=value (shorthand, can be used multiple times)")

	var constantFlags stringSlice
	flag.Var(&constantFlags, "constant", "Constant in format key=value (can be used multiple times)")

	flag.StringVar(&config.Database, "db", "", "SQLite database path for execution persistence (optional)")
	flag.DurationVar(&config.Timeout, "timeout", 0, "Execution timeout (e.g., 30s, 5m, 1h)")
	flag.DurationVar(&config.Timeout, "t", 0, "Execution timeout (shorthand)")
	flag.BoolVar(&config.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&config.Verbose, "v", false, "Enable verbose logging (shorthand)")
	flag.BoolVar(&config.JSON, "json", false, "Output results in JSON format")
	flag.BoolVar(&config.Quiet, "quiet", false, "Suppress per-node progress output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Flow Engine CLI - Execute YAML-defined flow graphs

Usage: %s [options] -file <flow.yaml>

Examples:
  # Execute a simple flow
  %s -file example.yaml

  # Execute with inputs
  %s -file flow.yaml -input name=John -input count=5

  # Execute with persistence so paused executions survive restarts
  %s -file flow.yaml -db ./executions.db

Options:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
		flag.PrintDefaults()

		fmt.Fprintf(os.Stderr, `
Input Format:
  Use -input key=value for each input parameter.
  Values are parsed as JSON if possible, otherwise as strings.

`)
	}

	flag.Parse()

	parseKeyValues(inputFlags, config.Inputs)
	parseKeyValues(constantFlags, config.Constants)
	return config
}

func parseKeyValues(pairs []string, out map[string]any) {
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			fmt.Fprintf(os.Stderr, "Error: invalid format '%s'. Use key=value\n", pair)
			os.Exit(1)
		}
		key, value := parts[0], parts[1]

		// Try to parse as JSON, fallback to string
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			parsed = value
		}
		out[key] = parsed
	}
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
	return flowengine.NewLogger(level)
}

// colorFormatter prints per-node progress to the terminal.
type colorFormatter struct{}

func (f *colorFormatter) PrintNodeStart(nodeID string, nodeType flowengine.NodeType) {
	color.Cyan("▸ %s (%s)", nodeID, nodeType)
}

func (f *colorFormatter) PrintNodeOutput(nodeID string, content any) {
	if content == nil {
		return
	}
	if data, err := json.Marshal(content); err == nil {
		color.White("  %s → %s", nodeID, truncate(string(data), 200))
	}
}

func (f *colorFormatter) PrintNodeError(nodeID string, err error) {
	color.Red("  %s failed: %v", nodeID, err)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func showExecutionResults(ctx context.Context, engine *flowengine.Engine, executionID string, err error, duration time.Duration, config *Config) {
	color.White("Execution completed in %v", duration)

	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}

	record, loadErr := engine.GetExecution(ctx, executionID)
	if loadErr != nil {
		log.Fatalf("Failed to load execution record: %v", loadErr)
	}

	color.White("Status: %s", record.Status)
	switch record.Status {
	case flowengine.ExecutionStatusCompleted:
		color.Green("Execution successful!")
	case flowengine.ExecutionStatusPaused:
		color.Yellow("Execution paused at node %s; deliver its callback to resume", record.CurrentNodeID)
		if config.Database == "" {
			color.Yellow("Warning: no -db given, the paused execution will not survive this process")
		}
	}

	if record.Output != nil {
		fmt.Printf("\n")
		color.Magenta("Output:")
		if config.JSON {
			data, err := json.MarshalIndent(record.Output, "", "  ")
			if err != nil {
				fmt.Printf("Error formatting output: %v\n", err)
			} else {
				fmt.Println(string(data))
			}
		} else {
			data, _ := json.Marshal(record.Output)
			fmt.Printf("  %s\n", string(data))
		}
	}
}

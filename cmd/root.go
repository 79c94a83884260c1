package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/guspollitzer/workflow-backlog-projection/sim/scenario"
	"github.com/guspollitzer/workflow-backlog-projection/sim/trace"
)

var (
	scenarioPath string // Path to the YAML scenario file
	logLevel     string // Log verbosity level
	oversee      bool   // Also size headcount against downstream consumption
	nowFlag      string // Instant to project from (RFC3339), overriding the scenario
	traceLevel   string // Report verbosity: none or steps
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "workflow-backlog-projection",
	Short: "Projects per-stage backlog of warehouse workflows until the last deadline",
}

// projectCmd estimates the trajectory of a scenario and prints it
var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Project the backlog trajectory of a scenario",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s (valid: none, steps)", traceLevel)
		}
		inputs, err := loadInputs(scenarioPath, nowFlag)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		report, err := project(inputs, oversee)
		if err != nil {
			logrus.Fatalf("projection failed: %v", err)
		}
		report.Write(os.Stdout, trace.TraceLevel(traceLevel))
	},
}

// validateCmd only loads and validates a scenario
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a scenario file without projecting it",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		if _, err := loadInputs(scenarioPath, nowFlag); err != nil {
			logrus.Fatalf("%v", err)
		}
		fmt.Fprintf(os.Stdout, "%s: ok\n", scenarioPath)
	},
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// loadInputs reads, validates and converts a scenario. A non-empty now
// overrides the scenario's own instant.
func loadInputs(path, now string) (*scenario.Inputs, error) {
	if path == "" {
		return nil, fmt.Errorf("--scenario is required")
	}
	var override time.Time
	if now != "" {
		t, err := time.Parse(time.RFC3339, now)
		if err != nil {
			return nil, fmt.Errorf("parsing --now: %w", err)
		}
		override = t
	}
	s, err := scenario.LoadScenario(path)
	if err != nil {
		return nil, err
	}
	inputs, err := s.Build(override)
	if err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return inputs, nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	for _, c := range []*cobra.Command{projectCmd, validateCmd} {
		c.Flags().StringVar(&scenarioPath, "scenario", "", "Path to the YAML scenario file")
		c.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
		c.Flags().StringVar(&nowFlag, "now", "", "Instant to project from (RFC3339); defaults to the scenario's now")
	}
	projectCmd.Flags().BoolVar(&oversee, "oversee", false, "Also size the optimum headcount per stage against downstream consumption")
	projectCmd.Flags().StringVar(&traceLevel, "trace-level", "none", "Report verbosity: none (summary only) or steps (every step of every stage)")

	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(validateCmd)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hupe1980/defimesh/config"
	mysqlstore "github.com/hupe1980/defimesh/store/mysql"
)

// defimeshctl inspects the audit trail a defimeshd instance has written to
// its durable store: executions, decision records and reasoning entries.
func main() {
	var (
		limit       int
		executionID string
	)

	flag.IntVar(&limit, "limit", 20, "Maximum number of records to list")
	flag.StringVar(&executionID, "id", "", "Execution id for the 'execution' command")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), limit, executionID); err != nil {
		log.Fatalf("defimeshctl: %v", err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `defimeshctl inspects the defimesh audit trail.

Usage:
  defimeshctl [flags] <command>

Commands:
  executions   list recent executions
  decisions    list recent decision records
  reasoning    list recent reasoning entries
  execution    print one execution as JSON (requires -id)

Flags:
`)
	flag.PrintDefaults()
}

func run(command string, limit int, executionID string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN must point at the store defimeshd writes to")
	}

	st, err := mysqlstore.New(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open mysql store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch command {
	case "executions":
		return listExecutions(ctx, st, limit)
	case "decisions":
		return listDecisions(ctx, st, limit)
	case "reasoning":
		return listReasoning(ctx, st, limit)
	case "execution":
		if executionID == "" {
			return errors.New("the execution command requires -id")
		}
		return showExecution(ctx, st, executionID)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func listExecutions(ctx context.Context, st *mysqlstore.Store, limit int) error {
	recs, err := st.ListRecentExecutions(ctx, limit)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		iterations := 0
		input := ""
		if rec.State != nil {
			iterations = rec.State.IterationCount
			input = truncate(rec.State.UserInput, 48)
		}
		fmt.Printf("%s  %-9s  iter %2d  %s  %s\n",
			rec.ExecutionID, rec.Status, iterations, rec.UpdatedAt.Format(time.RFC3339), input)
	}
	fmt.Printf("%d execution(s)\n", len(recs))
	return nil
}

func listDecisions(ctx context.Context, st *mysqlstore.Store, limit int) error {
	recs, err := st.ListRecentDecisions(ctx, limit)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		fmt.Printf("%s  %-18s  %-16s  %s\n",
			rec.CreatedAt.Format(time.RFC3339), rec.AgentName, rec.DecisionType, truncate(rec.Reasoning, 80))
	}
	fmt.Printf("%d decision(s)\n", len(recs))
	return nil
}

func listReasoning(ctx context.Context, st *mysqlstore.Store, limit int) error {
	entries, err := st.ListRecentReasoning(ctx, limit)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		fmt.Printf("%s  %-18s  step %2d  %s\n",
			entry.CreatedAt.Format(time.RFC3339), entry.AgentName, entry.StepNumber, truncate(entry.Reasoning, 80))
	}
	fmt.Printf("%d entry(s)\n", len(entries))
	return nil
}

func showExecution(ctx context.Context, st *mysqlstore.Store, executionID string) error {
	rec, err := st.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}

	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

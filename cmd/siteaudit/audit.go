package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/site-auditor/internal/audit"
	"github.com/JakeFAU/site-auditor/internal/orchestrator"
)

// ErrAuditFailed is returned when the one-shot audit ends in the failed
// status. The audit JSON is still printed.
var ErrAuditFailed = errors.New("audit failed")

func newAuditCmd() *cobra.Command {
	var (
		maxPages    int
		singlePage  bool
		screenshots bool
	)
	cmd := &cobra.Command{
		Use:   "audit <url>",
		Short: "Audit one site in-process and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := orchestrator.SubmitRequest{
				URL:               args[0],
				IncludeScreenshot: screenshots,
			}
			if cmd.Flags().Changed("max-pages") {
				req.MaxPages = &maxPages
			}
			if singlePage {
				multi := false
				req.MultiPage = &multi
			}
			return runAudit(cmd, req)
		},
	}
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum pages to crawl (capped by crawler.max_pages_limit)")
	cmd.Flags().BoolVar(&singlePage, "single-page", false, "audit only the given page")
	cmd.Flags().BoolVar(&screenshots, "screenshots", false, "capture a full-page screenshot of each page")
	return cmd
}

func runAudit(cmd *cobra.Command, req orchestrator.SubmitRequest) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, e.cfg, e.logger)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer a.Close()
	go a.Start(ctx)

	submitted, err := a.Orchestrator.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("submit audit: %w", err)
	}
	result, err := a.Orchestrator.Wait(ctx, submitted.ID)
	if err != nil {
		return fmt.Errorf("wait for audit %s: %w", submitted.ID, err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("write audit: %w", err)
	}
	if result.Status == audit.StatusFailed {
		return ErrAuditFailed
	}
	return nil
}

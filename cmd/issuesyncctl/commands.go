package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/issuesync/internal/config"
	"github.com/ericfisherdev/issuesync/internal/domain/model"
)

// syncService is the subset of application.Service the commands call.
type syncService interface {
	Validate(ctx context.Context, settings model.RunSettings, req model.SyncRequest) (*model.RunReport, error)
	Sync(ctx context.Context, settings model.RunSettings, req model.SyncRequest) (*model.RunReport, error)
	ListIssues(ctx context.Context, settings model.RunSettings, q model.ListIssuesQuery) (*model.IssueList, error)
}

func newRootCmd(svc syncService, cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "issuesyncctl",
		Short:        "Reconcile desired GitHub issues and project items",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(validateCmd(svc, cfg))
	rootCmd.AddCommand(syncCmd(svc, cfg))
	rootCmd.AddCommand(listCmd(svc, cfg))

	return rootCmd
}

func validateCmd(svc syncService, cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Report what a sync would do without changing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(args[0], cfg)
			if err != nil {
				return err
			}

			report, err := svc.Validate(cmd.Context(), cfg.RunSettings(), req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}

func syncCmd(svc syncService, cfg *config.Config) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync FILE",
		Short: "Create missing issues and converge labels, project items and status",
		Long: `Reconcile the desired issues in FILE (JSON, or YAML with a .yaml/.yml
extension) against the repository and its project board.

Blank owner, repo and project_title fall back to ISSUESYNC_OWNER,
ISSUESYNC_REPO and ISSUESYNC_PROJECT_TITLE.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(args[0], cfg)
			if err != nil {
				return err
			}
			if dryRun {
				req.DryRun = true
			}

			report, err := svc.Sync(cmd.Context(), cfg.RunSettings(), req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview changes without mutating anything")

	return cmd
}

func listCmd(svc syncService, cfg *config.Config) *cobra.Command {
	var q model.ListIssuesQuery

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of repository issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := svc.ListIssues(cmd.Context(), cfg.RunSettings(), q)
			if err != nil {
				return err
			}
			if list.NotModified {
				return writeJSON(cmd.OutOrStdout(), notModified{NotModified: true, ETag: list.ETag})
			}
			return writeJSON(cmd.OutOrStdout(), list)
		},
	}

	cmd.Flags().StringVar(&q.Owner, "owner", cfg.Owner, "Repository owner")
	cmd.Flags().StringVar(&q.Repo, "repo", cfg.Repo, "Repository name")
	cmd.Flags().StringVar(&q.ProjectTitle, "project", cfg.ProjectTitle, "Project title used for enrichment (empty to skip)")
	cmd.Flags().IntVar(&q.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&q.PerPage, "per-page", model.DefaultPerPage, "Items per page (1-100)")
	cmd.Flags().StringVar(&q.ETag, "etag", "", "Entity tag from a previous listing")

	return cmd
}

type notModified struct {
	NotModified bool   `json:"not_modified"`
	ETag        string `json:"etag"`
}

// readRequest decodes a sync request file and fills blank target fields from
// the configured defaults. Files ending in .yaml or .yml are read as YAML.
func readRequest(path string, cfg *config.Config) (model.SyncRequest, error) {
	var req model.SyncRequest

	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("reading request file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &req)
	default:
		err = json.Unmarshal(data, &req)
	}
	if err != nil {
		return req, fmt.Errorf("parsing request file %s: %w", path, err)
	}

	return req.WithDefaults(cfg.Owner, cfg.Repo, cfg.ProjectTitle), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

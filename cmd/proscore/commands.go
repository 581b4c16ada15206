package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/proscore/internal/config"
	"github.com/ehr/proscore/internal/domain/scoring"
	"github.com/ehr/proscore/internal/platform/db"
	"github.com/ehr/proscore/internal/platform/fhir"
)

// readBundle reads a FHIR bundle from path, or stdin when path is "-".
func readBundle(cmd *cobra.Command, path string) (*fhir.Collection, error) {
	if path == "" {
		return nil, errors.New("--bundle is required")
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return fhir.ParseCollection(data)
}

func writeJSON(w io.Writer, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// cliEngine builds an engine for one-shot commands. Offline engines only see
// definitions shipped in the bundle.
func cliEngine(ctx context.Context, cmd *cobra.Command, offline bool) (*scoring.Engine, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if path, _ := cmd.Flags().GetString("instruments"); path != "" {
		cfg.InstrumentsFile = path
	}
	if all, _ := cmd.Flags().GetBool("all-statuses"); all {
		cfg.CompletedOnly = false
	}
	logger := zerolog.New(cmd.ErrOrStderr()).With().Timestamp().Logger().Level(zerolog.WarnLevel)

	closeFn := func() {}
	var loader scoring.DefinitionLoader
	if !offline {
		b, err := openBackends(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		loader = b.loader
		closeFn = b.Close
	}
	engine, err := newEngine(cfg, loader, logger)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return engine, closeFn, nil
}

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score the questionnaire responses in a bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			bundlePath, _ := cmd.Flags().GetString("bundle")
			ref, _ := cmd.Flags().GetString("questionnaire")
			printTable, _ := cmd.Flags().GetBool("print")
			offline, _ := cmd.Flags().GetBool("offline")

			col, err := readBundle(cmd, bundlePath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			engine, closeFn, err := cliEngine(ctx, cmd, offline)
			if err != nil {
				return err
			}
			defer closeFn()

			if ref == "" {
				if printTable {
					return errors.New("--print requires --questionnaire")
				}
				out, err := engine.SummarizeAll(ctx, col)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			s, err := engine.SummarizeQuestionnaire(ctx, col, ref)
			if err != nil {
				return err
			}
			if s == nil {
				return fmt.Errorf("no definition found for %s", ref)
			}
			if printTable {
				table := scoring.FormatPrintResponseData(s.ResponseData)
				if table == nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "nothing to print")
					return nil
				}
				return writeJSON(cmd.OutOrStdout(), table)
			}
			return writeJSON(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().String("bundle", "", "Path to a FHIR bundle, or - for stdin")
	cmd.Flags().String("questionnaire", "", "Score only this questionnaire reference")
	cmd.Flags().Bool("print", false, "Output the printable question-by-date table")
	cmd.Flags().Bool("offline", false, "Use only definitions contained in the bundle")
	cmd.Flags().Bool("all-statuses", false, "Score responses in every status, not only completed")
	cmd.Flags().String("instruments", "", "Instrument registry YAML (defaults to the built-in one)")
	return cmd
}

func deriveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive single-item responses from host questionnaire responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			bundlePath, _ := cmd.Flags().GetString("bundle")
			linkID, _ := cmd.Flags().GetString("link-id")
			target, _ := cmd.Flags().GetString("target")
			hosts, _ := cmd.Flags().GetStringSlice("host")
			mode, _ := cmd.Flags().GetString("match-mode")

			if linkID == "" {
				return errors.New("--link-id is required")
			}
			if target == "" {
				return errors.New("--target is required")
			}
			matchMode := scoring.MatchMode(mode)
			if matchMode != "" && matchMode != scoring.MatchStrict && matchMode != scoring.MatchFuzzy {
				return fmt.Errorf("--match-mode must be strict or fuzzy, got %q", mode)
			}

			col, err := readBundle(cmd, bundlePath)
			if err != nil {
				return err
			}
			engine, closeFn, err := cliEngine(context.Background(), cmd, true)
			if err != nil {
				return err
			}
			defer closeFn()

			derived := engine.DeriveFromBundle(col, hosts, scoring.DeriveOptions{
				LinkID:                linkID,
				TargetQuestionnaireID: target,
				MatchMode:             matchMode,
			})
			resources := make([]interface{}, len(derived))
			for i, qr := range derived {
				resources[i] = qr
			}
			return writeJSON(cmd.OutOrStdout(), fhir.NewCollectionBundle(resources))
		},
	}
	cmd.Flags().String("bundle", "", "Path to a FHIR bundle, or - for stdin")
	cmd.Flags().String("link-id", "", "linkId of the item to copy out of each host response")
	cmd.Flags().String("target", "", "Questionnaire id of the derived responses")
	cmd.Flags().StringSlice("host", nil, "Host questionnaire references (default: every response)")
	cmd.Flags().String("match-mode", "", "linkId matching: strict or fuzzy")
	cmd.Flags().Bool("all-statuses", false, "Use host responses in every status, not only completed")
	cmd.Flags().String("instruments", "", "Instrument registry YAML (defaults to the built-in one)")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Create the schema and apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, schema, err := migrateConfig(cmd)
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, "", cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
			count, err := db.EnsureSchema(ctx, pool, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, schema, err := migrateConfig(cmd)
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, "", cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, db.EmbeddedMigrations()).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatuses(cmd.OutOrStdout(), schema, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func migrateConfig(cmd *cobra.Command) (*config.Config, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", err
	}
	if cfg.DatabaseURL == "" {
		return nil, "", errors.New("DATABASE_URL is required for migrations")
	}
	schema, _ := cmd.Flags().GetString("schema")
	if schema == "" {
		schema = cfg.DBSchema
	}
	if !db.ValidSchema(schema) {
		return nil, "", fmt.Errorf("invalid schema name: %s", schema)
	}
	return cfg, schema, nil
}

func printStatuses(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func definitionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "definitions",
		Short: "Manage stored questionnaire definitions",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Store every Questionnaire in a bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			bundlePath, _ := cmd.Flags().GetString("bundle")
			col, err := readBundle(cmd, bundlePath)
			if err != nil {
				return err
			}
			if len(col.Questionnaires) == 0 {
				return errors.New("bundle contains no Questionnaire resources")
			}

			ctx := context.Background()
			b, err := storeBackends(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			n, err := b.store.Import(ctx, col.Questionnaires)
			if err != nil {
				return fmt.Errorf("imported %d definition(s) before failing: %w", n, err)
			}
			for _, q := range col.Questionnaires {
				b.invalidate(ctx, q)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d definition(s).\n", n)
			return nil
		},
	}
	importCmd.Flags().String("bundle", "", "Path to a FHIR bundle, or - for stdin")
	cmd.AddCommand(importCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a stored definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			b, err := storeBackends(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			q, err := b.store.LoadQuestionnaire(ctx, fhir.FormatReference("Questionnaire", args[0]))
			if err != nil {
				return err
			}
			if err := b.store.Delete(ctx, args[0]); err != nil {
				return err
			}
			if q != nil {
				b.invalidate(ctx, q)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", args[0])
			return nil
		},
	}
	cmd.AddCommand(deleteCmd)

	return cmd
}

func storeBackends(ctx context.Context) (*backends, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required to manage definitions")
	}
	cfg.FHIRBaseURL = ""
	b, err := openBackends(ctx, cfg, zerolog.Nop())
	if err != nil {
		return nil, err
	}
	return b, nil
}

// invalidate drops cached copies of q under each reference form it can be
// looked up by.
func (b *backends) invalidate(ctx context.Context, q *fhir.Questionnaire) {
	if b.cache == nil || q == nil {
		return
	}
	for _, ref := range definitionRefs(q) {
		_ = b.cache.Invalidate(ctx, ref)
	}
}

func definitionRefs(q *fhir.Questionnaire) []string {
	var refs []string
	for _, r := range []string{fhir.FormatReference("Questionnaire", q.ID), q.ID, q.URL, q.Name} {
		if r != "" {
			refs = append(refs, r)
		}
	}
	return refs
}

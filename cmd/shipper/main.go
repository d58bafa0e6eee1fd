package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hugh/asset-shipper/internal/api/dto"
	"github.com/hugh/asset-shipper/internal/api/validation"
	"github.com/hugh/asset-shipper/internal/app"
	"github.com/hugh/asset-shipper/internal/assets"
	"github.com/hugh/asset-shipper/internal/auth"
	"github.com/hugh/asset-shipper/internal/database"
	"github.com/hugh/asset-shipper/internal/database/models"
	"github.com/hugh/asset-shipper/internal/tasks"
	"github.com/hugh/asset-shipper/pkg/config"
	"github.com/hugh/asset-shipper/pkg/crypto"
)

var (
	version   = "dev"
	logFormat string
	logLevel  string
	logger    *slog.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:           "shipper",
		Short:         "Reconcile mapper output into the asset store",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLogLevel(logLevel)
			if err != nil {
				return err
			}
			opts := &slog.HandlerOptions{Level: level}
			switch logFormat {
			case "json":
				logger = slog.New(slog.NewJSONHandler(os.Stderr, opts).WithAttrs([]slog.Attr{slog.String("service", "asset-shipper")}))
			case "text":
				logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
			default:
				return fmt.Errorf("invalid --log-format %q (use: text, json)", logFormat)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format (text, json)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		reconcileCmd(),
		assetStateCmd(),
		migrateCmd(),
		keygenCmd(),
		sealCmd(),
		tokenCmd(),
		versionCmd(),
	)
	return root
}

func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()
	return config.Load()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// --- reconcile ---

func reconcileCmd() *cobra.Command {
	var (
		tenant  string
		req     dto.ReconcileJobRequest
		enqueue bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile one mapper output prefix",
		Long: "Loads every asset type under --prefix, merges it with the stored documents and writes\n" +
			"the result. With --enqueue the job is handed to a worker instead of run here.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateScope(tenant, req.Validate()); err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			a, err := app.New(ctx, cfg, logger, app.Options{UseRedis: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if enqueue {
				return enqueueRun(ctx, cmd.OutOrStdout(), a, &models.JobRun{
					TenantID:             tenant,
					Kind:                 models.JobKindReconcile,
					Status:               models.JobStatusPending,
					DataSource:           req.DataSource,
					SourceDisplayName:    req.SourceDisplayName,
					ReportingSource:      req.ReportingSource,
					ReportingService:     req.ReportingService,
					ReportingServiceName: req.ReportingServiceName,
					Prefix:               req.Prefix,
					AssetTypes:           req.AssetTypes,
				})
			}

			start := time.Now()
			result, err := a.Shipper.Ship(ctx, assets.Job{
				TenantID:             tenant,
				DataSource:           req.DataSource,
				SourceDisplayName:    req.SourceDisplayName,
				ReportingSource:      req.ReportingSource,
				ReportingService:     req.ReportingService,
				ReportingServiceName: req.ReportingServiceName,
				Prefix:               req.Prefix,
				AssetTypes:           req.AssetTypes,
				ScanTime:             start.UTC(),
			})
			if err != nil {
				return err
			}
			printShipResult(cmd.OutOrStdout(), result, time.Since(start))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&req.DataSource, "source", "", "data source, e.g. aws")
	cmd.Flags().StringVar(&req.SourceDisplayName, "source-display-name", "", "display name of the data source")
	cmd.Flags().StringVar(&req.Prefix, "prefix", "", "object store prefix of the mapper output")
	cmd.Flags().StringSliceVar(&req.AssetTypes, "types", nil, "asset types to ship (default: every type under the prefix)")
	cmd.Flags().StringVar(&req.ReportingSource, "reporting-source", "", "reporting source for opinion runs")
	cmd.Flags().StringVar(&req.ReportingService, "reporting-service", "", "reporting service for opinion runs")
	cmd.Flags().StringVar(&req.ReportingServiceName, "reporting-service-name", "", "display name of the reporting service")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "dispatch to a worker instead of running inline")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("prefix")
	return cmd
}

func printShipResult(w io.Writer, r *assets.ShipResult, elapsed time.Duration) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Asset types:\t%s\n", strings.Join(r.AssetTypes, ", "))
	fmt.Fprintf(tw, "New:\t%d\n", r.NewAssets)
	fmt.Fprintf(tw, "Updated:\t%d\n", r.UpdatedAssets)
	fmt.Fprintf(tw, "Missing:\t%d\n", r.MissingAssets)
	if r.NewPrimaryAssets+r.UpdatedPrimaryAssets+r.DeletedPrimaryAssets+r.DeletedOpinions > 0 {
		fmt.Fprintf(tw, "Primary stubs created:\t%d\n", r.NewPrimaryAssets)
		fmt.Fprintf(tw, "Primary stubs updated:\t%d\n", r.UpdatedPrimaryAssets)
		fmt.Fprintf(tw, "Primary stubs deleted:\t%d\n", r.DeletedPrimaryAssets)
		fmt.Fprintf(tw, "Opinions deleted:\t%d\n", r.DeletedOpinions)
	}
	fmt.Fprintf(tw, "Relation documents:\t%d\n", r.RelationDocuments)
	fmt.Fprintf(tw, "Duration:\t%s\n", elapsed.Round(time.Millisecond))
	_ = tw.Flush()
}

// --- asset-state ---

func assetStateCmd() *cobra.Command {
	var (
		tenant  string
		req     dto.AssetStateJobRequest
		enqueue bool
	)

	cmd := &cobra.Command{
		Use:   "asset-state",
		Short: "Re-evaluate the asset state of every primary document of a data source",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateScope(tenant, req.Validate()); err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			a, err := app.New(ctx, cfg, logger, app.Options{UseRedis: enqueue})
			if err != nil {
				return err
			}
			defer a.Close()

			if enqueue {
				return enqueueRun(ctx, cmd.OutOrStdout(), a, &models.JobRun{
					TenantID:   tenant,
					Kind:       models.JobKindAssetState,
					Status:     models.JobStatusPending,
					DataSource: req.DataSource,
					AssetTypes: req.AssetTypes,
				})
			}

			changed, err := a.States.Evaluate(ctx, tenant, req.DataSource, req.AssetTypes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d asset states changed\n", changed)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&req.DataSource, "source", "", "data source, e.g. aws")
	cmd.Flags().StringSliceVar(&req.AssetTypes, "types", nil, "asset types (default: every registered type)")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "dispatch to a worker instead of running inline")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func validateScope(tenant string, errs map[string]string) error {
	if !validation.IsValidTenantID(tenant) {
		errs["tenant"] = "Invalid tenant id"
	}
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for field, msg := range errs {
		msgs = append(msgs, field+": "+msg)
	}
	sort.Strings(msgs)
	return fmt.Errorf("invalid arguments: %s", strings.Join(msgs, "; "))
}

func enqueueRun(ctx context.Context, w io.Writer, a *app.App, run *models.JobRun) error {
	if a.Queue == nil {
		return errors.New("task queue unavailable: check REDIS_HOST")
	}
	if err := a.DB.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("creating job run: %w", err)
	}
	taskID, err := tasks.EnqueueJobRun(ctx, a.DB, a.Queue, run)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "job %s enqueued as task %s\n", run.ID, taskID)
	return nil
}

// --- migrate ---

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.Connect(&cfg.Database, logger)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			if err := database.AutoMigrate(db); err != nil {
				return fmt.Errorf("migrating: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "database migrated")
			return nil
		},
	}
}

// --- secrets ---

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a key for sealing the secrets bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, recipient, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "SECRETS_KEY=%s\n# public key: %s\n", identity, recipient)
			return nil
		},
	}
}

func sealCmd() *cobra.Command {
	var in, out, key string

	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Seal a dotenv file of secrets into an encrypted bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				key = os.Getenv("SECRETS_KEY")
			}
			if key == "" {
				return errors.New("--key or SECRETS_KEY is required")
			}

			secrets, err := godotenv.Read(in)
			if err != nil {
				return fmt.Errorf("reading %s: %w", in, err)
			}

			enc, err := crypto.NewEncryptor(key)
			if err != nil {
				return err
			}
			sealed, err := enc.SealBundle(secrets)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, sealed, 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sealed %d secrets into %s\n", len(secrets), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "dotenv file with the secrets")
	cmd.Flags().StringVar(&out, "out", "secrets.age", "output bundle path")
	cmd.Flags().StringVar(&key, "key", "", "sealing key (default: $SECRETS_KEY)")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

// --- token ---

func tokenCmd() *cobra.Command {
	var subject, tenant, role string
	var expiry time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token for a pipeline client",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch role {
			case auth.RoleAdmin, auth.RoleOperator, auth.RoleViewer:
			default:
				return fmt.Errorf("invalid --role %q (use: admin, operator, viewer)", role)
			}
			if !validation.IsValidTenantID(tenant) {
				return fmt.Errorf("invalid --tenant %q", tenant)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if expiry <= 0 {
				expiry = cfg.JWT.Expiry()
			}

			token, err := auth.NewJWTService(cfg.JWT.Secret, expiry).GenerateToken(subject, tenant, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "pipeline", "client name recorded in the token")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&role, "role", auth.RoleOperator, "role (admin, operator, viewer)")
	cmd.Flags().DurationVar(&expiry, "expiry", 0, "token lifetime (default: JWT_EXPIRY_HOURS)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

// --- version ---

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "shipper %s\n", version)
		},
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (use: debug, info, warn, error)", s)
	}
}

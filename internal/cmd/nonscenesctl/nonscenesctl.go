// Package nonscenesctl is the admin command line for stored cutscenes.
package nonscenesctl

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nonxedy/nonscenes/internal/cutscene"
	"github.com/nonxedy/nonscenes/internal/motion"
	entrypoint "github.com/nonxedy/nonscenes/internal/platform/cmd"
	apperrors "github.com/nonxedy/nonscenes/internal/platform/errors"
	platformgrpc "github.com/nonxedy/nonscenes/internal/platform/grpc"
	"github.com/nonxedy/nonscenes/internal/platform/timeouts"
	"github.com/nonxedy/nonscenes/internal/storage"
	"github.com/nonxedy/nonscenes/internal/storage/factory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const storageHealthService = "nonscenes.storage"

type cli struct {
	cfg     factory.Config
	verbose bool
	log     *zap.Logger
}

// NewRootCommand builds the command tree. Storage settings come from the
// NONSCENES_* environment and can be overridden with flags.
func NewRootCommand() *cobra.Command {
	c := &cli{log: zap.NewNop()}
	envErr := entrypoint.ParseConfig(&c.cfg)

	root := &cobra.Command{
		Use:           entrypoint.ServiceNonscenesctl,
		Short:         "Inspect and manage stored cutscenes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return envErr
			}
			if !c.verbose {
				return nil
			}
			config := zap.NewDevelopmentConfig()
			logger, err := config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.log = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = c.log.Sync()
		},
	}
	root.PersistentFlags().StringVar(&c.cfg.Type, "storage", c.cfg.Type, "Storage backend")
	root.PersistentFlags().StringVar(&c.cfg.DataDir, "data-dir", c.cfg.DataDir, "Directory for embedded databases")
	root.PersistentFlags().StringVar(&c.cfg.LegacyDir, "legacy-dir", c.cfg.LegacyDir, "Directory of legacy YAML files")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(c.listCommand())
	root.AddCommand(c.showCommand())
	root.AddCommand(c.deleteCommand())
	root.AddCommand(c.migrateCommand())
	root.AddCommand(c.healthCommand())
	return root
}

// Execute runs the command tree with args.
func Execute(ctx context.Context, args []string, out io.Writer) error {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceNonscenesctl, func(ctx context.Context) error {
		return root.ExecuteContext(ctx)
	})
}

func (c *cli) options() storage.Options {
	return storage.Options{Logger: c.log}
}

// open builds and initializes the store of type t.
func (c *cli) open(ctx context.Context, t factory.Type) (storage.Store, func(), error) {
	s, err := factory.OpenType(c.cfg, t, c.options())
	if err != nil {
		return nil, nil, err
	}
	initCtx, cancel := context.WithTimeout(ctx, timeouts.StorageInit)
	defer cancel()
	if err := s.Initialize(initCtx); err != nil {
		return nil, nil, fmt.Errorf("initialize %s store: %w", t, err)
	}
	closeFn := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			c.log.Warn("shutdown store", zap.String("type", string(t)), zap.Error(err))
		}
	}
	return s, closeFn, nil
}

func (c *cli) openPrimary(ctx context.Context) (storage.Store, func(), error) {
	t, err := factory.ParseType(c.cfg.Type)
	if err != nil {
		return nil, nil, err
	}
	return c.open(ctx, t)
}

func (c *cli) loadSorted(ctx context.Context, s storage.Store) ([]cutscene.Cutscene, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(all, func(a, b cutscene.Cutscene) int {
		return strings.Compare(a.Key(), b.Key())
	})
	return all, nil
}

func (c *cli) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored cutscenes with their frame counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := c.openPrimary(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			all, err := c.loadSorted(cmd.Context(), s)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tFRAMES\tLENGTH")
			frames := 0
			for _, cs := range all {
				fmt.Fprintf(w, "%s\t%s\t%s m\n", cs.Name(), humanize.Comma(int64(cs.Len())), humanize.CommafWithDigits(pathLength(cs), 1))
				frames += cs.Len()
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s cutscenes, %s frames\n", humanize.Comma(int64(len(all))), humanize.Comma(int64(frames)))
			return nil
		},
	}
}

func (c *cli) showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print every frame of a cutscene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, done, err := c.openPrimary(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			all, err := s.LoadAll(cmd.Context())
			if err != nil {
				return err
			}
			key := cutscene.Key(args[0])
			i := slices.IndexFunc(all, func(cs cutscene.Cutscene) bool { return cs.Key() == key })
			if i < 0 {
				return notFound(args[0])
			}
			cs := all[i]

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s frames\n", cs.Name(), humanize.Comma(int64(cs.Len())))
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tWORLD\tX\tY\tZ\tYAW\tPITCH")
			for n, p := range cs.Frames() {
				fmt.Fprintf(w, "%d\t%s\t%.2f\t%.2f\t%.2f\t%.1f\t%.1f\n", n+1, p.World, p.X, p.Y, p.Z, p.Yaw, p.Pitch)
			}
			return w.Flush()
		},
	}
}

func (c *cli) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a cutscene from storage and legacy files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := args[0]
			primary, donePrimary, err := c.openPrimary(ctx)
			if err != nil {
				return err
			}
			defer donePrimary()
			legacy, doneLegacy, err := c.open(ctx, factory.TypeLegacy)
			if err != nil {
				return err
			}
			defer doneLegacy()

			found := false
			for _, s := range []storage.Store{primary, legacy} {
				ok, err := s.Exists(ctx, name)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				found = true
				if err := s.Delete(ctx, name); err != nil {
					return err
				}
			}
			if !found {
				return notFound(name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", name)
			return nil
		},
	}
}

func (c *cli) migrateCommand() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy every cutscene from one backend to another",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if to == "" {
				to = c.cfg.Type
			}
			src, err := factory.ParseType(from)
			if err != nil {
				return err
			}
			dst, err := factory.ParseType(to)
			if err != nil {
				return err
			}
			if src == dst {
				return apperrors.New(apperrors.CodeInvalidArgument, "source and destination are the same backend")
			}

			source, doneSource, err := c.open(ctx, src)
			if err != nil {
				return err
			}
			defer doneSource()
			dest, doneDest, err := c.open(ctx, dst)
			if err != nil {
				return err
			}
			defer doneDest()

			all, err := c.loadSorted(ctx, source)
			if err != nil {
				return err
			}
			started := time.Now()
			copied := 0
			var failed []string
			for _, cs := range all {
				if err := dest.Save(ctx, cs); err != nil {
					c.log.Error("migrate cutscene", zap.String("name", cs.Name()), zap.Error(err))
					failed = append(failed, cs.Name())
					continue
				}
				copied++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s of %s cutscenes from %s to %s in %s\n",
				humanize.Comma(int64(copied)), humanize.Comma(int64(len(all))), src, dst,
				time.Since(started).Round(time.Millisecond))
			if len(failed) > 0 {
				return apperrors.WithMetadata(apperrors.CodeStorageTransaction,
					"some cutscenes could not be migrated",
					map[string]string{"failed": strings.Join(failed, ",")})
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", string(factory.TypeLegacy), "Source backend")
	cmd.Flags().StringVar(&to, "to", "", "Destination backend (default: --storage)")
	return cmd
}

func (c *cli) healthCommand() *cobra.Command {
	var addr string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query a running daemon's health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			for _, service := range []string{"", storageHealthService} {
				status, err := platformgrpc.Check(ctx, addr, service, timeout)
				if err != nil {
					return err
				}
				label := service
				if label == "" {
					label = "overall"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", label, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8095", "Daemon health address")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "Per-check timeout")
	return cmd
}

func pathLength(cs cutscene.Cutscene) float64 {
	total := 0.0
	frames := cs.Frames()
	for i := 1; i < len(frames); i++ {
		total += motion.Distance(frames[i-1], frames[i])
	}
	return total
}

func notFound(name string) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound, "cutscene not found", map[string]string{"name": name})
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sweep/internal/config"
	"sweep/internal/db"
	"sweep/internal/events"
	"sweep/internal/experiment"
	"sweep/internal/migrate"
	"sweep/internal/repo"
	"sweep/internal/server"
	"sweep/internal/trial"
)

var rootCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Sweep CLI",
	Long: `Sweep runs hyperparameter searches over hierarchical spaces.
Core concepts:
- Workspace: your .sweep directory holding the result database; the space
  and search settings live in sweep.yml next to it.
- Experiment: one named search over one space, minimize or maximize.
- Space: parameters with constant, discrete, continuous or sequence domains,
  nested into scopes (dotted paths) and optionally gated on earlier values.
- Trial: one sampled assignment; report it complete with an objective or
  failed with a reason. Failed trials never feed the model or the optimum.
- Strategies: 'random' replays a seeded stream; 'model' biases draws toward
  the best completed quantile once enough history exists.
- Event log: diary of trial lifecycle changes, view with 'sweep log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SWEEP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(suggestCmd())
	rootCmd.AddCommand(completeCmd())
	rootCmd.AddCommand(failCmd())
	rootCmd.AddCommand(optimumCmd())
	rootCmd.AddCommand(trialsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter sweep.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(key)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "default", "experiment key")
	return cmd
}

func suggestCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Generate pending trials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be >= 1")
			}
			return withExperiment(cmd.Context(), func(ctx context.Context, e *experiment.Experiment) error {
				var out []trial.Trial
				for i := 0; i < count; i++ {
					t, err := e.Generate(ctx)
					if err != nil {
						return err
					}
					out = append(out, t)
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				for _, t := range out {
					values, _ := json.Marshal(t.Values)
					fmt.Printf("%s  %s\n", t.ID, values)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of trials to generate")
	return cmd
}

func completeCmd() *cobra.Command {
	var objective float64
	cmd := &cobra.Command{
		Use:   "complete <trial-id>",
		Short: "Record a trial objective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("objective") {
				return fmt.Errorf("--objective required")
			}
			return withExperiment(cmd.Context(), func(ctx context.Context, e *experiment.Experiment) error {
				if err := e.Complete(ctx, args[0], objective); err != nil {
					return err
				}
				t, err := e.Store.GetTrial(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrValue(t)
			})
		},
	}
	cmd.Flags().Float64Var(&objective, "objective", 0, "objective value")
	return cmd
}

func failCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "fail <trial-id>",
		Short: "Mark a trial failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExperiment(cmd.Context(), func(ctx context.Context, e *experiment.Experiment) error {
				if err := e.Fail(ctx, args[0], reason); err != nil {
					return err
				}
				t, err := e.Store.GetTrial(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrValue(t)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "failure reason")
	return cmd
}

func optimumCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimum",
		Short: "Show the best complete trial",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExperiment(cmd.Context(), func(ctx context.Context, e *experiment.Experiment) error {
				t, err := e.Optimum(ctx)
				if err != nil {
					return err
				}
				return printJSONOrValue(t)
			})
		},
	}
	return cmd
}

func trialsCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "trials",
		Short: "List trials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExperiment(cmd.Context(), func(ctx context.Context, e *experiment.Experiment) error {
				var states []trial.State
				if state != "" {
					states = append(states, trial.State(state))
				}
				items, err := e.Trials(ctx, states...)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "State", "Objective", "Created", "Completed"})
				for _, t := range items {
					objective := ""
					if t.Objective != nil {
						objective = fmt.Sprintf("%g", *t.Objective)
					}
					tw.AppendRow(table.Row{t.ID, t.State, objective, t.CreatedAt, t.CompletedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "filter by state (pending, complete, failed)")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			conn, err := db.Open(workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			w := events.Writer{DB: conn}
			items, err := w.Tail(cmd.Context(), cfg.Experiment.Key, limit)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			for _, e := range items {
				fmt.Printf("%s  %-16s %s %s\n", e.TS, e.Type, e.TrialID, e.Payload)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max events")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExperiment(cmd.Context(), func(ctx context.Context, e *experiment.Experiment) error {
				authCfg := server.AuthConfig{JWTSecret: os.Getenv("SWEEP_JWT_SECRET")}
				handler, err := server.New(server.Config{Experiment: e, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Sweep API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func withExperiment(ctx context.Context, fn func(context.Context, *experiment.Experiment) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	scope, err := cfg.Scope()
	if err != nil {
		return err
	}
	conn, err := db.Open(workspace)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	e, err := experiment.New(ctx, repo.New(conn), scope, experiment.Config{
		Key:        cfg.Experiment.Key,
		Direction:  cfg.Experiment.Direction,
		Strategy:   cfg.Search.Strategy,
		Seed:       cfg.Experiment.Seed,
		Quantile:   cfg.Search.Quantile,
		MinHistory: *cfg.Search.MinHistory,
	})
	if err != nil {
		return err
	}
	return fn(ctx, e)
}

func printJSONOrValue(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

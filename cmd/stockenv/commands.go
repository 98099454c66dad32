package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"stockenv/internal/app"
	"stockenv/internal/config"
	"stockenv/internal/logger"
	"stockenv/internal/market"
	"stockenv/internal/runner"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newRunCmd(c *cli) *cobra.Command {
	var (
		episodes int
		parallel int
		policy   string
		seed     uint64
		render   string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run policy episodes against the environment and report the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg
			flags := cmd.Flags()
			if flags.Changed("episodes") {
				cfg.Runner.Episodes = episodes
			}
			if flags.Changed("parallel") {
				cfg.Runner.Parallel = parallel
			}
			if flags.Changed("policy") {
				cfg.Runner.Policy = policy
			}
			if flags.Changed("seed") {
				cfg.Env.Seed = seed
			}
			if flags.Changed("render") {
				cfg.Render.Mode = render
			}

			ctx, cancel := signalContext()
			defer cancel()
			a, err := app.NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if !asJSON {
				a.Summary.Print(cmd.ErrOrStderr())
			}

			summaries, agg, err := a.RunEpisodes(ctx)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(map[string]any{"episodes": summaries, "aggregate": agg}); encErr != nil {
					return encErr
				}
			} else {
				printSummaries(cmd, summaries, agg)
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&episodes, "episodes", "n", 1, "number of episodes")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 1, "episodes run at once")
	cmd.Flags().StringVar(&policy, "policy", "random", "policy: hold, random, buy_and_hold")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed of the first episode")
	cmd.Flags().StringVar(&render, "render", "none", "render mode: none, file, live")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func printSummaries(cmd *cobra.Command, summaries []runner.EpisodeSummary, agg runner.Aggregate) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EPISODE\tPOLICY\tSEED\tSTEPS\tREWARD\tNET WORTH\tPROFIT\tTRADES\tELAPSED")
	for _, s := range summaries {
		if s.ID == "" {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%d\t%s\n",
			s.ID, s.Policy, s.Seed, s.Steps, s.TotalReward, s.FinalNetWorth, s.Profit, len(s.Trades), s.Elapsed)
	}
	_ = tw.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "\nepisodes=%d mean_reward=%.2f mean_profit=%.2f best=%.2f worst=%.2f bankruptcies=%d\n",
		agg.Episodes, agg.MeanReward, agg.MeanProfit, agg.BestProfit, agg.WorstProfit, agg.Bankruptcies)
}

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the environment over HTTP for an external training loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			ctx, cancel := signalContext()
			defer cancel()
			a, err := app.NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			a.Summary.Print(cmd.ErrOrStderr())
			return a.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func newFetchCmd(c *cli) *cobra.Command {
	var symbol, interval, start, end string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download Binance futures klines into the local candle store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg
			dc := cfg.Data
			if symbol != "" {
				dc.Symbol = symbol
			}
			if interval != "" {
				dc.Interval = interval
			}
			if start != "" {
				dc.Start = start
			}
			if end != "" {
				dc.End = end
			}
			from, to, err := dc.Range()
			if err != nil {
				return err
			}
			if from == 0 {
				return fmt.Errorf("fetch needs --start (or data.start)")
			}
			if to == 0 {
				to = time.Now().UnixMilli()
			}

			store, err := market.NewStore(dc.StoreDir)
			if err != nil {
				return err
			}
			defer store.Close()
			src := market.NewBinanceSource(cfg.Market.RESTBaseURL, cfg.Market.Timeout())

			ctx, cancel := signalContext()
			defer cancel()
			series := market.NewSeries(dc.Symbol, dc.Interval)
			n, err := market.Download(ctx, src, store, series, from, to)
			if err != nil {
				return err
			}
			cov, err := store.Coverage(ctx, series)
			if err != nil {
				return err
			}
			logger.Infof("[fetch] %s 写入 %d 根 K 线，库内共 %d 根 (%s .. %s)，缺口 %d",
				series, n, cov.Rows, time.UnixMilli(cov.First).UTC().Format(time.RFC3339),
				time.UnixMilli(cov.Last).UTC().Format(time.RFC3339), cov.Missing)
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol (overrides data.symbol)")
	cmd.Flags().StringVar(&interval, "interval", "", "kline interval (overrides data.interval)")
	cmd.Flags().StringVar(&start, "start", "", "start time, RFC3339 or YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "end time, RFC3339 or YYYY-MM-DD (default now)")
	return cmd
}

func newFeaturesCmd(c *cli) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Compute indicator features from stored candles and write them as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			dc := c.cfg.Data
			candles, err := app.LoadCandles(cmd.Context(), dc)
			if err != nil {
				return err
			}
			frame, err := market.BuildFeatures(candles, dc.FeatureSettings())
			if err != nil {
				return err
			}
			columns := append([]string{market.ColCloseTime}, market.FeatureColumns...)
			if out == "" || out == "-" {
				return market.WriteCSV(cmd.OutOrStdout(), frame, columns...)
			}
			if dir := filepath.Dir(out); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := market.WriteCSV(f, frame, columns...); err != nil {
				_ = f.Close()
				return err
			}
			logger.Infof("[features] 写入 %s: %d 行", out, frame.Len())
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output CSV path (default stdout)")
	return cmd
}

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(c.cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and check it",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s ok\n", config.ResolvePath(c.cfgPath))
			return nil
		},
	})
	return cmd
}

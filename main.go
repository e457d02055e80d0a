package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"pricewatch/internal/aggregator"
	"pricewatch/internal/bazaar"
	"pricewatch/internal/coin"
	"pricewatch/internal/config"
	"pricewatch/internal/coordinator"
	"pricewatch/internal/fetcher"
	"pricewatch/internal/gw2"
	"pricewatch/internal/history"
	"pricewatch/internal/metrics"
	"pricewatch/internal/ratelimit"
	"pricewatch/internal/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const (
	boardItems  = "items"
	boardBazaar = "bazaar"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	sortFlag := &cli.StringFlag{
		Name:  "sort",
		Usage: "order rows by metric: asc or desc (defaults to the configured order)",
	}

	return &cli.App{
		Name:      "pricewatch",
		Usage:     "rank in-game market listings by price or profit",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				EnvVars: []string{"PRICEWATCH_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  boardItems,
				Usage: "fetch the configured trading post items once and print them",
				Flags: []cli.Flag{sortFlag},
				Action: func(c *cli.Context) error {
					return printBoard(c, boardItems)
				},
			},
			{
				Name:  boardBazaar,
				Usage: "fetch one bazaar snapshot and print every product",
				Flags: []cli.Flag{sortFlag},
				Action: func(c *cli.Context) error {
					return printBoard(c, boardBazaar)
				},
			},
			{
				Name:   "serve",
				Usage:  "serve result sets over HTTP",
				Action: serve,
			},
		},
	}
}

// printBoard runs one refresh of board and writes it as a table.
func printBoard(c *cli.Context, board string) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := cfg.Logger()
	logger.SetOutput(c.App.ErrWriter)
	cfg.ApplyRateLimits(ratelimit.GetLimiter())

	var b *server.Board
	for _, candidate := range buildBoards(cfg, logger, nil) {
		if candidate.Aggregator.Board() == board {
			b = &candidate
			break
		}
	}
	if b == nil {
		return fmt.Errorf("board %q is not enabled", board)
	}

	dir := b.Sort
	if s := c.String("sort"); s != "" {
		if dir, err = aggregator.ParseDirection(s); err != nil {
			return err
		}
	}

	rs, err := b.Aggregator.Refresh(c.Context, dir)
	if err != nil {
		return err
	}
	if rs.Failed() > 0 {
		logger.Warnf("%d of %d identifiers could not be fetched", rs.Failed(), rs.Attempted)
	}
	return renderTable(c.App.Writer, rs)
}

func serve(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := cfg.Logger()
	cfg.ApplyRateLimits(ratelimit.GetLimiter())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(reg)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(c.Context).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
	}

	srv := server.New(buildBoards(cfg, logger, recorder), server.Options{
		Addr:            cfg.Server.Addr,
		RefreshInterval: cfg.Server.RefreshInterval,
		Cache:           redisClient,
		CacheTTL:        cfg.Redis.TTL,
		Gatherer:        reg,
		Logger:          logger,
	})

	if err := srv.Run(c.Context); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// buildBoards wires the enabled boards from cfg. Config has been validated,
// so parse errors fall back to defaults.
func buildBoards(cfg *config.Config, logger logrus.FieldLogger, recorder *metrics.Recorder) []server.Board {
	clientOpts := fetcher.ClientOptions{
		Timeout:    cfg.Timeout,
		RetryCount: cfg.RetryCount,
		Logger:     logger,
	}
	coord := coordinator.New(cfg.Concurrency)

	var boards []server.Board

	if len(cfg.GW2.ItemIDs) > 0 {
		format, _ := coin.ParseFormat(cfg.GW2.PriceFormat)
		metric, _ := gw2.ParseMetric(cfg.GW2.Metric)
		sort, _ := aggregator.ParseDirection(cfg.GW2.Sort)

		opts := gw2.ItemOptions{
			Format:             format,
			Metric:             metric,
			IncludeDescription: cfg.GW2.IncludeDescription,
			Logger:             logger,
		}
		if cfg.History.Enabled {
			opts.Averager = history.NewAverager(
				history.NewClient(cfg.History.BaseURL, clientOpts),
				cfg.History.Window,
				logger,
			)
		}

		client := gw2.NewClient(cfg.GW2.BaseURL, clientOpts)
		items := make(aggregator.StaticSource, 0, len(cfg.GW2.ItemIDs))
		for _, id := range cfg.GW2.ItemIDs {
			items = append(items, gw2.NewItemFetcher(id, client, opts))
		}

		boards = append(boards, server.Board{
			Aggregator: aggregator.New(aggregator.Params{
				Board:       boardItems,
				Source:      items,
				Coordinator: coord,
				Logger:      logger,
				Metrics:     recorder,
			}),
			Sort: sort,
		})
	}

	if cfg.Bazaar.Enabled {
		sort, _ := aggregator.ParseDirection(cfg.Bazaar.Sort)
		source := bazaar.NewSource(bazaar.NewClient(cfg.Bazaar.BaseURL, clientOpts), cfg.Bazaar.ExcludePrefixes)

		boards = append(boards, server.Board{
			Aggregator: aggregator.New(aggregator.Params{
				Board:       boardBazaar,
				Source:      source,
				Coordinator: coord,
				Logger:      logger,
				Metrics:     recorder,
			}),
			Sort: sort,
		})
	}

	return boards
}

// renderTable writes rs as tab-aligned columns followed by the refresh time.
// Extra columns are taken from the first row.
func renderTable(w io.Writer, rs *aggregator.ResultSet) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	header := []string{"#", "ID", "Name", "Price"}
	if len(rs.Rows) > 0 {
		for _, col := range rs.Rows[0].Columns {
			header = append(header, col.Name)
		}
	}
	writeRow(tw, header)

	for i, row := range rs.Rows {
		cells := []string{strconv.Itoa(i + 1), row.ID, row.Name, row.Price}
		for _, col := range row.Columns {
			cells = append(cells, col.Value)
		}
		writeRow(tw, cells)
	}

	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, rs.LastUpdated())
	return err
}

func writeRow(w io.Writer, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, cell)
	}
	fmt.Fprintln(w)
}

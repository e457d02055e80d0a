// Package server exposes published result sets over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"pricewatch/internal/aggregator"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	boardsBasePath  = "/api/v1/boards"
	shutdownTimeout = 10 * time.Second
)

var (
	errUnknownBoard   = errors.New("unknown board")
	errNotPublished   = errors.New("no result set published yet")
	errRefreshRunning = errors.New("refresh in progress and nothing published yet")
)

// Board is an aggregator together with the order it is served in when the
// request does not choose one.
type Board struct {
	Aggregator *aggregator.Aggregator
	Sort       aggregator.Direction
}

// Options configures a Server
type Options struct {
	Addr string
	// RefreshInterval > 0 refreshes every board in the background.
	RefreshInterval time.Duration
	// Cache enables the response cache when set.
	Cache    *redis.Client
	CacheTTL time.Duration
	// Gatherer backs /metrics, defaulting to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	Logger   logrus.FieldLogger
}

// Server serves the boards' result sets over gin and optionally refreshes them on a timer.
type Server struct {
	router *gin.Engine
	boards map[string]Board
	names  []string
	opts   Options
}

// New builds the router for boards. Board names come from each aggregator.
func New(boards []Board, opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(opts.Logger))

	s := &Server{
		router: router,
		boards: make(map[string]Board, len(boards)),
		opts:   opts,
	}
	for _, b := range boards {
		if b.Sort == "" {
			b.Sort = aggregator.Descending
		}
		name := b.Aggregator.Board()
		s.boards[name] = b
		s.names = append(s.names, name)
	}
	slices.Sort(s.names)

	s.registerRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))

	boards := s.router.Group(boardsBasePath)
	if s.opts.Cache != nil {
		boards.Use(s.cacheMiddleware())
	}
	{
		boards.GET("", s.listBoards)
		boards.GET("/:board", s.refreshBoard)
		boards.GET("/:board/latest", s.latestBoard)
	}
}

// Run serves until ctx is done, then shuts down gracefully. With a positive
// RefreshInterval every board is also refreshed on a ticker.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.opts.Addr,
		Handler: s,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.opts.Logger.Infof("HTTP server listening on %s", s.opts.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.opts.Logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if s.opts.RefreshInterval > 0 {
		g.Go(func() error {
			s.refreshLoop(ctx)
			return nil
		})
	}

	return g.Wait()
}

func (s *Server) refreshLoop(ctx context.Context) {
	s.RefreshAll(ctx)

	ticker := time.NewTicker(s.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RefreshAll(ctx)
		}
	}
}

// RefreshAll refreshes every board in its default order. Boards already
// refreshing are skipped.
func (s *Server) RefreshAll(ctx context.Context) {
	for _, name := range s.names {
		b := s.boards[name]
		if _, err := b.Aggregator.Refresh(ctx, b.Sort); err != nil {
			s.opts.Logger.WithField("board", name).WithError(err).Debug("background refresh skipped")
		}
	}
}

type boardSummary struct {
	Board         string               `json:"board"`
	Phase         string               `json:"phase"`
	Sort          aggregator.Direction `json:"sort"`
	Rows          int                  `json:"rows"`
	LastRefreshed *time.Time           `json:"last_refreshed,omitempty"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listBoards(c *gin.Context) {
	out := make([]boardSummary, 0, len(s.names))
	for _, name := range s.names {
		b := s.boards[name]
		summary := boardSummary{
			Board: name,
			Phase: b.Aggregator.Phase().String(),
			Sort:  b.Sort,
		}
		if rs := b.Aggregator.Latest(); rs != nil {
			at := rs.RefreshedAt
			summary.Rows = len(rs.Rows)
			summary.LastRefreshed = &at
		}
		out = append(out, summary)
	}
	c.JSON(http.StatusOK, out)
}

// refreshBoard runs a cycle and returns its result set. When another cycle
// is already running the latest published set is served instead.
func (s *Server) refreshBoard(c *gin.Context) {
	b, ok := s.board(c)
	if !ok {
		return
	}

	dir := b.Sort
	if q := c.Query("sort"); q != "" {
		parsed, err := aggregator.ParseDirection(q)
		if err != nil {
			writeError(c, http.StatusBadRequest, err)
			return
		}
		dir = parsed
	}

	rs, err := b.Aggregator.Refresh(c.Request.Context(), dir)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, rs)
	case errors.Is(err, aggregator.ErrRefreshInProgress):
		if latest := b.Aggregator.Latest(); latest != nil {
			c.JSON(http.StatusOK, latest)
			return
		}
		writeError(c, http.StatusServiceUnavailable, errRefreshRunning)
	default:
		writeError(c, http.StatusServiceUnavailable, err)
	}
}

func (s *Server) latestBoard(c *gin.Context) {
	b, ok := s.board(c)
	if !ok {
		return
	}
	rs := b.Aggregator.Latest()
	if rs == nil {
		writeError(c, http.StatusNotFound, errNotPublished)
		return
	}
	c.JSON(http.StatusOK, rs)
}

func (s *Server) board(c *gin.Context) (Board, bool) {
	b, ok := s.boards[c.Param("board")]
	if !ok {
		writeError(c, http.StatusNotFound, errUnknownBoard)
	}
	return b, ok
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("request served")
	}
}

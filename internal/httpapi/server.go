// Package httpapi serves a small read-only API over the persisted run
// history and emitted posts. The pipeline itself runs from the CLI;
// the server exists for dashboards and spot checks.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/whittle/internal/db"
	"horse.fit/whittle/internal/globaltime"
)

const (
	defaultHistoryLimit      = 25
	maxHistoryLimit          = 200
	defaultOpportunityLimit  = 50
	maxOpportunityLimit      = 500
	defaultOpportunityWindow = 7 * 24 * time.Hour
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	keywords *db.KeywordStore
	seen     *db.SeenStore
	history  *db.HistoryStore
	logger   zerolog.Logger
	opts     Options
}

type executionItem struct {
	ID             int64     `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	DurationMS     int64     `json:"duration_ms"`
	PostsSeen      int       `json:"posts_seen"`
	PostsScored    int       `json:"posts_scored"`
	PostsEmitted   int       `json:"posts_emitted"`
	DeadlineForced bool      `json:"deadline_forced"`
	Errors         []string  `json:"errors"`
}

type opportunityItem struct {
	Source      string     `json:"source"`
	NativeID    string     `json:"native_id"`
	Title       string     `json:"title"`
	Author      string     `json:"author,omitempty"`
	URL         string     `json:"url,omitempty"`
	Score       int        `json:"score"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	ProcessedAt time.Time  `json:"processed_at"`
}

type keywordItem struct {
	Keyword  string `json:"keyword"`
	Category string `json:"category"`
	Weight   int    `json:"weight"`
}

func NewServer(keywords *db.KeywordStore, seen *db.SeenStore, history *db.HistoryStore, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		keywords: keywords,
		seen:     seen,
		history:  history,
		logger:   logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.seen == nil || s.history == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.buildEcho()

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("whittle web server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("whittle web server stopped")
	return nil
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/history", s.handleHistory)
	api.GET("/opportunities", s.handleOpportunities)
	api.GET("/keywords", s.handleKeywords)

	return e
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "whittle",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleHistory(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultHistoryLimit, 1, maxHistoryLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	records, err := s.history.ListExecutions(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("query execution history failed")
		return internalError(c, "Failed to load execution history")
	}

	items := make([]executionItem, 0, len(records))
	for _, record := range records {
		items = append(items, toExecutionItem(record))
	}
	return success(c, map[string]any{
		"items": items,
		"limit": limit,
	})
}

func (s *Server) handleOpportunities(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultOpportunityLimit, 1, maxOpportunityLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}
	minScore, err := parseOptionalInt(c.QueryParam("min_score"), 0)
	if err != nil {
		return failValidation(c, map[string]string{"min_score": err.Error()})
	}
	window, err := parseOptionalDuration(c.QueryParam("window"), defaultOpportunityWindow)
	if err != nil {
		return failValidation(c, map[string]string{"window": err.Error()})
	}

	since := globaltime.UTC().Add(-window)
	rows, err := s.seen.RecentEmitted(c.Request().Context(), since, minScore, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("query recent opportunities failed")
		return internalError(c, "Failed to load opportunities")
	}

	items := make([]opportunityItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, opportunityItem{
			Source:      row.Source,
			NativeID:    row.NativeID,
			Title:       row.Title,
			Author:      row.Author,
			URL:         row.URL,
			Score:       row.Score,
			CreatedAt:   row.PostCreatedAt,
			ProcessedAt: row.ProcessedAt,
		})
	}
	return success(c, map[string]any{
		"items":     items,
		"limit":     limit,
		"min_score": minScore,
		"since":     since,
	})
}

func (s *Server) handleKeywords(c echo.Context) error {
	keywords, err := s.keywords.List(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query keywords failed")
		return internalError(c, "Failed to load keywords")
	}

	items := make([]keywordItem, 0, len(keywords))
	for _, kw := range keywords {
		items = append(items, keywordItem{
			Keyword:  kw.Keyword,
			Category: kw.Category,
			Weight:   kw.Weight,
		})
	}
	return success(c, map[string]any{
		"items": items,
	})
}

func toExecutionItem(record db.ExecutionRecord) executionItem {
	item := executionItem{
		ID:             record.ExecutionRecordID,
		StartedAt:      record.StartedAt,
		FinishedAt:     record.FinishedAt,
		DurationMS:     record.FinishedAt.Sub(record.StartedAt).Milliseconds(),
		PostsSeen:      record.PostsSeen,
		PostsScored:    record.PostsScored,
		PostsEmitted:   record.PostsEmitted,
		DeadlineForced: record.DeadlineForced,
		Errors:         []string{},
	}
	if len(record.Errors) > 0 {
		var errs []string
		if err := json.Unmarshal(record.Errors, &errs); err == nil {
			item.Errors = errs
		}
	}
	return item
}

func parsePositiveInt(raw string, fallback, min, max int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < min || value > max {
		return 0, fmt.Errorf("must be between %d and %d", min, max)
	}
	return value, nil
}

func parseOptionalInt(raw string, fallback int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	return value, nil
}

func parseOptionalDuration(raw string, fallback time.Duration) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be a duration such as 24h")
	}
	if value <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return value, nil
}

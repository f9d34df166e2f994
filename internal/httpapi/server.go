package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"quilt.news/quilt/internal/db"
	"quilt.news/quilt/internal/dedup"
	"quilt.news/quilt/internal/globaltime"
	"quilt.news/quilt/internal/ingest"
	payloadschema "quilt.news/quilt/schema"
)

const (
	defaultPageSize = 25
	maxPageSize     = 200
	maxPayloadBytes = 1 << 20
)

var errRecordNotFound = errors.New("record not found")

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	pool   *db.Pool
	ingest *ingest.Service
	logger zerolog.Logger
	opts   Options
}

type recordListFilter struct {
	Source   string
	Status   string
	Query    string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

type recordListItem struct {
	RecordUUID         string     `json:"record_uuid"`
	RecordID           string     `json:"record_id"`
	Title              string     `json:"title"`
	Link               string     `json:"link"`
	CanonicalLink      string     `json:"canonical_link"`
	PublishedAt        *time.Time `json:"published_at,omitempty"`
	Source             string     `json:"source"`
	Status             string     `json:"status"`
	SourceCount        int        `json:"source_count"`
	AlternativeCount   int        `json:"alternative_count"`
	LastDuplicateFound *time.Time `json:"last_duplicate_found,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type recordDetailItem struct {
	recordListItem
	Description      string   `json:"description,omitempty"`
	Tags             []string `json:"tags"`
	AlternativeLinks []string `json:"alternative_links"`
	Sources          []string `json:"sources"`
}

type mergedMemberItem struct {
	RecordUUID  string     `json:"record_uuid"`
	RecordID    string     `json:"record_id"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Source      string     `json:"source"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	MergedAt    time.Time  `json:"merged_at"`
}

type dedupEventItem struct {
	Decision        string    `json:"decision"`
	MatchedRecordID *string   `json:"matched_record_id,omitempty"`
	TitleSimilarity *float64  `json:"title_similarity,omitempty"`
	ContentJaccard  *float64  `json:"content_jaccard,omitempty"`
	ContentCosine   *float64  `json:"content_cosine,omitempty"`
	URLExactMatch   bool      `json:"url_exact_match"`
	TimeProximate   bool      `json:"time_proximate"`
	Reasons         []string  `json:"reasons"`
	CreatedAt       time.Time `json:"created_at"`
}

type recordDetail struct {
	Record recordDetailItem   `json:"record"`
	Merged []mergedMemberItem `json:"merged"`
	Events []dedupEventItem   `json:"events"`
}

type statsResponse struct {
	Arrivals         int64            `json:"arrivals"`
	Records          int64            `json:"records"`
	CanonicalRecords int64            `json:"canonical_records"`
	MergedRecords    int64            `json:"merged_records"`
	PendingRecords   int64            `json:"pending_records"`
	DedupEvents      int64            `json:"dedup_events"`
	LastArrivalAt    *time.Time       `json:"last_arrival_at,omitempty"`
	LastRecordUpdate *time.Time       `json:"last_record_update,omitempty"`
	DedupDecisions   map[string]int64 `json:"dedup_decisions"`
}

func NewServer(pool *db.Pool, svc *ingest.Service, logger zerolog.Logger, opts Options) *Server {
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
		pool:   pool,
		ingest: svc,
		logger: logger,
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
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.BodyLimit(strconv.Itoa(maxPayloadBytes)))
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
	api.GET("/stats", s.handleStats)
	api.POST("/records", s.handleIngestRecord)
	api.POST("/records/check", s.handleCheckRecord)
	api.GET("/records", s.handleRecords)
	api.GET("/records/:record_uuid", s.handleRecordDetail)

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

	s.logger.Info().Str("addr", addr).Msg("quilt api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("quilt api server stopped")
	return nil
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
	if err := s.pool.Ping(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("health ping failed")
		return internalError(c, "Database unreachable")
	}
	return success(c, map[string]any{
		"service": "quilt",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleIngestRecord(c echo.Context) error {
	item, err := s.readPayload(c)
	if err != nil {
		return failPayload(c, err.Error())
	}

	result, err := s.ingest.IngestOne(c.Request().Context(), item)
	if err != nil {
		s.logger.Error().Err(err).Msg("ingest request failed")
		return internalError(c, "Failed to ingest record")
	}

	if result.Decision == ingest.DecisionNew {
		return created(c, result)
	}
	return success(c, result)
}

func (s *Server) handleCheckRecord(c echo.Context) error {
	item, err := s.readPayload(c)
	if err != nil {
		return failPayload(c, err.Error())
	}

	matches, err := s.ingest.Check(c.Request().Context(), item)
	if err != nil {
		s.logger.Error().Err(err).Msg("check request failed")
		return internalError(c, "Failed to check record")
	}

	return success(c, map[string]any{
		"matches": matches,
		"report":  dedup.BuildReport(matches),
	})
}

func (s *Server) readPayload(c echo.Context) (*payloadschema.NewsItem, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return payloadschema.ValidateNewsItemPayload(body)
}

func (s *Server) handleRecords(c echo.Context) error {
	page, err := parsePositiveInt(c.QueryParam("page"), 1, 1, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"page": err.Error()})
	}

	pageSize, err := parsePositiveInt(c.QueryParam("page_size"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"page_size": err.Error()})
	}

	from, err := parseTimeFilter(c.QueryParam("from"), false)
	if err != nil {
		return failValidation(c, map[string]string{"from": "must be RFC3339 or YYYY-MM-DD"})
	}
	to, err := parseTimeFilter(c.QueryParam("to"), true)
	if err != nil {
		return failValidation(c, map[string]string{"to": "must be RFC3339 or YYYY-MM-DD"})
	}
	if from != nil && to != nil && from.After(*to) {
		return failValidation(c, map[string]string{"time_range": "from must be <= to"})
	}

	status := strings.TrimSpace(strings.ToLower(c.QueryParam("status")))
	switch status {
	case "", "pending", "canonical", "merged":
	default:
		return failValidation(c, map[string]string{"status": "must be pending, canonical or merged"})
	}

	filter := recordListFilter{
		Source:   strings.TrimSpace(strings.ToLower(c.QueryParam("source"))),
		Status:   status,
		Query:    strings.TrimSpace(c.QueryParam("q")),
		From:     from,
		To:       to,
		Page:     page,
		PageSize: pageSize,
	}

	total, rows, err := s.queryRecordList(c.Request().Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("query records failed")
		return internalError(c, "Failed to load records")
	}

	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	return success(c, map[string]any{
		"items": rows,
		"pagination": map[string]any{
			"page":        page,
			"page_size":   pageSize,
			"total_items": total,
			"total_pages": totalPages,
		},
		"filters": map[string]any{
			"source": filter.Source,
			"status": filter.Status,
			"q":      filter.Query,
			"from":   filter.From,
			"to":     filter.To,
		},
	})
}

func (s *Server) handleRecordDetail(c echo.Context) error {
	recordUUID := strings.TrimSpace(c.Param("record_uuid"))
	if recordUUID == "" {
		return failValidation(c, map[string]string{"record_uuid": "is required"})
	}

	detail, err := s.queryRecordDetail(c.Request().Context(), recordUUID)
	if err != nil {
		if errors.Is(err, errRecordNotFound) {
			return failNotFound(c, "Record not found")
		}
		s.logger.Error().Err(err).Str("record_uuid", recordUUID).Msg("query record detail failed")
		return internalError(c, "Failed to load record detail")
	}

	return success(c, detail)
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.queryStats(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

func parseTimeFilter(raw string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		utc := ts.UTC()
		return &utc, nil
	}

	if day, err := time.Parse("2006-01-02", trimmed); err == nil {
		utc := day.UTC()
		if endOfDay {
			utc = utc.Add((24 * time.Hour) - time.Nanosecond)
		}
		return &utc, nil
	}

	return nil, fmt.Errorf("invalid time format")
}

package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"hydra/internal/database"
	apperrors "hydra/internal/errors"
	"hydra/internal/httputil"
	"hydra/internal/metrics"
	"hydra/internal/models"
	"hydra/internal/tracing"
	"hydra/pkg/wire"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// IngressService captures requests into the store and serves paginated
// reads over them.
type IngressService struct {
	db     *database.Database
	logger *logrus.Logger
	cfg    models.IngressConfig
}

func NewIngressService(db *database.Database, logger *logrus.Logger, cfg models.IngressConfig) *IngressService {
	return &IngressService{db: db, logger: logger, cfg: cfg}
}

// Capture records the full incoming request under a fresh ULID and returns
// the stored log. The body read is capped at the configured maximum.
func (s *IngressService) Capture(ctx context.Context, r *http.Request) (*models.IngressLog, error) {
	ctx, span := tracing.WithSpan(ctx, "ingress_capture")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	query := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}

	headers := make(map[string]string)
	for key, values := range r.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	log := &models.IngressLog{
		EventID:    ulid.Make().String(),
		CapturedAt: time.Now().UTC(),
		RemoteAddr: httputil.ClientIP(r),
		Method:     r.Method,
		Host:       r.Host,
		Path:       r.URL.Path,
		Query:      query,
		Headers:    headers,
		Body:       body,
	}

	tracing.AddSpanAttributes(ctx,
		attribute.String("ingress.event_id", log.EventID),
		attribute.Int("ingress.body_bytes", len(body)),
	)

	if err := s.db.InsertIngressLog(ctx, log); err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	metrics.IncrementCounter("ingress_captured_total", nil, "Captured ingress requests")

	s.logger.WithFields(logrus.Fields{
		"event_id": log.EventID,
		"method":   log.Method,
		"path":     log.Path,
	}).Debug("Captured ingress request")

	return log, nil
}

// Fetch serves one page of captured requests for the wire protocol. The
// limit is clamped to the configured bounds.
func (s *IngressService) Fetch(ctx context.Context, req *wire.FetchIngressLogsRequest) (*wire.FetchIngressLogsResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	direction := req.Direction
	if direction == "" {
		direction = wire.Descending
	}
	if !direction.Valid() {
		return nil, apperrors.New(apperrors.CodeInvalidInput, fmt.Sprintf("unknown fetch direction %q", direction))
	}

	result, err := s.db.FetchIngressLogs(ctx, database.FetchQuery{
		Cursor:    req.Cursor,
		Limit:     limit,
		Direction: direction,
	})
	if err != nil {
		return nil, err
	}

	items := make([]wire.IngressLogEntry, 0, len(result.Items))
	for _, log := range result.Items {
		items = append(items, wire.IngressLogEntry{
			Key: log.EventID,
			Log: wire.IngressLog{
				EventID:    log.EventID,
				CapturedAt: log.CapturedAt,
				RemoteAddr: log.RemoteAddr,
				Method:     log.Method,
				Host:       log.Host,
				Path:       log.Path,
				Query:      log.Query,
				Headers:    log.Headers,
				Body:       log.Body,
			},
		})
	}

	return &wire.FetchIngressLogsResponse{
		Items:       items,
		Limit:       limit,
		MoreRecords: result.MoreRecords,
	}, nil
}

// EncodeCursor renders a storage key as a URL-safe pagination token.
func EncodeCursor(key string) string {
	return base64.URLEncoding.EncodeToString([]byte(key))
}

// DecodeCursor reverses EncodeCursor.
func DecodeCursor(token string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInvalidCursor, "invalid cursor")
	}
	return string(raw), nil
}

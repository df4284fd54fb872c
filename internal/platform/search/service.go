// Package search exposes expression trees as a service: depth limits,
// canonicalization, caching, SQL explanation and execution, and the HTTP
// routes on top of them.
package search

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ehr/fhirsearch/internal/platform/search/sqlgen"
	"github.com/ehr/fhirsearch/pkg/expression"
)

const instrumentationName = "github.com/ehr/fhirsearch/internal/platform/search"

// ErrSearchUnavailable is returned by Search when no database is configured.
var ErrSearchUnavailable = errors.New("search backend not configured")

// Config holds the limits applied to incoming trees.
type Config struct {
	MaxExpressionDepth int
	MaxChainDepth      int
	CacheSize          int
	DefaultPageSize    int
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		MaxExpressionDepth: 64,
		MaxChainDepth:      3,
		CacheSize:          1024,
		DefaultPageSize:    20,
	}
}

// Prepared is a validated, flattened tree with its canonical forms.
type Prepared struct {
	Expr       expression.Expression `json:"-"`
	Canonical  string                `json:"canonical"`
	Flattened  string                `json:"flattened"`
	CacheKey   string                `json:"cacheKey"`
	Depth      int                   `json:"depth"`
	ChainDepth int                   `json:"chainDepth"`

	// source is the submitted tree; cache hits must be structurally equal to it.
	source expression.Expression
}

// Explanation describes how a tree would run against a resource table.
type Explanation struct {
	ResourceType string        `json:"resourceType"`
	Canonical    string        `json:"canonical"`
	Flattened    string        `json:"flattened"`
	CacheKey     string        `json:"cacheKey"`
	Where        string        `json:"where"`
	Args         []interface{} `json:"args"`
	CountSQL     string        `json:"countSql"`
	DataSQL      string        `json:"dataSql"`
}

// Result is one page of matches for a search.
type Result struct {
	ResourceType string   `json:"resourceType"`
	CacheKey     string   `json:"cacheKey"`
	IDs          []string `json:"ids"`
	Total        int      `json:"total"`
	Limit        int      `json:"limit"`
	Offset       int      `json:"offset"`
}

// Searcher runs a translated query. *sqlgen.Repository implements it.
type Searcher interface {
	Search(ctx context.Context, q *sqlgen.Query, limit, offset int) (*sqlgen.Page, error)
}

// Service prepares, explains and runs expression trees.
type Service struct {
	cfg        Config
	translator *sqlgen.Translator
	searcher   Searcher
	cache      *lru.Cache[string, *Prepared]
	logger     zerolog.Logger
	tracer     trace.Tracer
	metrics    *instruments
}

type instruments struct {
	prepared metric.Int64Counter
	failures metric.Int64Counter
}

func newInstruments() *instruments {
	meter := otel.Meter(instrumentationName)
	in := &instruments{}
	var err error
	in.prepared, err = meter.Int64Counter(
		"search.expression.prepared",
		metric.WithDescription("Expressions prepared, by cache outcome"),
	)
	if err != nil {
		otel.Handle(err)
	}
	in.failures, err = meter.Int64Counter(
		"search.expression.failures",
		metric.WithDescription("Failed expression operations, by error kind"),
	)
	if err != nil {
		otel.Handle(err)
	}
	return in
}

// NewService creates a Service. A nil searcher leaves the service in
// explain-only mode.
func NewService(cfg Config, translator *sqlgen.Translator, searcher Searcher, logger zerolog.Logger) (*Service, error) {
	if cfg.MaxExpressionDepth < 1 || cfg.MaxExpressionDepth > expression.MaxDepth {
		return nil, fmt.Errorf("max expression depth must be between 1 and %d, got %d", expression.MaxDepth, cfg.MaxExpressionDepth)
	}
	if cfg.CacheSize < 1 {
		return nil, fmt.Errorf("cache size must be positive, got %d", cfg.CacheSize)
	}
	cache, err := lru.New[string, *Prepared](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create expression cache: %w", err)
	}
	return &Service{
		cfg:        cfg,
		translator: translator,
		searcher:   searcher,
		cache:      cache,
		logger:     logger.With().Str("component", "search").Logger(),
		tracer:     otel.Tracer(instrumentationName),
		metrics:    newInstruments(),
	}, nil
}

// Config returns the limits the service enforces.
func (s *Service) Config() Config { return s.cfg }

// CanSearch reports whether a database backend is configured.
func (s *Service) CanSearch() bool { return s.searcher != nil }

// Prepare checks the depth limits, flattens e and computes its cache key.
// Prepared trees are cached by the key of the submitted tree.
func (s *Service) Prepare(ctx context.Context, e expression.Expression) (*Prepared, error) {
	ctx, span := s.tracer.Start(ctx, "search.Prepare")
	defer span.End()

	p, hit, err := s.prepare(e)
	if err != nil {
		s.fail(ctx, span, err, "prepare expression")
		return nil, err
	}
	if s.metrics.prepared != nil {
		s.metrics.prepared.Add(ctx, 1, metric.WithAttributes(attribute.Bool("cache.hit", hit)))
	}
	span.SetAttributes(
		attribute.Bool("expression.cache_hit", hit),
		attribute.String("expression.cache_key", p.CacheKey),
		attribute.Int("expression.depth", p.Depth),
		attribute.Int("expression.chain_depth", p.ChainDepth),
	)
	return p, nil
}

func (s *Service) prepare(e expression.Expression) (*Prepared, bool, error) {
	if e == nil {
		return nil, false, &expression.UnhandledVariantError{Type: "<nil>"}
	}
	if err := expression.CheckDepth(e, s.cfg.MaxExpressionDepth); err != nil {
		return nil, false, err
	}

	key, err := expression.CacheKey(e)
	if err != nil {
		return nil, false, err
	}
	if p, ok := s.cache.Get(key); ok {
		if expression.Equal(p.source, e) {
			return p, true, nil
		}
		s.logger.Warn().Str("cache_key", key).Msg("expression cache key collision")
	}

	chainDepth, err := expression.ChainDepth(e)
	if err != nil {
		return nil, false, err
	}
	if s.cfg.MaxChainDepth > 0 && chainDepth > s.cfg.MaxChainDepth {
		return nil, false, fmt.Errorf("chained search: %w",
			&expression.DepthExceededError{Depth: chainDepth, Limit: s.cfg.MaxChainDepth})
	}

	canonical, err := expression.Format(e)
	if err != nil {
		return nil, false, err
	}
	flat, err := expression.Flatten(e)
	if err != nil {
		return nil, false, err
	}
	flattened, err := expression.Format(flat)
	if err != nil {
		return nil, false, err
	}

	p := &Prepared{
		Expr:       flat,
		Canonical:  canonical,
		Flattened:  flattened,
		CacheKey:   key,
		Depth:      e.Depth(),
		ChainDepth: chainDepth,
		source:     e,
	}
	s.cache.Add(key, p)
	return p, false, nil
}

// Explain prepares e and renders the SQL it would run against resourceType.
func (s *Service) Explain(ctx context.Context, resourceType string, e expression.Expression) (*Explanation, error) {
	ctx, span := s.tracer.Start(ctx, "search.Explain",
		trace.WithAttributes(attribute.String("fhir.resource_type", resourceType)))
	defer span.End()

	p, q, err := s.plan(ctx, span, resourceType, e)
	if err != nil {
		return nil, err
	}
	limit := s.cfg.DefaultPageSize
	return &Explanation{
		ResourceType: resourceType,
		Canonical:    p.Canonical,
		Flattened:    p.Flattened,
		CacheKey:     p.CacheKey,
		Where:        q.Where(),
		Args:         q.Args(),
		CountSQL:     q.CountSQL(),
		DataSQL:      q.DataSQL(limit, 0),
	}, nil
}

// Search runs e against resourceType's table and returns one page of ids.
func (s *Service) Search(ctx context.Context, resourceType string, e expression.Expression, limit, offset int) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "search.Search",
		trace.WithAttributes(attribute.String("fhir.resource_type", resourceType)))
	defer span.End()

	if s.searcher == nil {
		s.fail(ctx, span, ErrSearchUnavailable, "search expression")
		return nil, ErrSearchUnavailable
	}
	if limit <= 0 {
		limit = s.cfg.DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	p, q, err := s.plan(ctx, span, resourceType, e)
	if err != nil {
		return nil, err
	}
	page, err := s.searcher.Search(ctx, q, limit, offset)
	if err != nil {
		err = fmt.Errorf("search %s: %w", resourceType, err)
		s.fail(ctx, span, err, "search expression")
		return nil, err
	}
	span.SetAttributes(attribute.Int("search.total", page.Total))

	return &Result{
		ResourceType: resourceType,
		CacheKey:     p.CacheKey,
		IDs:          page.IDs,
		Total:        page.Total,
		Limit:        limit,
		Offset:       offset,
	}, nil
}

// plan prepares e and translates it for resourceType. Prepare failures are
// logged by Prepare; the caller's span only records them.
func (s *Service) plan(ctx context.Context, span trace.Span, resourceType string, e expression.Expression) (*Prepared, *sqlgen.Query, error) {
	p, err := s.Prepare(ctx, e)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}
	q, err := s.translator.Translate(resourceType, p.Expr)
	if err != nil {
		s.fail(ctx, span, err, "translate expression")
		return nil, nil, err
	}
	return p, q, nil
}

// errorKind names the class of err for logs and metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, expression.ErrUnhandledVariant):
		return "unhandled_variant"
	case errors.Is(err, expression.ErrInvalidExpression):
		return "invalid"
	case errors.Is(err, expression.ErrTraversal):
		return "traversal"
	case errors.Is(err, expression.ErrDepthExceeded):
		return "depth_exceeded"
	case errors.Is(err, ErrSearchUnavailable):
		return "unavailable"
	}
	return "backend"
}

// fail records err on the span and logs it at a level matching its kind.
func (s *Service) fail(ctx context.Context, span trace.Span, err error, msg string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	kind := errorKind(err)
	if s.metrics.failures != nil {
		s.metrics.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("error.kind", kind)))
	}

	var evt *zerolog.Event
	switch kind {
	case "invalid", "traversal", "depth_exceeded":
		evt = s.logger.Warn()
	case "unavailable":
		evt = s.logger.Debug()
	default:
		evt = s.logger.Error()
	}
	evt.Err(err).Str("error_kind", kind).Msg(msg)
}

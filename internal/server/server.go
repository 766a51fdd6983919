package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
	"github.com/efebarandurmaz/causaldiscover/internal/constraints"
	"github.com/efebarandurmaz/causaldiscover/internal/discovery"
	"github.com/efebarandurmaz/causaldiscover/internal/graph"
	"github.com/efebarandurmaz/causaldiscover/internal/observability"
	"github.com/efebarandurmaz/causaldiscover/internal/orchestrator"
	"github.com/efebarandurmaz/causaldiscover/internal/report"
	"github.com/efebarandurmaz/causaldiscover/internal/state"
)

// Options wires the API to one discovery session.
type Options struct {
	Orchestrator *orchestrator.Orchestrator
	Store        *state.Store
	Health       *Health
	Metrics      *observability.Metrics
	Audit        *observability.AuditLogger
	Events       *EventHub
	Logger       *slog.Logger

	// AllowOrigins enables CORS for browser renderers on other origins.
	AllowOrigins []string

	// Default thresholds when a request does not set them.
	WeightThreshold     float64
	ConfidenceThreshold float64

	// CorrelationSampleSize caps the rows sampled per column pair. Zero
	// uses every row.
	CorrelationSampleSize int
}

// Server is the HTTP API of a discovery session.
type Server struct {
	opts   Options
	logger *slog.Logger
	engine *gin.Engine
	unsubs []func()
}

// New builds the router.
func New(opts Options) *Server {
	if opts.Health == nil {
		opts.Health = NewHealth("")
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics()
	}
	if opts.Events == nil {
		opts.Events = NewEventHub()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{opts: opts, logger: logger.With("component", "server")}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())
	if len(opts.AllowOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins: opts.AllowOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
			MaxAge:       12 * time.Hour,
		}))
	}
	opts.Health.Register(engine)
	engine.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	s.Register(engine.Group("/api"))
	s.engine = engine
	s.forwardEvents()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Close stops forwarding session events and disconnects stream clients.
func (s *Server) Close() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
	s.opts.Events.Close()
}

func (s *Server) forwardEvents() {
	events := s.opts.Events
	s.unsubs = append(s.unsubs,
		s.opts.Orchestrator.Subscribe(func(p orchestrator.Publication) {
			events.Broadcast(Event{
				Type:       EventGraphPublished,
				Generation: p.Generation,
				Data: gin.H{
					"algorithm":     p.Graph.Algorithm,
					"relationships": len(p.Graph.Relationships),
					"shortCircuit":  p.ShortCircuit,
				},
			})
		}),
		s.opts.Store.Subscribe(func(snap state.Snapshot) {
			events.Broadcast(Event{
				Type: EventInputsChanged,
				Data: gin.H{
					"version":   snap.Version,
					"dataset":   snap.Dataset.Name,
					"inModel":   snap.InModel,
					"algorithm": snap.EffectiveAlgorithm(),
				},
			})
		}),
	)
}

// Register attaches the session routes to the given router group.
func (s *Server) Register(rg *gin.RouterGroup) {
	rg.GET("/graph", s.getGraph)
	rg.GET("/diff", s.getDiff)
	rg.GET("/status", s.getStatus)
	rg.GET("/report", s.getReport)
	rg.GET("/variables/:column/relationships", s.getVariableRelationships)
	rg.GET("/correlations", s.getCorrelations)
	rg.GET("/constraints", s.getConstraints)
	rg.GET("/events", s.opts.Events.stream)
	rg.POST("/constraints/:op", s.editConstraint)
	rg.PUT("/algorithm", s.setAlgorithm)
	rg.PUT("/paused", s.setPaused)
	rg.POST("/retry", s.retry)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// thresholds reads the weight and confidence query parameters.
func (s *Server) thresholds(c *gin.Context) (float64, float64, bool) {
	weight, err := floatQuery(c, "weight", s.opts.WeightThreshold)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid weight threshold"})
		return 0, 0, false
	}
	confidence, err := floatQuery(c, "confidence", s.opts.ConfidenceThreshold)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid confidence threshold"})
		return 0, 0, false
	}
	return weight, confidence, true
}

func floatQuery(c *gin.Context, key string, def float64) (float64, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func (s *Server) getGraph(c *gin.Context) {
	weight, confidence, ok := s.thresholds(c)
	if !ok {
		return
	}
	orch := s.opts.Orchestrator
	var filtered *causal.CausalGraph
	if g := orch.Current(); g != nil {
		copied := *g
		copied.Relationships = graph.RelationshipsAboveThresholds(g, weight, confidence)
		filtered = &copied
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":     true,
		"graph":  filtered,
		"model":  orch.Model(),
		"status": orch.Status(),
	})
}

func (s *Server) getDiff(c *gin.Context) {
	weight, confidence, ok := s.thresholds(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "differences": s.opts.Orchestrator.Differences(weight, confidence)})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": s.opts.Orchestrator.Status()})
}

func (s *Server) getReport(c *gin.Context) {
	g := s.opts.Orchestrator.Current()
	if g == nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "no graph published yet"})
		return
	}
	userConstraints := s.opts.Store.Snapshot().Constraints

	switch format := c.DefaultQuery("format", report.FormatCSV); format {
	case report.FormatCSV:
		rows := report.Generate(g, userConstraints)
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="causal-report.csv"`)
		c.Status(http.StatusOK)
		if err := report.WriteCSV(c.Writer, rows); err != nil {
			s.logger.Error("failed to write report", "error", err)
		}
	case report.FormatDOT, report.FormatMermaid:
		weight, confidence, ok := s.thresholds(c)
		if !ok {
			return
		}
		out := report.ExportMermaid(g, weight, confidence)
		if format == report.FormatDOT {
			out = report.ExportDOT(g, userConstraints, weight, confidence)
		}
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(out))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "unknown report format"})
	}
}

func (s *Server) getVariableRelationships(c *gin.Context) {
	weight, confidence, ok := s.thresholds(c)
	if !ok {
		return
	}
	column := c.Param("column")
	ref := causal.VariableReference{ColumnName: column}
	g := s.opts.Orchestrator.Current()
	if !graph.IncludesVariable(g, ref) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "variable not in graph"})
		return
	}
	rels := graph.ValidRelationshipsForColumnName(g, ref, weight, confidence)
	c.JSON(http.StatusOK, gin.H{
		"ok":            true,
		"column":        column,
		"relationships": rels,
		"effects":       report.GroupByEffectType(rels, column),
		"hasParents":    graph.NodeHasParents(g, ref, weight, confidence),
		"hasChildren":   graph.NodeHasChildren(g, ref, weight, confidence),
		"rejected":      constraints.Rejected(s.opts.Store.Snapshot().Constraints, ref),
	})
}

// getCorrelations lists the pairwise correlations of the dataset. Pairs
// that only restate how variables were built are hidden unless all=true.
func (s *Server) getCorrelations(c *gin.Context) {
	snap := s.opts.Store.Snapshot()
	if snap.Dataset.IsPlaceholder() {
		c.JSON(http.StatusOK, gin.H{"ok": true, "correlations": []causal.Relationship{}})
		return
	}
	corrs := discovery.Correlations(snap.Dataset.Table, s.opts.CorrelationSampleSize)
	if c.Query("all") != "true" {
		corrs = causal.FilterBoringRelationships(snap.Variables, corrs)
	}
	if column := c.Query("column"); column != "" {
		corrs = discovery.CorrelationsForVariable(corrs, causal.VariableReference{ColumnName: column})
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "correlations": corrs})
}

func (s *Server) getConstraints(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "constraints": s.opts.Store.Snapshot().Constraints})
}

type edgeReq struct {
	Source string `json:"source"`
	Target string `json:"target"`
	// Column is used by the cause and effect operations.
	Column string `json:"column"`
}

func (s *Server) editConstraint(c *gin.Context) {
	op := c.Param("op")
	var req edgeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}
	req.Source, req.Target, req.Column = strings.TrimSpace(req.Source), strings.TrimSpace(req.Target), strings.TrimSpace(req.Column)
	snap := s.opts.Store.Snapshot()

	if edit, ok := constraints.VariableOps[op]; ok {
		if _, found := causal.FindVariable(snap.Variables, req.Column); !found {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "unknown variable"})
			return
		}
		s.applyEdit(c, op, req.Column, "", func(cs causal.Constraints) causal.Constraints {
			return edit(cs, causal.VariableReference{ColumnName: req.Column})
		})
		return
	}

	edit, ok := constraints.EdgeOps[op]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "unknown operation"})
		return
	}
	if req.Source == "" || req.Target == "" || req.Source == req.Target {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "source and target must be two different variables"})
		return
	}
	_, srcFound := causal.FindVariable(snap.Variables, req.Source)
	_, tgtFound := causal.FindVariable(snap.Variables, req.Target)
	if !srcFound || !tgtFound {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "unknown variable"})
		return
	}

	rel, found := graph.RelationshipForColumnNames(s.opts.Orchestrator.Current(), req.Source, req.Target)
	if !found {
		rel = causal.NewRelationship(
			causal.VariableReference{ColumnName: req.Source},
			causal.VariableReference{ColumnName: req.Target},
		)
	}
	s.applyEdit(c, op, req.Source, req.Target, func(cs causal.Constraints) causal.Constraints {
		return edit(cs, rel)
	})
}

func (s *Server) applyEdit(c *gin.Context, op, source, target string, fn func(causal.Constraints) causal.Constraints) {
	_, span := observability.StartConstraintEditSpan(c.Request.Context(), op, source, target)
	defer span.End()

	s.opts.Store.UpdateConstraints(fn)
	s.opts.Metrics.ConstraintEdited(op)
	s.opts.Audit.LogConstraintEdit(op, source, target)
	s.logger.Info("constraint edited", "operation", op, "source", source, "target", target)

	c.JSON(http.StatusAccepted, gin.H{
		"ok":          true,
		"constraints": s.opts.Store.Snapshot().Constraints,
		"status":      s.opts.Orchestrator.Status(),
	})
}

type algorithmReq struct {
	Algorithm string `json:"algorithm" binding:"required"`
}

func (s *Server) setAlgorithm(c *gin.Context) {
	var req algorithmReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}
	algorithm, err := causal.ParseAlgorithm(req.Algorithm)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}
	s.opts.Store.SetAlgorithm(algorithm)
	c.JSON(http.StatusAccepted, gin.H{"ok": true, "status": s.opts.Orchestrator.Status()})
}

type pausedReq struct {
	Paused *bool `json:"paused" binding:"required"`
}

func (s *Server) setPaused(c *gin.Context) {
	var req pausedReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}
	s.opts.Store.SetPaused(*req.Paused)
	c.JSON(http.StatusAccepted, gin.H{"ok": true, "status": s.opts.Orchestrator.Status()})
}

func (s *Server) retry(c *gin.Context) {
	gen, err := s.opts.Orchestrator.Retry(c.Request.Context())
	if errors.Is(err, orchestrator.ErrNothingToRetry) {
		c.JSON(http.StatusConflict, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"ok": true, "generation": gen})
}

// Package api serves stored run results over HTTP. It only reads.
package api

import (
	"math"
	"net/http"
	"strconv"

	"abidenet/domain/core"
	"abidenet/domain/network"
	"abidenet/domain/results"
	"abidenet/domain/subject"
	"abidenet/internal"
	apperrors "abidenet/internal/errors"
	"abidenet/ports"

	"github.com/gin-gonic/gin"
)

const maxRunsLimit = 500

// Server wires the results routes onto a gin engine
type Server struct {
	router  *gin.Engine
	results ports.ResultsReader
	logger  *internal.Logger
}

// NewServer builds the engine; mode is a gin mode (debug, release, test)
func NewServer(results ports.ResultsReader, logger *internal.Logger, mode string) *Server {
	gin.SetMode(mode)
	s := &Server{
		router:  gin.New(),
		results: results,
		logger:  logger,
	}
	s.router.Use(gin.Recovery(), s.requestLog())
	s.setupRoutes()
	return s
}

// Handler exposes the engine for http.Server
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	runs := s.router.Group("/api/runs")
	runs.GET("", s.handleListRuns)
	runs.GET("/:id", s.handleGetRun)
	runs.GET("/:id/qc", s.handleQC)
	runs.GET("/:id/tests", s.handleBlockTests)
	runs.GET("/:id/edges", s.handleEdgeTests)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Debug("%s %s -> %d", c.Request.Method, c.Request.URL.Path, c.Writer.Status())
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	err = apperrors.Wrap(err, "results query failed")
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": apperrors.GetCode(err)})
}

func runID(c *gin.Context) core.RunID {
	return core.RunID(c.Param("id"))
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.fail(c, apperrors.InvalidInput("limit must be a positive integer"))
			return
		}
		limit = min(n, maxRunsLimit)
	}
	runs, err := s.results.ListRuns(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	if runs == nil {
		runs = []ports.RunSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, err := s.results.GetRun(c.Request.Context(), runID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleQC(c *gin.Context) {
	ledger, err := s.results.GetQC(c.Request.Context(), runID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	counts := subject.CountByStatus(ledger)
	if ledger == nil {
		ledger = []subject.QCEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID(c), "counts": counts, "subjects": ledger})
}

func (s *Server) handleBlockTests(c *gin.Context) {
	var filters ports.TestFilters
	if v := c.Query("type"); v != "" {
		bt, err := network.ParseBlockType(v)
		if err != nil {
			s.fail(c, apperrors.InvalidInput("type must be intra or inter"))
			return
		}
		filters.Type = &bt
	}
	if v := c.Query("significant"); v != "" {
		sig, err := strconv.ParseBool(v)
		if err != nil {
			s.fail(c, apperrors.InvalidInput("significant must be a boolean"))
			return
		}
		filters.SignificantOnly = sig
	}
	tests, err := s.results.GetBlockTests(c.Request.Context(), runID(c), filters)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]blockTestJSON, len(tests))
	for i, bt := range tests {
		out[i] = newBlockTestJSON(bt)
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID(c), "tests": out})
}

func (s *Server) handleEdgeTests(c *gin.Context) {
	tests, err := s.results.GetEdgeTests(c.Request.Context(), runID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]edgeTestJSON, len(tests))
	for i, e := range tests {
		out[i] = newEdgeTestJSON(e)
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID(c), "edges": out})
}

// number renders non-finite values as null since JSON has no NaN or Inf
func number(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

type groupJSON struct {
	N    int      `json:"n"`
	Mean *float64 `json:"mean"`
	SD   *float64 `json:"sd"`
}

type blockTestJSON struct {
	Type        network.BlockType `json:"type"`
	Block       string            `json:"block"`
	TDC         groupJSON         `json:"tdc"`
	ASD         groupJSON         `json:"asd"`
	T           *float64          `json:"t"`
	DF          *float64          `json:"df"`
	P           *float64          `json:"p"`
	PAdj        *float64          `json:"p_fdr"`
	Significant bool              `json:"significant"`
}

func newBlockTestJSON(bt results.BlockTest) blockTestJSON {
	return blockTestJSON{
		Type:        bt.Type,
		Block:       bt.Block,
		TDC:         groupJSON{N: bt.TDC.N, Mean: number(bt.TDC.Mean), SD: number(bt.TDC.SD)},
		ASD:         groupJSON{N: bt.ASD.N, Mean: number(bt.ASD.Mean), SD: number(bt.ASD.SD)},
		T:           number(bt.T),
		DF:          number(bt.DF),
		P:           number(bt.P),
		PAdj:        number(bt.PAdj),
		Significant: bt.Significant,
	}
}

type edgeTestJSON struct {
	ROII        int      `json:"roi_i"`
	ROIJ        int      `json:"roi_j"`
	T           *float64 `json:"t"`
	P           *float64 `json:"p_unc"`
	PAdj        *float64 `json:"p_fdr"`
	Significant bool     `json:"significant"`
	NetI        string   `json:"net_i"`
	NetJ        string   `json:"net_j"`
	Kind        string   `json:"kind"`
}

func newEdgeTestJSON(e results.EdgeTest) edgeTestJSON {
	return edgeTestJSON{
		ROII: e.ROII, ROIJ: e.ROIJ,
		T: number(e.T), P: number(e.P), PAdj: number(e.PAdj),
		Significant: e.Significant,
		NetI:        e.NetI, NetJ: e.NetJ, Kind: e.Kind,
	}
}

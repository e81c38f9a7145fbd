package main

import (
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/finchat-labs/finflow/capability"
	"github.com/finchat-labs/finflow/workflow"
)

type server struct {
	wf       *workflow.Workflow
	registry *prometheus.Registry
}

func newServer(wf *workflow.Workflow, registry *prometheus.Registry) *server {
	return &server{wf: wf, registry: registry}
}

func (s *server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/v1/ask", s.ask)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	return r
}

type askRequest struct {
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type askResponse struct {
	RequestID  string      `json:"request_id"`
	Reply      string      `json:"reply"`
	ActionType string      `json:"action_type"`
	Confidence float64     `json:"confidence"`
	Grade      string      `json:"grade"`
	ChartPNG   string      `json:"chart_png,omitempty"`
	Sources    []sourceDoc `json:"sources,omitempty"`
	Usage      usageInfo   `json:"usage"`
	Trace      []traceStep `json:"trace,omitempty"`
}

type sourceDoc struct {
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet,omitempty"`
}

type usageInfo struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

type traceStep struct {
	Hop       int    `json:"hop"`
	Node      string `json:"node"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Error     string `json:"error,omitempty"`
}

func (s *server) ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	resp, err := s.wf.Orchestrate(c.Request.Context(), workflow.Request{
		Query:     req.Query,
		SessionID: req.SessionID,
		UserID:    req.UserID,
	})
	if err != nil {
		// Orchestrate still returns a user-facing reply on failure; log
		// the cause and serve that reply rather than a bare 500.
		slog.Error("orchestrate failed", "request_id", resp.RequestID, "error", err)
		c.JSON(http.StatusInternalServerError, toAskResponse(resp))
		return
	}
	c.JSON(http.StatusOK, toAskResponse(resp))
}

func toAskResponse(resp *workflow.Response) askResponse {
	out := askResponse{
		RequestID:  resp.RequestID,
		Reply:      resp.Reply,
		ActionType: string(resp.ActionType),
		Confidence: resp.Confidence,
		Grade:      resp.Grade,
		Sources:    toSourceDocs(resp.RetrievedDocuments),
		Usage: usageInfo{
			Prompt:     resp.Usage.Prompt,
			Completion: resp.Usage.Completion,
			Total:      resp.Usage.Total,
		},
	}
	if len(resp.Chart) > 0 {
		out.ChartPNG = base64.StdEncoding.EncodeToString(resp.Chart)
	}
	for _, st := range resp.Trace {
		out.Trace = append(out.Trace, traceStep{
			Hop:       st.Hop,
			Node:      st.Node,
			ElapsedMS: st.Elapsed.Milliseconds(),
			Error:     st.Err,
		})
	}
	return out
}

func toSourceDocs(hits []capability.Hit) []sourceDoc {
	if len(hits) == 0 {
		return nil
	}
	docs := make([]sourceDoc, len(hits))
	for i, h := range hits {
		docs[i] = sourceDoc{Source: h.Source, Score: h.Score, Snippet: h.Snippet}
	}
	return docs
}

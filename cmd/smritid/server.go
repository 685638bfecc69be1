package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"smriti/internal/hybridsearch"
	"smriti/internal/svapna"
	"smriti/internal/temporal"
	"smriti/internal/types"
	"smriti/internal/unifiedrecall"
	"smriti/internal/vasana"
)

// Server exposes the consumer-facing query surface of spec.md §6 as MCP
// tools: recall, hybrid search, feedback, the four Vasana write operations,
// one Svapna consolidation cycle, and temporal search.
type Server struct {
	c *Components
}

// NewServer wraps an already-initialized Components set.
func NewServer(c *Components) *Server {
	return &Server{c: c}
}

// RegisterTools registers every tool on mcpServer.
func (s *Server) RegisterTools(mcpServer *mcp.Server) {
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "recall",
		Description: "Recall answers across hybrid search, memory, and consolidated day files",
	}, s.handleRecall)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "hybrid-search",
		Description: "Run Samshodhana fused search (BM25 + vector + GraphRAG + pramana/temporal boosts)",
	}, s.handleHybridSearch)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "record-feedback",
		Description: "Record success/failure feedback on a prior hybrid-search result to update signal weights",
	}, s.handleRecordFeedback)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "vasana-observe",
		Description: "Record one observed samskara and fold it into its tendency cluster's change-point tracker",
	}, s.handleVasanaObserve)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "vasana-crystallize",
		Description: "Evaluate every samskara cluster in a project against the crystallization gates",
	}, s.handleVasanaCrystallize)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "vasana-decay",
		Description: "Apply exponential strength decay to every tendency since its last activation",
	}, s.handleVasanaDecay)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "vasana-promote",
		Description: "Promote project-local tendencies that cross enough projects and mean strength to global scope",
	}, s.handleVasanaPromote)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "svapna-run",
		Description: "Run one offline five-phase consolidation cycle (replay, recombine, crystallize, proceduralize, compress) over a project's recent sessions",
	}, s.handleSvapnaRun)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "temporal-search",
		Description: "Search hierarchical temporal summaries, drilling yearly to monthly to daily",
	}, s.handleTemporalSearch)
}

// toJSONContent renders data as the single MCP TextContent block every
// handler here returns; these tools are consumed programmatically, not
// read by a person, so no further formatting layer sits on top.
func toJSONContent(data interface{}) []mcp.Content {
	body, err := json.Marshal(data)
	if err != nil {
		body, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return []mcp.Content{&mcp.TextContent{Text: string(body)}}
}

type RecallRequest struct {
	Query           string `json:"query"`
	Limit           int    `json:"limit,omitempty"`
	IncludeMemory   *bool  `json:"include_memory,omitempty"`
	IncludeDayFiles *bool  `json:"include_day_files,omitempty"`
	Project         string `json:"project,omitempty"`
}

type RecallResponse struct {
	Answers []unifiedrecall.Answer `json:"answers"`
}

func (s *Server) handleRecall(ctx context.Context, req *mcp.CallToolRequest, input RecallRequest) (*mcp.CallToolResult, *RecallResponse, error) {
	if input.Query == "" {
		return nil, nil, fmt.Errorf("recall: query is required")
	}
	cfg := unifiedrecall.DefaultConfig()
	if input.Limit > 0 {
		cfg.Limit = input.Limit
	}
	if input.IncludeMemory != nil {
		cfg.IncludeMemory = *input.IncludeMemory
	}
	if input.IncludeDayFiles != nil {
		cfg.IncludeDayFiles = *input.IncludeDayFiles
	}
	cfg.Project = input.Project

	answers := s.c.UnifiedRecall.Recall(ctx, input.Query, cfg)
	resp := &RecallResponse{Answers: answers}
	return &mcp.CallToolResult{Content: toJSONContent(resp)}, resp, nil
}

type HybridSearchRequest struct {
	Query   string `json:"query"`
	Project string `json:"project,omitempty"`
	TopK    int    `json:"top_k,omitempty"`
	Gated   bool   `json:"gated,omitempty"`
}

type HybridSearchResponse struct {
	Results []hybridsearch.FusedResult `json:"results"`
}

func (s *Server) handleHybridSearch(ctx context.Context, req *mcp.CallToolRequest, input HybridSearchRequest) (*mcp.CallToolResult, *HybridSearchResponse, error) {
	if input.Query == "" {
		return nil, nil, fmt.Errorf("hybrid-search: query is required")
	}
	overrides := hybridsearch.SearchOverrides{Project: input.Project, TopK: input.TopK}
	var results []hybridsearch.FusedResult
	if input.Gated {
		results = s.c.HybridSearch.GatedSearch(ctx, input.Query, overrides)
	} else {
		results = s.c.HybridSearch.Search(ctx, input.Query, overrides)
	}
	resp := &HybridSearchResponse{Results: results}
	return &mcp.CallToolResult{Content: toJSONContent(resp)}, resp, nil
}

type RecordFeedbackRequest struct {
	ID          string               `json:"id"`
	Sources     []types.RankerSource `json:"sources"`
	PramanaType *types.PramanaType   `json:"pramana_type,omitempty"`
	Success     bool                 `json:"success"`
}

type RecordFeedbackResponse struct {
	Recorded bool `json:"recorded"`
}

func (s *Server) handleRecordFeedback(ctx context.Context, req *mcp.CallToolRequest, input RecordFeedbackRequest) (*mcp.CallToolResult, *RecordFeedbackResponse, error) {
	if input.ID == "" {
		return nil, nil, fmt.Errorf("record-feedback: id is required")
	}
	result := hybridsearch.FusedResult{
		ID:          input.ID,
		Sources:     input.Sources,
		PramanaType: input.PramanaType,
	}
	s.c.HybridSearch.RecordFeedback(result, input.Success)
	resp := &RecordFeedbackResponse{Recorded: true}
	return &mcp.CallToolResult{Content: toJSONContent(resp)}, resp, nil
}

type VasanaObserveRequest struct {
	Project          string  `json:"project"`
	SessionID        string  `json:"session_id"`
	PatternType      string  `json:"pattern_type"`
	PatternContent   string  `json:"pattern_content"`
	Confidence       float64 `json:"confidence"`
	ObservationCount int     `json:"observation_count,omitempty"`
}

type VasanaObserveResponse struct {
	SamskaraID string `json:"samskara_id"`
}

func (s *Server) handleVasanaObserve(ctx context.Context, req *mcp.CallToolRequest, input VasanaObserveRequest) (*mcp.CallToolResult, *VasanaObserveResponse, error) {
	if input.Project == "" || input.PatternContent == "" {
		return nil, nil, fmt.Errorf("vasana-observe: project and pattern_content are required")
	}
	obsCount := input.ObservationCount
	if obsCount <= 0 {
		obsCount = 1
	}
	now := time.Now()
	samskara := &types.Samskara{
		ID:               uuid.NewString(),
		SessionID:        input.SessionID,
		PatternType:      types.PatternType(input.PatternType),
		PatternContent:   input.PatternContent,
		ObservationCount: obsCount,
		Confidence:       input.Confidence,
		Project:          input.Project,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.c.Store.UpsertSamskara(samskara); err != nil {
		return nil, nil, fmt.Errorf("vasana-observe: failed to store samskara: %w", err)
	}
	s.c.Vasana.Observe(samskara)

	resp := &VasanaObserveResponse{SamskaraID: samskara.ID}
	return &mcp.CallToolResult{Content: toJSONContent(resp)}, resp, nil
}

type VasanaCrystallizeRequest struct {
	Project string `json:"project"`
}

func (s *Server) handleVasanaCrystallize(ctx context.Context, req *mcp.CallToolRequest, input VasanaCrystallizeRequest) (*mcp.CallToolResult, *vasana.CrystallizeResult, error) {
	result, err := s.c.Vasana.Crystallize(input.Project)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{Content: toJSONContent(result)}, &result, nil
}

type VasanaDecayRequest struct {
	HalfLifeHours float64 `json:"half_life_hours,omitempty"`
}

type VasanaDecayResponse struct {
	Decayed int `json:"decayed"`
}

func (s *Server) handleVasanaDecay(ctx context.Context, req *mcp.CallToolRequest, input VasanaDecayRequest) (*mcp.CallToolResult, *VasanaDecayResponse, error) {
	halfLife := s.c.Config.Vasana.DecayHalfLife
	if input.HalfLifeHours > 0 {
		halfLife = time.Duration(input.HalfLifeHours * float64(time.Hour))
	}
	n, err := s.c.Vasana.Decay(halfLife, time.Now())
	if err != nil {
		return nil, nil, err
	}
	resp := &VasanaDecayResponse{Decayed: n}
	return &mcp.CallToolResult{Content: toJSONContent(resp)}, resp, nil
}

type VasanaPromoteResponse struct {
	Promoted []string `json:"promoted"`
}

func (s *Server) handleVasanaPromote(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, *VasanaPromoteResponse, error) {
	ids, err := s.c.Vasana.PromoteToGlobal()
	if err != nil {
		return nil, nil, err
	}
	resp := &VasanaPromoteResponse{Promoted: ids}
	return &mcp.CallToolResult{Content: toJSONContent(resp)}, resp, nil
}

type SvapnaRunRequest struct {
	Project string `json:"project"`
}

func (s *Server) handleSvapnaRun(ctx context.Context, req *mcp.CallToolRequest, input SvapnaRunRequest) (*mcp.CallToolResult, *svapna.CycleResult, error) {
	if input.Project == "" {
		return nil, nil, fmt.Errorf("svapna-run: project is required")
	}
	progress := func(phase types.ConsolidationPhase, fraction float64) {
		log.Printf("smritid: svapna cycle project=%s phase=%s fraction=%.0f", input.Project, phase, fraction)
	}
	result, err := s.c.Svapna.Run(input.Project, s.c.Config.Svapna, progress)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{Content: toJSONContent(result)}, &result, nil
}

type TemporalSearchRequest struct {
	Query   string `json:"query"`
	Project string `json:"project,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type TemporalSearchResponse struct {
	Results []temporal.Result `json:"results"`
}

func (s *Server) handleTemporalSearch(ctx context.Context, req *mcp.CallToolRequest, input TemporalSearchRequest) (*mcp.CallToolResult, *TemporalSearchResponse, error) {
	if input.Query == "" {
		return nil, nil, fmt.Errorf("temporal-search: query is required")
	}
	cfg := temporal.DefaultConfig()
	if input.Limit > 0 {
		cfg.Limit = input.Limit
	}
	cfg.Project = input.Project

	results := s.c.Temporal.Search(ctx, input.Query, cfg)
	resp := &TemporalSearchResponse{Results: results}
	return &mcp.CallToolResult{Content: toJSONContent(resp)}, resp, nil
}

// Package orchestrator implements the Service Orchestrator (C8): the two
// entry points that drive a graph run to completion — run (collect the
// final response) and run_stream (yield lifecycle events over SSE) — per
// spec §4.8.
package orchestrator

import (
	"github.com/hyperifyio/deepsearch/internal/research"
)

// Request is the decoded body of both /deepsearch/run and
// /deepsearch/run/stream (spec §6.1).
type Request struct {
	Query                   string
	InitialSearchQueryCount int
	MaxResearchLoops        int
	ReasoningModel          string
	ReportFormat            string
}

// Metadata summarizes a completed run (spec §6.1's response metadata
// object).
type Metadata struct {
	ResearchLoopCount int    `json:"research_loop_count"`
	NumberOfQueries   int    `json:"number_of_queries"`
	NumberOfSources   int    `json:"number_of_sources"`
	TotalSourcesFound int    `json:"total_sources_found"`
	ReasoningModel    string `json:"reasoning_model"`
	SystemVersion     string `json:"system_version"`
}

// Response is the DeepSearchResponse shape (spec §6.1's response body and
// the "completed" SSE event's payload).
type Response struct {
	Success        bool                 `json:"success"`
	Answer         string               `json:"answer"`
	MarkdownReport string               `json:"markdown_report"`
	Sources        []research.SourceRef `json:"sources"`
	AllSources     []research.SourceRef `json:"all_sources"`
	Metadata       Metadata             `json:"metadata"`
	Message        string               `json:"message"`
}

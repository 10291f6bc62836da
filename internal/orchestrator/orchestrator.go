package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/deepsearch/internal/graph"
	"github.com/hyperifyio/deepsearch/internal/research"
	"github.com/hyperifyio/deepsearch/internal/session"
	"github.com/hyperifyio/deepsearch/internal/sse"
)

const (
	// heartbeatInterval matches spec §4.8 step 5's 30 s SSE keep-alive timer.
	heartbeatInterval = 30 * time.Second
	// connectionCheckInterval matches spec §4.8 step 5's 10 s disconnect poll.
	connectionCheckInterval = 10 * time.Second
	// sessionTimeout is the whole-session budget spec §5 names.
	sessionTimeout = 1800 * time.Second
)

// Orchestrator drives one graph run to completion for both entry points (run
// and run_stream) described in spec §4.8, owning the accumulated-state
// mirror, the heartbeat/connection-check timers, and session cleanup.
type Orchestrator struct {
	Graph    *graph.Graph
	Registry *session.Registry
	Monitor  *sse.Monitor
}

// New constructs an Orchestrator over a compiled research graph.
func New(g *graph.Graph, registry *session.Registry, monitor *sse.Monitor) *Orchestrator {
	return &Orchestrator{Graph: g, Registry: registry, Monitor: monitor}
}

func initialStateFor(req Request) graph.State {
	return research.InitialState(req.Query, req.InitialSearchQueryCount, req.MaxResearchLoops, req.ReasoningModel, req.ReportFormat)
}

func stringsFieldOf(s graph.State, key string) []string {
	v, _ := s[key].([]string)
	return v
}

// buildResponse extracts the DeepSearchResponse shape from a final (or
// partially accumulated, on error/cancellation) graph state.
// number_of_queries counts FieldAccumulatedQueries, which web_research (not
// generate_query) appends to once per completed branch, so a query whose
// web_research branch failed is correctly excluded from the tally.
func buildResponse(final graph.State, success bool, message string) Response {
	answer, _ := final[research.FieldAnswer].(string)
	markdown, _ := final[research.FieldMarkdownReport].(string)
	cited, _ := final[research.FieldSourcesGathered].([]research.SourceRef)
	all, _ := final[research.FieldAllSourcesGathered].([]research.SourceRef)
	loopCount, _ := final[research.FieldLoopCount].(int)
	reasoningModel, _ := final[research.FieldReasoningModel].(string)
	queryCount := len(stringsFieldOf(final, research.FieldAccumulatedQueries))

	return Response{
		Success:        success,
		Answer:         answer,
		MarkdownReport: markdown,
		Sources:        cited,
		AllSources:     all,
		Metadata: Metadata{
			ResearchLoopCount: loopCount,
			NumberOfQueries:   queryCount,
			NumberOfSources:   len(cited),
			TotalSourcesFound: len(all),
			ReasoningModel:    reasoningModel,
			SystemVersion:     research.SystemVersion,
		},
		Message: message,
	}
}

// Run is the synchronous entry point (spec §4.8's "run"): it drives the
// graph to completion and returns the final response, with no intermediate
// events surfaced.
func (o *Orchestrator) Run(ctx context.Context, sessionID string, req Request) (Response, error) {
	o.Registry.Create(sessionID)
	defer o.Registry.Cleanup(sessionID)

	cfg := &graph.Config{SessionID: sessionID, Cancelled: func() bool { return o.Registry.IsCancelled(sessionID) }}

	final, err := o.Graph.Invoke(ctx, initialStateFor(req), cfg)
	if err != nil {
		return buildResponse(final, false, err.Error()), err
	}
	return buildResponse(final, true, ""), nil
}

// RunStream is the SSE entry point (spec §4.8's "run_stream"): it streams
// one lifecycle event per node completion plus periodic heartbeats, mirrors
// accumulated state so a "completed" (or "error") event can always carry a
// full response, and tears the session down via the Monitor's
// connection-check timer if the client goes away.
func (o *Orchestrator) RunStream(ctx context.Context, sessionID string, req Request, w *sse.Writer, isDisconnected func() bool) error {
	o.Registry.Create(sessionID)
	o.Monitor.Register(sessionID)
	defer o.Registry.Cleanup(sessionID)
	defer o.Monitor.Remove(sessionID)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopTimers := make(chan struct{})
	defer close(stopTimers)
	go o.runTimers(sessionID, w, isDisconnected, stopTimers)

	cfg := &graph.Config{SessionID: sessionID, Cancelled: func() bool { return o.Registry.IsCancelled(sessionID) }}

	mirror := initialStateFor(req)
	evtState := &nodeEventState{}
	emit := func(eventType, message string, payload interface{}) {
		if err := w.Write(eventType, message, payload, time.Now()); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Str("event_type", eventType).Msg("run_stream: write failed, likely disconnected client")
			o.Registry.SetCancelled(sessionID)
			o.Monitor.MarkErrored(sessionID)
			cancel()
		}
	}

	emit("started", fmt.Sprintf("research session %s started", sessionID), map[string]string{"session_id": sessionID})

	final, err := o.Graph.Stream(runCtx, mirror, cfg, func(evt graph.Event) error {
		mirror = o.Graph.Merge(mirror, evt.Delta)
		mapNodeEvent(evt, mirror, evtState, emit)
		return nil
	})

	if err != nil {
		resp := buildResponse(final, false, err.Error())
		emit("error", err.Error(), resp)
		return err
	}

	resp := buildResponse(final, true, "")
	emit("completed", "research complete", resp)
	return nil
}

// runTimers drives the heartbeat and connection-check timers for one
// run_stream invocation until stop fires (spec §4.8 step 5's two timers).
func (o *Orchestrator) runTimers(sessionID string, w *sse.Writer, isDisconnected func() bool, stop <-chan struct{}) {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	connCheck := time.NewTicker(connectionCheckInterval)
	defer connCheck.Stop()

	for {
		select {
		case <-stop:
			return
		case <-heartbeat.C:
			if err := w.Write("heartbeat", "", nil, time.Now()); err != nil {
				o.Registry.SetCancelled(sessionID)
				o.Monitor.MarkErrored(sessionID)
				return
			}
		case <-connCheck.C:
			if isDisconnected != nil && isDisconnected() {
				o.Registry.SetCancelled(sessionID)
				o.Monitor.MarkErrored(sessionID)
				return
			}
			if o.Monitor.IsErrored(sessionID) {
				o.Registry.SetCancelled(sessionID)
				return
			}
		}
	}
}

// SweepExpiredSessions cancels any session whose connection has outlived the
// whole-session timeout (spec §5). Meant to be driven by a periodic ticker
// from cmd/deepsearch's main loop.
func (o *Orchestrator) SweepExpiredSessions() {
	o.Monitor.SweepExpired(sessionTimeout, func(sessionID string) {
		o.Registry.SetCancelled(sessionID)
		log.Warn().Str("session_id", sessionID).Msg("session exceeded whole-session timeout, cancelling")
	})
}

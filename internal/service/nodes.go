package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fraktionswerk/draftflow/internal/assembly"
	"github.com/fraktionswerk/draftflow/internal/clarify"
	"github.com/fraktionswerk/draftflow/internal/config"
	"github.com/fraktionswerk/draftflow/internal/enricher"
	"github.com/fraktionswerk/draftflow/internal/planner"
	"github.com/fraktionswerk/draftflow/internal/util"
	"github.com/fraktionswerk/draftflow/internal/workflow"
)

// Step names of the drafting workflow.
const (
	StepInitiate          = "initiate"
	StepSearchPlan        = "search_plan"
	StepCrawlDecide       = "crawl_decide"
	StepEnrich            = "enrich"
	StepGenerateQuestions = "generate_questions"
	StepAnalyzeAnswers    = "analyze_answers"
	StepSummarizeAnswers  = "summarize_answers"
	StepCollectDocuments  = "collect_documents"
	StepFinalGenerate     = "final_generate"
)

// maxAnswerRounds caps how often the workflow re-asks when a round comes back
// with nothing usable.
const maxAnswerRounds = 2

// maxHighlights bounds how many research findings feed question generation.
const maxHighlights = 5

// maxDocuments bounds how many sources feed final generation.
const maxDocuments = 8

// nodes holds the phase engines the workflow steps delegate to.
type nodes struct {
	planner   *planner.Planner
	enricher  *enricher.Enricher
	clarify   *clarify.Engine
	assembler *assembly.Assembler
	limits    config.LimitsConfig
	logger    *zap.Logger
}

// buildGraph wires the drafting workflow. The only suspension point is
// generate_questions; resuming continues at analyze_answers, which either
// loops back for another round or proceeds to generation.
func buildGraph(n *nodes) *workflow.Graph {
	return workflow.NewGraph(StepInitiate).
		AddNode(StepInitiate, n.initiate).
		AddNode(StepSearchPlan, n.searchPlan).
		AddNode(StepCrawlDecide, n.crawlDecide).
		AddNode(StepEnrich, n.enrich).
		AddNode(StepGenerateQuestions, n.generateQuestions).
		AddNode(StepAnalyzeAnswers, n.analyzeAnswers).
		AddNode(StepSummarizeAnswers, n.summarizeAnswers).
		AddNode(StepCollectDocuments, n.collectDocuments).
		AddNode(StepFinalGenerate, n.finalGenerate).
		AddEdge(StepInitiate, StepSearchPlan).
		AddEdge(StepSearchPlan, StepCrawlDecide).
		AddEdge(StepCrawlDecide, StepEnrich).
		AddEdge(StepEnrich, StepGenerateQuestions).
		AddEdge(StepGenerateQuestions, StepAnalyzeAnswers).
		AddRouter(StepAnalyzeAnswers, n.routeAfterAnalyze).
		AddEdge(StepSummarizeAnswers, StepCollectDocuments).
		AddEdge(StepCollectDocuments, StepFinalGenerate).
		AddEdge(StepFinalGenerate, workflow.End)
}

// initiate validates the seeded state and stamps the start of the run.
func (n *nodes) initiate(_ context.Context, s workflow.State) (workflow.NodeResult, error) {
	if s.GetString(workflow.FieldTopic) == "" {
		return workflow.NodeResult{}, fmt.Errorf("topic is required")
	}

	patch := workflow.Patch{
		workflow.FieldMetadata: map[string]interface{}{
			"started_at": time.Now().UTC().Format(time.RFC3339),
		},
	}
	if s.GetString(workflow.FieldRequestType) == "" {
		patch[workflow.FieldRequestType] = "antrag"
	}
	if s.GetString(workflow.FieldLocale) == "" {
		patch[workflow.FieldLocale] = "de-DE"
	}
	return workflow.NodeResult{Patch: patch}, nil
}

// searchPlan fans out research queries and stores the merged results.
func (n *nodes) searchPlan(ctx context.Context, s workflow.State) (workflow.NodeResult, error) {
	topic := s.GetString(workflow.FieldTopic)
	details := s.GetString(workflow.FieldDetails)
	requestType := s.GetString(workflow.FieldRequestType)

	queries := n.planner.GenerateQueries(ctx, topic, details, requestType)
	plan := n.planner.ExecuteSearches(ctx, queries)

	n.logger.Info("Research phase finished",
		zap.Int("queries", len(queries)),
		zap.Int("results", len(plan.Results)),
	)

	return workflow.NodeResult{Patch: workflow.Patch{
		workflow.FieldSearchResults: plan.Results,
		workflow.FieldByPurpose:     plan.ByPurpose,
		workflow.FieldMetadata: map[string]interface{}{
			"query_count":  len(queries),
			"result_count": len(plan.Results),
		},
	}}, nil
}

// crawlDecide asks the model which results deserve a full fetch. The chosen
// reasons are kept as knowledge so final generation can see why a source was
// picked.
func (n *nodes) crawlDecide(ctx context.Context, s workflow.State) (workflow.NodeResult, error) {
	var results []planner.SearchResult
	if s.Has(workflow.FieldSearchResults) {
		if err := workflow.Decode(s, workflow.FieldSearchResults, &results); err != nil {
			return workflow.NodeResult{}, err
		}
	}
	if len(results) == 0 {
		return workflow.NodeResult{Patch: workflow.Patch{
			workflow.FieldCrawlPlan: []planner.CrawlDecision{},
		}}, nil
	}

	decisions := n.planner.SelectCrawlTargets(ctx, results,
		s.GetString(workflow.FieldTopic), s.GetString(workflow.FieldDetails),
		n.limits.MaxCrawls)

	knowledge := make(map[string]string, len(decisions))
	for _, d := range decisions {
		knowledge["quelle:"+d.URL] = d.Reason
	}

	return workflow.NodeResult{Patch: workflow.Patch{
		workflow.FieldCrawlPlan: decisions,
		workflow.FieldKnowledge: knowledge,
	}}, nil
}

// enrich fetches the selected pages and degrades the rest to snippets.
func (n *nodes) enrich(ctx context.Context, s workflow.State) (workflow.NodeResult, error) {
	var results []planner.SearchResult
	var decisions []planner.CrawlDecision
	if s.Has(workflow.FieldSearchResults) {
		if err := workflow.Decode(s, workflow.FieldSearchResults, &results); err != nil {
			return workflow.NodeResult{}, err
		}
	}
	if s.Has(workflow.FieldCrawlPlan) {
		if err := workflow.Decode(s, workflow.FieldCrawlPlan, &decisions); err != nil {
			return workflow.NodeResult{}, err
		}
	}

	enriched := n.enricher.Enrich(ctx, results, decisions)
	return workflow.NodeResult{Patch: workflow.Patch{
		workflow.FieldEnriched: enriched,
	}}, nil
}

// generateQuestions produces clarifying questions and suspends the thread
// until the user answers them.
func (n *nodes) generateQuestions(ctx context.Context, s workflow.State) (workflow.NodeResult, error) {
	questions := n.clarify.GenerateQuestions(ctx, clarify.Context{
		Topic:       s.GetString(workflow.FieldTopic),
		Details:     s.GetString(workflow.FieldDetails),
		RequestType: s.GetString(workflow.FieldRequestType),
		Locale:      s.GetString(workflow.FieldLocale),
		Highlights:  n.highlights(s),
	})

	round := len(decodeRounds(s)) + 1
	return workflow.NodeResult{
		Patch: workflow.Patch{workflow.FieldQuestions: questions},
		Suspend: &workflow.Suspension{Payload: map[string]interface{}{
			"type":      "clarifying_questions",
			"round":     round,
			"questions": questions,
		}},
	}, nil
}

// highlights extracts short research findings for question generation.
func (n *nodes) highlights(s workflow.State) []string {
	var enriched []enricher.EnrichedResult
	if !s.Has(workflow.FieldEnriched) {
		return nil
	}
	if err := workflow.Decode(s, workflow.FieldEnriched, &enriched); err != nil {
		return nil
	}

	out := make([]string, 0, maxHighlights)
	for _, r := range enriched {
		if len(out) >= maxHighlights {
			break
		}
		line := r.Title
		if r.Snippet != "" {
			line = r.Title + ": " + util.TruncateString(r.Snippet, 160, true)
		}
		out = append(out, line)
	}
	return out
}

// analyzeAnswers counts usable answers from the latest round.
func (n *nodes) analyzeAnswers(_ context.Context, s workflow.State) (workflow.NodeResult, error) {
	rounds := decodeRounds(s)
	if len(rounds) == 0 {
		return workflow.NodeResult{}, fmt.Errorf("no answer round recorded before %s", StepAnalyzeAnswers)
	}

	latest := rounds[len(rounds)-1]
	usable := 0
	for _, answer := range latest {
		if answer != "" && answer != clarify.SkippedAnswer {
			usable++
		}
	}

	n.logger.Info("Answer round analyzed",
		zap.Int("round", len(rounds)),
		zap.Int("usable_answers", usable),
	)

	return workflow.NodeResult{Patch: workflow.Patch{
		workflow.FieldMetadata: map[string]interface{}{
			"last_round_usable": usable,
		},
	}}, nil
}

// routeAfterAnalyze loops back for one more round when the user skipped
// everything, otherwise moves on to generation.
func (n *nodes) routeAfterAnalyze(s workflow.State) string {
	rounds := decodeRounds(s)
	if len(rounds) == 0 || len(rounds) >= maxAnswerRounds {
		return StepSummarizeAnswers
	}
	latest := rounds[len(rounds)-1]
	for _, answer := range latest {
		if answer != "" && answer != clarify.SkippedAnswer {
			return StepSummarizeAnswers
		}
	}
	return StepGenerateQuestions
}

// summarizeAnswers condenses all rounds into generation context.
func (n *nodes) summarizeAnswers(ctx context.Context, s workflow.State) (workflow.NodeResult, error) {
	var questions []clarify.Question
	if s.Has(workflow.FieldQuestions) {
		if err := workflow.Decode(s, workflow.FieldQuestions, &questions); err != nil {
			return workflow.NodeResult{}, err
		}
	}

	summary := n.clarify.Summarize(ctx, questions, decodeRounds(s))
	return workflow.NodeResult{Patch: workflow.Patch{
		workflow.FieldAnswerSummary: summary,
	}}, nil
}

// collectDocuments turns enrichment output into generation sources, crawled
// pages first.
func (n *nodes) collectDocuments(_ context.Context, s workflow.State) (workflow.NodeResult, error) {
	var enriched []enricher.EnrichedResult
	if s.Has(workflow.FieldEnriched) {
		if err := workflow.Decode(s, workflow.FieldEnriched, &enriched); err != nil {
			return workflow.NodeResult{}, err
		}
	}

	docs := make([]assembly.Document, 0, maxDocuments)
	appendDoc := func(r enricher.EnrichedResult) {
		if len(docs) >= maxDocuments || r.Content == "" {
			return
		}
		docs = append(docs, assembly.Document{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
		})
	}
	for _, r := range enriched {
		if r.Crawled {
			appendDoc(r)
		}
	}
	for _, r := range enriched {
		if !r.Crawled {
			appendDoc(r)
		}
	}

	return workflow.NodeResult{Patch: workflow.Patch{
		workflow.FieldDocuments: docs,
	}}, nil
}

// finalGenerate produces the document. Unlike the research steps there is no
// degraded path; a failure here fails the thread.
func (n *nodes) finalGenerate(ctx context.Context, s workflow.State) (workflow.NodeResult, error) {
	var docs []assembly.Document
	if s.Has(workflow.FieldDocuments) {
		if err := workflow.Decode(s, workflow.FieldDocuments, &docs); err != nil {
			return workflow.NodeResult{}, err
		}
	}
	knowledge := map[string]string{}
	if s.Has(workflow.FieldKnowledge) {
		if err := workflow.Decode(s, workflow.FieldKnowledge, &knowledge); err != nil {
			return workflow.NodeResult{}, err
		}
	}

	document, err := n.assembler.Generate(ctx, assembly.Input{
		Topic:         s.GetString(workflow.FieldTopic),
		Details:       s.GetString(workflow.FieldDetails),
		RequestType:   s.GetString(workflow.FieldRequestType),
		Locale:        s.GetString(workflow.FieldLocale),
		AnswerSummary: s.GetString(workflow.FieldAnswerSummary),
		Documents:     docs,
		Knowledge:     knowledge,
	})
	if err != nil {
		return workflow.NodeResult{}, err
	}

	return workflow.NodeResult{Patch: workflow.Patch{
		workflow.FieldFinalResult: document,
	}}, nil
}

// decodeRounds reads the accumulated answer rounds, tolerating absence.
func decodeRounds(s workflow.State) []clarify.AnswerSet {
	if !s.Has(workflow.FieldAnswerRounds) {
		return nil
	}
	var rounds []clarify.AnswerSet
	if err := workflow.Decode(s, workflow.FieldAnswerRounds, &rounds); err != nil {
		return nil
	}
	return rounds
}

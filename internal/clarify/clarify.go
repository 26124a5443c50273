// Package clarify generates clarifying questions for a drafting session and
// summarizes the user's answers into downstream generation context.
package clarify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fraktionswerk/draftflow/internal/aijson"
	"github.com/fraktionswerk/draftflow/internal/capability"
	"github.com/fraktionswerk/draftflow/internal/metrics"
	"github.com/fraktionswerk/draftflow/internal/util"
)

// Question is one clarifying question presented to the user.
type Question struct {
	ID               string   `json:"id" yaml:"id"`
	Text             string   `json:"text" yaml:"text"`
	Format           string   `json:"format" yaml:"format"` // "text", "select", "number"
	Options          []string `json:"options,omitempty" yaml:"options,omitempty"`
	AllowMultiSelect bool     `json:"allow_multi_select,omitempty" yaml:"allow_multi_select,omitempty"`
	AllowCustom      bool     `json:"allow_custom,omitempty" yaml:"allow_custom,omitempty"`
}

// AnswerSet maps question IDs to answer values for one clarification round.
type AnswerSet map[string]string

// SkippedAnswer marks a question the user explicitly declined to answer.
const SkippedAnswer = "__skipped__"

// Context is the accumulated session context questions are generated from.
type Context struct {
	Topic       string
	Details     string
	RequestType string
	Locale      string
	// Highlights are short research findings worth asking about.
	Highlights []string
}

// Config bounds the clarification engine.
type Config struct {
	MinQuestions int
	MaxQuestions int
}

// Engine generates and summarizes clarifications.
type Engine struct {
	ai      capability.AIClient
	catalog *Catalog
	cfg     Config
	logger  *zap.Logger
}

// New creates a clarification engine.
func New(ai capability.AIClient, catalog *Catalog, cfg Config, logger *zap.Logger) *Engine {
	if cfg.MinQuestions <= 0 {
		cfg.MinQuestions = 2
	}
	if cfg.MaxQuestions < cfg.MinQuestions {
		cfg.MaxQuestions = 5
	}
	return &Engine{ai: ai, catalog: catalog, cfg: cfg, logger: logger}
}

// GenerateQuestions produces a bounded set of clarifying questions via one
// structured AI call. Absent or unparsable tool output falls back to the
// static catalog for the request type; the result is never empty.
func (e *Engine) GenerateQuestions(ctx context.Context, qctx Context) []Question {
	resp, err := e.ai.Generate(ctx, capability.GenerationRequest{
		Purpose:      "question_generation",
		SystemPrompt: buildQuestionPrompt(e.cfg.MaxQuestions, qctx),
		Messages: []capability.Message{
			{Role: "user", Content: buildQuestionContent(qctx)},
		},
		Options: capability.GenerationOptions{
			MaxTokens:   1024,
			Temperature: 0.4,
			ForceTool:   "ask_clarifying_questions",
		},
	})

	questions := e.parseQuestions(resp, err)
	if len(questions) < e.cfg.MinQuestions {
		metrics.QuestionFallbacks.WithLabelValues(qctx.RequestType).Inc()
		e.logger.Warn("Question generation degraded to static catalog",
			zap.String("request_type", qctx.RequestType),
			zap.Int("generated", len(questions)),
			zap.Error(err),
		)
		questions = e.catalog.QuestionsFor(qctx.RequestType)
	}
	if len(questions) > e.cfg.MaxQuestions {
		questions = questions[:e.cfg.MaxQuestions]
	}
	return questions
}

func (e *Engine) parseQuestions(resp *capability.GenerationResponse, callErr error) []Question {
	if callErr != nil || resp == nil || !resp.Success || len(resp.ToolCalls) == 0 {
		return nil
	}

	var parsed struct {
		Questions []Question `json:"questions"`
	}
	if err := aijson.Parse(string(resp.ToolCalls[0].Arguments), &parsed); err != nil {
		e.logger.Warn("Failed to parse question tool call", zap.Error(err))
		return nil
	}

	var out []Question
	for i, q := range parsed.Questions {
		q.Text = strings.TrimSpace(q.Text)
		if q.Text == "" {
			continue
		}
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", i+1)
		}
		if q.Format == "" {
			q.Format = "text"
		}
		out = append(out, q)
	}
	return out
}

// Summarize filters answered questions, builds question/answer pairs and
// issues one AI call for a coherent prose summary. Empty input yields an
// empty summary. An AI failure degrades to a plain-text pair listing rather
// than an error.
func (e *Engine) Summarize(ctx context.Context, questions []Question, rounds []AnswerSet) string {
	pairs := answeredPairs(questions, rounds)
	if len(pairs) == 0 {
		return ""
	}

	var content strings.Builder
	for _, p := range pairs {
		content.WriteString(fmt.Sprintf("Frage: %s\nAntwort: %s\n\n", p[0], p[1]))
	}

	resp, err := e.ai.Generate(ctx, capability.GenerationRequest{
		Purpose:      "answer_summary",
		SystemPrompt: summaryPrompt,
		Messages: []capability.Message{
			{Role: "user", Content: content.String()},
		},
		Options: capability.GenerationOptions{MaxTokens: 768, Temperature: 0.3},
	})
	if err != nil || resp == nil || !resp.Success || strings.TrimSpace(resp.Content) == "" {
		e.logger.Warn("Answer summarization degraded to plain pair listing", zap.Error(err))
		return content.String()
	}
	return strings.TrimSpace(resp.Content)
}

// answeredPairs returns [question, answer] pairs for every question with a
// real answer in any round; later rounds win for a repeated question ID.
func answeredPairs(questions []Question, rounds []AnswerSet) [][2]string {
	latest := make(map[string]string)
	for _, round := range rounds {
		for id, answer := range round {
			answer = strings.TrimSpace(answer)
			if answer == "" || answer == SkippedAnswer {
				continue
			}
			latest[id] = answer
		}
	}

	var pairs [][2]string
	for _, q := range questions {
		if answer, ok := latest[q.ID]; ok {
			pairs = append(pairs, [2]string{q.Text, answer})
		}
	}
	return pairs
}

const summaryPrompt = `Du fasst die Antworten eines Nutzers auf Rückfragen zu einem
Dokumentenentwurf zusammen. Schreibe eine knappe, zusammenhängende Zusammenfassung
in Prosa, die alle inhaltlichen Vorgaben des Nutzers enthält. Keine Aufzählung,
keine Bewertung, keine Rückfragen.`

func buildQuestionPrompt(maxQuestions int, qctx Context) string {
	var sb strings.Builder
	sb.WriteString("You prepare clarifying questions before drafting a civic document.\n")
	sb.WriteString(fmt.Sprintf("Document type: %q, locale: %s.\n", qctx.RequestType, qctx.Locale))
	sb.WriteString(fmt.Sprintf("Ask between 2 and %d questions, in the user's language.\n", maxQuestions))
	sb.WriteString("Only ask what materially changes the draft; never ask for facts the research already settled.\n\n")
	sb.WriteString("Answer via the ask_clarifying_questions tool:\n")
	sb.WriteString(`{"questions": [{"id": "q1", "text": "...", "format": "text|select|number", "options": [], "allow_multi_select": false, "allow_custom": false}]}` + "\n")
	return sb.String()
}

func buildQuestionContent(qctx Context) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Thema\n%s\n", qctx.Topic))
	if qctx.Details != "" {
		sb.WriteString(fmt.Sprintf("\n## Details\n%s\n", util.TruncateString(qctx.Details, 600, true)))
	}
	if len(qctx.Highlights) > 0 {
		sb.WriteString("\n## Rechercheergebnisse\n")
		for _, h := range qctx.Highlights {
			sb.WriteString("- " + util.TruncateString(h, 200, true) + "\n")
		}
	}
	return sb.String()
}

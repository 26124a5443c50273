// Package assembly builds the final generation request from everything the
// session accumulated and produces the document text.
package assembly

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fraktionswerk/draftflow/internal/capability"
	"github.com/fraktionswerk/draftflow/internal/util"
)

// Document is one enrichment-derived source passed into final generation.
type Document struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Input is everything final generation needs.
type Input struct {
	Topic         string
	Details       string
	RequestType   string
	Locale        string
	AnswerSummary string
	Documents     []Document
	Knowledge     map[string]string
}

const basePersona = `Du bist Referent:in einer kommunalpolitischen Fraktion und
verfasst Dokumente in klarem, sachlichem Deutsch. Du arbeitest faktenbasiert,
nennst Quellen, wo sie vorliegen, und erfindest keine Zahlen oder Beschlüsse.`

var personaExtensions = map[string]string{
	"antrag": `Du schreibst einen Antrag für die Stadtrats- oder Gemeinderatssitzung:
Betreff, Beschlussvorschlag in nummerierten Punkten, danach eine Begründung.`,
	"anfrage": `Du schreibst eine Anfrage an die Verwaltung: Betreff, kurze
Einleitung zum Anlass, dann präzise nummerierte Einzelfragen.`,
	"rede": `Du schreibst ein Redemanuskript: Anrede, klarer Spannungsbogen,
kurze Sätze, Absätze als Sprechpausen.`,
	"pressemitteilung": `Du schreibst eine Pressemitteilung: Überschrift,
Untertitel, Kernbotschaft im ersten Absatz, mindestens ein wörtliches Zitat.`,
}

const personaAppendix = `Gib ausschließlich das fertige Dokument aus, ohne
Kommentar, ohne Rückfragen, ohne Markdown-Zäune.`

// maxDocumentChars caps how much of each source document enters the prompt.
const maxDocumentChars = 2400

// Assembler builds and executes final document generation.
type Assembler struct {
	ai     capability.AIClient
	logger *zap.Logger
}

// New creates an assembler.
func New(ai capability.AIClient, logger *zap.Logger) *Assembler {
	return &Assembler{ai: ai, logger: logger}
}

// Assemble composes the generation request: base persona, request-type
// extension, appendix, the clarification summary, and enrichment documents.
func (a *Assembler) Assemble(in Input) capability.GenerationRequest {
	var system strings.Builder
	system.WriteString(basePersona)
	system.WriteString("\n\n")
	if ext, ok := personaExtensions[in.RequestType]; ok {
		system.WriteString(ext)
		system.WriteString("\n\n")
	}
	system.WriteString(personaAppendix)

	var user strings.Builder
	user.WriteString(fmt.Sprintf("## Thema\n%s\n", in.Topic))
	if in.Details != "" {
		user.WriteString(fmt.Sprintf("\n## Details\n%s\n", in.Details))
	}
	if in.AnswerSummary != "" {
		user.WriteString(fmt.Sprintf("\n## Vorgaben aus den Rückfragen\n%s\n", in.AnswerSummary))
	}
	if len(in.Knowledge) > 0 {
		user.WriteString("\n## Hintergrundwissen\n")
		for key, val := range in.Knowledge {
			user.WriteString(fmt.Sprintf("- %s: %s\n", key, util.TruncateString(val, 300, true)))
		}
	}
	if len(in.Documents) > 0 {
		user.WriteString("\n## Quellen\n")
		for i, doc := range in.Documents {
			user.WriteString(fmt.Sprintf("\n### Quelle %d: %s (%s)\n", i+1, doc.Title, doc.URL))
			user.WriteString(util.TruncateString(doc.Content, maxDocumentChars, true))
			user.WriteString("\n")
		}
	}

	return capability.GenerationRequest{
		Purpose:      "final_generation",
		SystemPrompt: system.String(),
		Messages: []capability.Message{
			{Role: "user", Content: user.String()},
		},
		Options: capability.GenerationOptions{MaxTokens: 4096, Temperature: 0.6},
	}
}

// Generate runs final generation. Unlike every earlier phase there is no
// degraded fallback: a failure here fails the workflow.
func (a *Assembler) Generate(ctx context.Context, in Input) (string, error) {
	resp, err := a.ai.Generate(ctx, a.Assemble(in))
	if err != nil {
		return "", fmt.Errorf("final generation: %w", err)
	}
	if !resp.Success {
		return "", fmt.Errorf("final generation rejected: %s", resp.Error)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", fmt.Errorf("final generation returned empty document")
	}

	a.logger.Info("Final document generated",
		zap.String("request_type", in.RequestType),
		zap.Int("chars", len(text)),
		zap.Int("sources", len(in.Documents)),
	)
	return text, nil
}

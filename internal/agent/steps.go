package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/retrieval"
)

const (
	// Below this many results reordering cannot change which chunks reach the
	// prompt, so the reranking step is skipped.
	rerankMinResults = 4

	noAnswerMessage = "I could not find relevant information in your documents to answer this question."

	citationSnippetRunes = 200
)

// analyze classifies the query's intent. Conversational queries (greetings,
// meta questions about the assistant) skip retrieval entirely.
func (o *Orchestrator) analyze(ctx context.Context, session *domain.Session) error {
	query := strings.TrimSpace(session.OriginalQuery)
	if query == "" {
		return domain.ErrEmptyQuery
	}

	intent := classifyHeuristic(query)
	if o.llm != nil {
		answer, err := o.llm.Complete(ctx, analyzeSystemPrompt, query)
		if err != nil {
			// Heuristic classification stands in; misclassifying toward
			// retrieval only costs an extra search.
			session.Trace = append(session.Trace, domain.TraceEntry{
				Step:   domain.StepAnalyzing,
				Detail: "intent model unavailable, using heuristic",
				At:     time.Now().UTC(),
			})
		} else if strings.Contains(strings.ToLower(answer), "conversational") {
			intent = domain.IntentConversational
		} else {
			intent = domain.IntentRetrieval
		}
	}
	session.Intent = intent

	if intent == domain.IntentConversational {
		o.transition(session, domain.StepGenerating, "conversational intent, skipping retrieval")
		return nil
	}
	if needsRewrite(query) {
		o.transition(session, domain.StepRewriting, "short or ambiguous query, rewriting before retrieval")
		return nil
	}
	o.transition(session, domain.StepRetrieving, "retrieval intent")
	return nil
}

// needsRewrite flags queries worth reformulating before the first retrieval
// pass: very short ones carry too few search terms, and bare anaphora have
// nothing in a fresh session to resolve against.
func needsRewrite(query string) bool {
	words := strings.Fields(query)
	if len(words) < 4 {
		return true
	}
	for _, w := range words {
		switch strings.ToLower(strings.Trim(w, ".,;:!?\"'()")) {
		case "it", "this", "that", "they", "them", "these", "those":
			return true
		}
	}
	return false
}

// rewrite reformulates the query. It is entered on the first pass for short or
// ambiguous queries, and on validation retries, where the previous phrasing
// retrieved context that did not support an answer.
func (o *Orchestrator) rewrite(ctx context.Context, session *domain.Session) error {
	if o.llm == nil {
		o.transition(session, domain.StepRetrieving, "no rewrite model, continuing with original query")
		return nil
	}

	prompt := fmt.Sprintf("Original question: %s", session.OriginalQuery)
	if session.RewrittenQuery != "" {
		prompt += fmt.Sprintf("\nPrevious attempt: %s", session.RewrittenQuery)
	}
	rewritten, err := o.llm.Complete(ctx, rewriteSystemPrompt, prompt)
	if err != nil || strings.TrimSpace(rewritten) == "" {
		o.transition(session, domain.StepRetrieving, "rewrite unavailable, continuing with original query")
		return nil
	}

	session.RewrittenQuery = strings.TrimSpace(rewritten)
	o.transition(session, domain.StepRetrieving,
		fmt.Sprintf("rewrote query to %q", session.RewrittenQuery))
	return nil
}

// retrieve runs the hybrid search under its own timeout. No results is not a
// failure: the session completes with an explicit no-answer response rather
// than inventing one.
func (o *Orchestrator) retrieve(ctx context.Context, session *domain.Session) error {
	stepCtx, cancel := context.WithTimeout(ctx, o.cfg.RetrievalTimeout)
	defer cancel()

	result, err := o.retriever.Retrieve(stepCtx, session.TenantID, session.EffectiveQuery(), o.cfg.TopK)
	if err != nil {
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			return domain.NewDomainErrorWithCause(domain.ErrCodeRetrievalUnavailable,
				"retrieval timed out", err)
		}
		return err
	}

	session.Retrieved = result.Chunks
	session.Degraded = session.Degraded || result.Degraded

	if len(result.Chunks) == 0 {
		session.FinalAnswer = noAnswerMessage
		o.finish(session, domain.SessionStatusCompleted, "no matching chunks")
		return nil
	}

	if len(result.Chunks) < rerankMinResults {
		o.transition(session, domain.StepGenerating,
			fmt.Sprintf("retrieved %d chunks, too few to rerank", len(result.Chunks)))
		return nil
	}
	o.transition(session, domain.StepReranking,
		fmt.Sprintf("retrieved %d chunks (degraded=%v)", len(result.Chunks), result.Degraded))
	return nil
}

// rerank reorders the retrieved set against the effective query before
// prompting.
func (o *Orchestrator) rerank(session *domain.Session) error {
	reranker := retrieval.NewLexicalReranker()
	session.Retrieved = reranker.Rerank(session.EffectiveQuery(), session.Retrieved, len(session.Retrieved))
	o.transition(session, domain.StepGenerating, "reranked retrieved chunks")
	return nil
}

// generate produces the answer under the generation timeout. Retrieval-intent
// answers carry citations to the chunks placed in the prompt.
func (o *Orchestrator) generate(ctx context.Context, session *domain.Session) error {
	stepCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerationTimeout)
	defer cancel()

	if session.Intent == domain.IntentConversational {
		answer, err := o.generateConversational(stepCtx, session)
		if err != nil {
			return err
		}
		session.FinalAnswer = answer
		o.finish(session, domain.SessionStatusCompleted, "conversational answer")
		return nil
	}

	answer, err := o.generateGrounded(stepCtx, session)
	if err != nil {
		return err
	}
	session.FinalAnswer = answer
	session.Citations = buildCitations(session.Retrieved)
	o.transition(session, domain.StepValidating, "generated answer")
	return nil
}

func (o *Orchestrator) generateConversational(ctx context.Context, session *domain.Session) (string, error) {
	if o.llm == nil {
		return "Hello! Ask me a question about your documents and I will search them for an answer.", nil
	}
	answer, err := o.llm.Complete(ctx, conversationalSystemPrompt, session.OriginalQuery)
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeGenerationFailed,
			"conversational generation failed", err)
	}
	return answer, nil
}

func (o *Orchestrator) generateGrounded(ctx context.Context, session *domain.Session) (string, error) {
	if o.llm == nil {
		// Extractive fallback: return the best chunk verbatim.
		return session.Retrieved[0].Text, nil
	}

	var b strings.Builder
	for i, chunk := range session.Retrieved {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, chunk.Text)
	}
	prompt := fmt.Sprintf("Context:\n%s\nQuestion: %s", b.String(), session.OriginalQuery)

	answer, err := o.llm.Complete(ctx, groundedSystemPrompt, prompt)
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeGenerationFailed,
			"answer generation failed", err)
	}
	if strings.TrimSpace(answer) == "" {
		return "", domain.NewDomainError(domain.ErrCodeGenerationFailed, "model returned an empty answer")
	}
	return answer, nil
}

// validate checks that the answer is grounded in the retrieved context. An
// unsupported answer loops back through rewriting up to MaxRetries times;
// after that the session fails with a user-safe message rather than shipping
// an answer validation rejected.
func (o *Orchestrator) validate(ctx context.Context, session *domain.Session) error {
	grounded := o.checkGrounded(ctx, session)
	if grounded {
		status := domain.SessionStatusCompleted
		if session.Degraded {
			status = domain.SessionStatusDegraded
		}
		o.finish(session, status, "answer validated")
		return nil
	}

	if session.RetryCount < o.cfg.MaxRetries {
		session.RetryCount++
		session.FinalAnswer = ""
		session.Citations = nil
		o.transition(session, domain.StepRewriting,
			fmt.Sprintf("answer not grounded, retry %d of %d", session.RetryCount, o.cfg.MaxRetries))
		return nil
	}

	session.FinalAnswer = ""
	session.Citations = nil
	return domain.NewDomainError(domain.ErrCodeAnswerNotGrounded,
		fmt.Sprintf("answer failed validation after %d rewrite retries", o.cfg.MaxRetries))
}

func (o *Orchestrator) checkGrounded(ctx context.Context, session *domain.Session) bool {
	if o.llm != nil {
		var b strings.Builder
		for i, chunk := range session.Retrieved {
			fmt.Fprintf(&b, "[%d] %s\n\n", i+1, chunk.Text)
		}
		prompt := fmt.Sprintf("Context:\n%s\nAnswer to check: %s", b.String(), session.FinalAnswer)
		verdict, err := o.llm.Complete(ctx, validateSystemPrompt, prompt)
		if err == nil {
			return strings.Contains(strings.ToLower(verdict), "yes")
		}
		// Fall through to the lexical check when the validator is down.
	}
	return lexicallyGrounded(session.FinalAnswer, session.Retrieved)
}

// lexicallyGrounded accepts an answer when a meaningful share of its content
// words appear in the retrieved text. Crude, but it catches answers the model
// produced from nowhere.
func lexicallyGrounded(answer string, retrieved []domain.RetrievedChunk) bool {
	words := strings.Fields(strings.ToLower(answer))
	if len(words) == 0 {
		return false
	}

	var corpus strings.Builder
	for _, c := range retrieved {
		corpus.WriteString(strings.ToLower(c.Text))
		corpus.WriteByte(' ')
	}
	text := corpus.String()

	checked, hits := 0, 0
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) < 4 {
			continue
		}
		checked++
		if strings.Contains(text, w) {
			hits++
		}
	}
	if checked == 0 {
		return true
	}
	return float64(hits)/float64(checked) >= 0.3
}

func buildCitations(retrieved []domain.RetrievedChunk) []domain.Citation {
	citations := make([]domain.Citation, 0, len(retrieved))
	for _, chunk := range retrieved {
		snippet := chunk.Text
		if runes := []rune(snippet); len(runes) > citationSnippetRunes {
			snippet = string(runes[:citationSnippetRunes]) + "…"
		}
		citations = append(citations, domain.Citation{
			ChunkID:    chunk.ChunkID,
			DocumentID: chunk.DocumentID,
			Ordinal:    chunk.Ordinal,
			Snippet:    snippet,
			Score:      chunk.Score,
		})
	}
	return citations
}

// classifyHeuristic flags short greetings and assistant meta-questions as
// conversational; everything else goes through retrieval.
func classifyHeuristic(query string) domain.QueryIntent {
	lower := strings.ToLower(strings.TrimSpace(query))
	greetings := []string{"hi", "hello", "hey", "thanks", "thank you", "good morning", "good afternoon"}
	for _, g := range greetings {
		if lower == g || strings.HasPrefix(lower, g+" ") || strings.HasPrefix(lower, g+",") || strings.HasPrefix(lower, g+"!") {
			return domain.IntentConversational
		}
	}
	meta := []string{"who are you", "what can you do", "how do you work"}
	for _, m := range meta {
		if strings.Contains(lower, m) {
			return domain.IntentConversational
		}
	}
	return domain.IntentRetrieval
}

const (
	analyzeSystemPrompt = "Classify the user's message. Reply with exactly one word: " +
		"\"retrieval\" if answering requires searching their documents, or " +
		"\"conversational\" if it is a greeting or a question about the assistant itself."

	rewriteSystemPrompt = "Rewrite the user's question as a standalone search query. " +
		"Expand abbreviations, resolve pronouns, and keep every constraint from the original. " +
		"Reply with the rewritten query only."

	groundedSystemPrompt = "Answer the question using only the numbered context passages. " +
		"If the context does not contain the answer, say you could not find it. " +
		"Do not use outside knowledge."

	conversationalSystemPrompt = "You are a document search assistant. " +
		"Respond briefly and offer to search the user's documents."

	validateSystemPrompt = "Does the context support every factual claim in the answer? " +
		"Reply with exactly \"yes\" or \"no\"."
)

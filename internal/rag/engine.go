package rag

import (
	"context"
	"fmt"
	"strings"

	"reportrag/internal/apperr"
	"reportrag/internal/contextutil"
	"reportrag/internal/llm"
	"reportrag/internal/vectorstore"
)

// NoContextAnswer is returned without calling the model when nothing was retrieved.
const NoContextAnswer = "I couldn't find any relevant information in the ingested documents to answer this question."

const promptTemplate = "Answer the question based only on the following context:\n%s\n\nQuestion: %s\n"

// Engine provides RAG (Retrieval-Augmented Generation) functionality.
type Engine interface {
	// Ask answers a question using RAG by retrieving relevant chunks and generating an answer.
	Ask(ctx context.Context, req AskRequest) (AskResponse, error)
	// AskStream is like Ask but passes answer fragments to fn as they are generated.
	// The returned response has an empty Answer.
	AskStream(ctx context.Context, req AskRequest, fn func(chunk string) error) (AskResponse, error)
}

// Retriever returns the k chunks most similar to query, best first.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]vectorstore.Result, error)
}

// ragEngine implements the Engine interface.
type ragEngine struct {
	retriever Retriever
	generator llm.Generator
}

// NewEngine creates a new RAG engine.
func NewEngine(retriever Retriever, generator llm.Generator) Engine {
	return &ragEngine{
		retriever: retriever,
		generator: generator,
	}
}

// FormatContext joins chunk texts with a blank line.
func FormatContext(texts []string) string {
	return strings.Join(texts, "\n\n")
}

// BuildPrompt fills the answer template with the formatted context and the question.
func BuildPrompt(context, question string) string {
	return fmt.Sprintf(promptTemplate, context, question)
}

// prepare retrieves chunks for req and builds the prompt. ok is false when nothing was retrieved.
func (e *ragEngine) prepare(ctx context.Context, req AskRequest) (resp AskResponse, prompt string, ok bool, err error) {
	logger := contextutil.LoggerFromContext(ctx)

	if strings.TrimSpace(req.Question) == "" {
		return AskResponse{}, "", false, &apperr.ValidationError{Field: "question", Message: "question is required"}
	}

	logger.InfoContext(ctx, "RAG query started", "question", req.Question, "k", req.K)

	results, err := e.retriever.Search(ctx, req.Question, req.K)
	if err != nil {
		logger.ErrorContext(ctx, "failed to retrieve context", "error", err)
		return AskResponse{}, "", false, fmt.Errorf("failed to retrieve context: %w", err)
	}

	logger.InfoContext(ctx, "vector search completed", "results_count", len(results), "k_requested", req.K)

	references := make([]Reference, 0, len(results))
	texts := make([]string, 0, len(results))
	var retrieved []RetrievedChunk
	for i, r := range results {
		references = append(references, Reference{DocumentID: r.SourceID, ChunkIndex: r.Index, Score: r.Score})
		texts = append(texts, r.Text)
		if req.Debug {
			retrieved = append(retrieved, RetrievedChunk{ChunkID: r.ID, Score: r.Score, Text: r.Text, Rank: i + 1})
		}
	}
	resp = AskResponse{References: references}

	if len(results) == 0 {
		logger.InfoContext(ctx, "no search results found")
		resp.Answer = NoContextAnswer
		if req.Debug {
			resp.Debug = &DebugInfo{RetrievedChunks: []RetrievedChunk{}}
		}
		return resp, "", false, nil
	}

	prompt = BuildPrompt(FormatContext(texts), req.Question)
	logger.DebugContext(ctx, "prompt built", "prompt_length", len(prompt), "chunks_included", len(texts))

	if req.Debug {
		resp.Debug = &DebugInfo{RetrievedChunks: retrieved, Prompt: prompt, Model: e.generator.ModelName()}
	}
	return resp, prompt, true, nil
}

// Ask answers a question using RAG.
func (e *ragEngine) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	resp, prompt, ok, err := e.prepare(ctx, req)
	if err != nil || !ok {
		return resp, err
	}

	answer, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		logger.ErrorContext(ctx, "failed to get LLM response", "error", err)
		return AskResponse{}, fmt.Errorf("failed to get LLM response: %w", err)
	}

	logger.InfoContext(ctx, "RAG query completed", "chunks_used", len(resp.References), "answer_length", len(answer))
	resp.Answer = answer
	return resp, nil
}

// AskStream answers a question using RAG, streaming the answer through fn.
func (e *ragEngine) AskStream(ctx context.Context, req AskRequest, fn func(chunk string) error) (AskResponse, error) {
	resp, prompt, ok, err := e.prepare(ctx, req)
	if err != nil {
		return resp, err
	}
	if !ok {
		answer := resp.Answer
		resp.Answer = ""
		return resp, fn(answer)
	}

	if err := e.generator.Stream(ctx, prompt, fn); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to stream LLM response", "error", err)
		return AskResponse{}, fmt.Errorf("failed to stream LLM response: %w", err)
	}
	return resp, nil
}

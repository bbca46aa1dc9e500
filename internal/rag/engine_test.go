package rag

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"reportrag/internal/apperr"
	"reportrag/internal/llm/mocks"
	"reportrag/internal/vectorstore"
)

// fakeRetriever returns canned results and records the last call.
type fakeRetriever struct {
	results []vectorstore.Result
	err     error

	lastQuery string
	lastK     int
}

func (f *fakeRetriever) Search(ctx context.Context, query string, k int) ([]vectorstore.Result, error) {
	f.lastQuery = query
	f.lastK = k
	return f.results, f.err
}

func twoResults() []vectorstore.Result {
	return []vectorstore.Result{
		{ID: "annual:3", SourceID: "annual", Index: 3, Text: "Revenue grew 12%.", Score: 0.91},
		{ID: "q4:0", SourceID: "q4", Index: 0, Text: "Margins held steady.", Score: 0.74},
	}
}

func TestFormatContext(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  string
	}{
		{name: "empty", texts: nil, want: ""},
		{name: "single", texts: []string{"one"}, want: "one"},
		{name: "blank line between chunks", texts: []string{"one", "two", "three"}, want: "one\n\ntwo\n\nthree"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatContext(tt.texts); got != tt.want {
				t.Errorf("FormatContext() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("ctx line", "What changed?")
	want := "Answer the question based only on the following context:\nctx line\n\nQuestion: What changed?\n"
	if got != want {
		t.Errorf("BuildPrompt() = %q, want %q", got, want)
	}
}

func TestEngine_Ask(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	wantPrompt := BuildPrompt("Revenue grew 12%.\n\nMargins held steady.", "How did revenue develop?")
	generator := mocks.NewMockGenerator(ctrl)
	generator.EXPECT().Generate(gomock.Any(), wantPrompt).Return("Revenue grew 12%.", nil)

	retriever := &fakeRetriever{results: twoResults()}
	engine := NewEngine(retriever, generator)

	resp, err := engine.Ask(context.Background(), AskRequest{Question: "How did revenue develop?", K: 2})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Answer != "Revenue grew 12%." {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if retriever.lastQuery != "How did revenue develop?" || retriever.lastK != 2 {
		t.Errorf("retriever called with (%q, %d)", retriever.lastQuery, retriever.lastK)
	}
	wantRefs := []Reference{
		{DocumentID: "annual", ChunkIndex: 3, Score: 0.91},
		{DocumentID: "q4", ChunkIndex: 0, Score: 0.74},
	}
	if !reflect.DeepEqual(resp.References, wantRefs) {
		t.Errorf("References = %+v, want %+v", resp.References, wantRefs)
	}
	if resp.Debug != nil {
		t.Error("Debug should be nil when not requested")
	}
}

func TestEngine_Ask_Debug(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	generator := mocks.NewMockGenerator(ctrl)
	generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("answer", nil)
	generator.EXPECT().ModelName().Return("llama")

	engine := NewEngine(&fakeRetriever{results: twoResults()}, generator)
	resp, err := engine.Ask(context.Background(), AskRequest{Question: "q", Debug: true})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Debug == nil {
		t.Fatal("Debug should be set")
	}
	if resp.Debug.Model != "llama" || !strings.Contains(resp.Debug.Prompt, "Question: q") {
		t.Errorf("Debug = %+v", resp.Debug)
	}
	chunks := resp.Debug.RetrievedChunks
	if len(chunks) != 2 || chunks[0].Rank != 1 || chunks[1].Rank != 2 || chunks[0].ChunkID != "annual:3" {
		t.Errorf("RetrievedChunks = %+v", chunks)
	}
}

func TestEngine_Ask_NoResults(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// Generate must not be called
	generator := mocks.NewMockGenerator(ctrl)
	engine := NewEngine(&fakeRetriever{results: []vectorstore.Result{}}, generator)

	resp, err := engine.Ask(context.Background(), AskRequest{Question: "anything"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Answer != NoContextAnswer {
		t.Errorf("Answer = %q, want NoContextAnswer", resp.Answer)
	}
	if resp.References == nil || len(resp.References) != 0 {
		t.Errorf("References = %v, want empty slice", resp.References)
	}
}

func TestEngine_Ask_Errors(t *testing.T) {
	tests := []struct {
		name     string
		question string
		retErr   error
		genErr   error
		wantErr  error
	}{
		{name: "blank question", question: " ", wantErr: apperr.ErrInvalidArgument},
		{name: "retrieval fails", question: "q", retErr: fmt.Errorf("%w: db closed", apperr.ErrStoreUnavailable), wantErr: apperr.ErrStoreUnavailable},
		{name: "generation fails", question: "q", genErr: fmt.Errorf("%w: timeout", apperr.ErrModelUnavailable), wantErr: apperr.ErrModelUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			generator := mocks.NewMockGenerator(ctrl)
			if tt.genErr != nil {
				generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("", tt.genErr)
			}
			engine := NewEngine(&fakeRetriever{results: twoResults(), err: tt.retErr}, generator)

			_, err := engine.Ask(context.Background(), AskRequest{Question: tt.question})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Ask() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEngine_AskStream(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	generator := mocks.NewMockGenerator(ctrl)
	generator.EXPECT().
		Stream(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, fn func(string) error) error {
			for _, c := range []string{"Revenue ", "grew."} {
				if err := fn(c); err != nil {
					return err
				}
			}
			return nil
		})

	engine := NewEngine(&fakeRetriever{results: twoResults()}, generator)
	var sb strings.Builder
	resp, err := engine.AskStream(context.Background(), AskRequest{Question: "q"}, func(c string) error {
		sb.WriteString(c)
		return nil
	})
	if err != nil {
		t.Fatalf("AskStream() error = %v", err)
	}
	if sb.String() != "Revenue grew." {
		t.Errorf("streamed answer = %q", sb.String())
	}
	if len(resp.References) != 2 || resp.Answer != "" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestEngine_AskStream_NoResults(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	engine := NewEngine(&fakeRetriever{}, mocks.NewMockGenerator(ctrl))
	var got []string
	_, err := engine.AskStream(context.Background(), AskRequest{Question: "q"}, func(c string) error {
		got = append(got, c)
		return nil
	})
	if err != nil {
		t.Fatalf("AskStream() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{NoContextAnswer}) {
		t.Errorf("streamed = %q, want NoContextAnswer", got)
	}
}

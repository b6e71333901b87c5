// llm.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	ssaflow "github.com/BlackVectorOps/ssaflow"
	"google.golang.org/genai"
)

const explainSystemPrompt = `You are a compiler engineer explaining data flow to a reviewer.
You receive a JSON summary of one Go function: its control-flow blocks, variables,
merge (phi) placements and resolved definition-to-use edges.

Explain, in plain prose:
1. Which variables carry values across loop iterations (loop-carried merges).
2. Which writes feed which reads, highlighting anything surprising.
3. Any variables the analysis had to exclude and what that means for the reader.

Be concrete and cite line numbers from the summary. Do not invent facts not
present in the input.`

// runExplain asks a Gemini model to narrate one function's def-use summary.
// There is no offline fallback: without an API key the command fails rather
// than inventing an explanation.
func runExplain(w io.Writer, target, funcName, model string) error {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is not set; explain requires a live model")
	}

	dir, patterns := targetPatterns(target)
	units, err := ssaflow.AnalyzePackagesDir(context.Background(), dir, 0, patterns...)
	if err != nil {
		return err
	}
	var su *ssaflow.SourceUnit
	for _, u := range units {
		if u.Name == funcName {
			su = u
			break
		}
	}
	if su == nil {
		return fmt.Errorf("function %q not found in %s", funcName, target)
	}
	if su.Err != nil {
		return fmt.Errorf("function %q failed analysis: %w", funcName, su.Err)
	}

	payload, err := json.MarshalIndent(ssaflow.Summarize(su), "", "  ")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	text, err := generateExplanation(ctx, apiKey, model, string(payload))
	if err != nil {
		return fmt.Errorf("gemini api call failed: %w", err)
	}
	fmt.Fprintln(w, text)
	return nil
}

func generateExplanation(ctx context.Context, apiKey, model, payload string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create gemini client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: explainSystemPrompt}},
		},
	}
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: "Explain this function's data flow:\n```json\n" + payload + "\n```"},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty candidate from Gemini")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

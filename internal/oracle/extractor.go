package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Extraction is the structured reading of one crawled document.
type Extraction struct {
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Authors    []string `json:"authors,omitempty"`
	Paragraphs []string `json:"paragraphs,omitempty"`
}

// Extractor reads a document into an Extraction.
type Extractor interface {
	Extract(ctx context.Context, url, content string) (Extraction, error)
}

const extractSystemPrompt = `You read research documents.
Answer with a JSON object {"title": string, "summary": string, "authors": [string], "paragraphs": [string]}.
The summary is at most three sentences. Paragraphs are the document's main
body paragraphs, verbatim, in order.`

// ChatExtractor is an Extractor backed by a chat model.
type ChatExtractor struct {
	client *OpenAIClient
	model  string
}

func NewChatExtractor(client *OpenAIClient, model string) *ChatExtractor {
	return &ChatExtractor{client: client, model: model}
}

func (e *ChatExtractor) Extract(ctx context.Context, url, content string) (Extraction, error) {
	prompt := fmt.Sprintf("Source: %s\n\n%s", url, truncateTo(content, 4*maxContextChars))
	out, err := e.client.Complete(ctx, e.model, extractSystemPrompt, prompt, true)
	if err != nil {
		return Extraction{}, err
	}
	var ex Extraction
	if err := json.Unmarshal([]byte(out), &ex); err != nil {
		return Extraction{}, fmt.Errorf("failed to parse extraction: %w", err)
	}
	return ex, nil
}

var (
	markupPattern    = regexp.MustCompile(`(?s)<script.*?</script>|<style.*?</style>|<[^>]+>`)
	blankLinePattern = regexp.MustCompile(`\n\s*\n`)
)

// PlainExtractor splits text on blank lines: the first block is the title,
// the second the summary, and every block after the title a paragraph.
// Markup is stripped first.
type PlainExtractor struct{}

func (PlainExtractor) Extract(_ context.Context, url, content string) (Extraction, error) {
	text := markupPattern.ReplaceAllString(content, "\n")
	var blocks []string
	for _, b := range blankLinePattern.Split(text, -1) {
		b = strings.Join(strings.Fields(b), " ")
		if b != "" {
			blocks = append(blocks, b)
		}
	}
	if len(blocks) == 0 {
		return Extraction{Title: url}, nil
	}
	ex := Extraction{Title: blocks[0], Paragraphs: blocks[1:]}
	if len(blocks) > 1 {
		ex.Summary = truncateTo(blocks[1], maxContextChars/4)
	}
	return ex, nil
}

func truncateTo(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

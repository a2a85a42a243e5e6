package strategy

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/use-agent/strata/cleaner"
	"github.com/use-agent/strata/detect"
	"github.com/use-agent/strata/models"
)

// Completer is the LLM text-completion collaborator.
type Completer interface {
	Configured() bool
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLMOptions bounds the text sent to the model.
type LLMOptions struct {
	MaxChars int    // default 15000
	MinChars int    // default 100
	Format   string // cleaner.FormatText or cleaner.FormatMarkdown

	// Scope narrows the page to the elements matching a CSS selector.
	// A page without a match is used whole.
	Scope string
	// Exclude drops matching elements (navigation, footers) first.
	Exclude []string
}

const structurePrompt = `You are an expert data scraper. I will give you the raw text extracted from a webpage.
Your ABSOLUTE ONLY JOB is to find any structured data (like list of items, movies, prices, stocks, articles, or tables) inside the text, and output it as a STRICT VALID JSON ARRAY of OBJECTS.
DO NOT output ANY markdown formatting, DO NOT output ` + "```json" + `, JUST output the raw JSON array starting with [ and ending with ].
If you cannot find any meaningful structured data, output [].

RAW TEXT TO ANALYZE:
`

// LLMStructure asks the model to turn the page's visible text into a JSON
// array. It is skipped outright when no credential is configured, and the
// answer is accepted only when it is a non-empty array.
func LLMStructure(ctx context.Context, llm Completer, cl *cleaner.Cleaner, c *models.PageCapture, opts LLMOptions) (*models.ExtractionCandidate, string) {
	if llm == nil || !llm.Configured() {
		return nil, ReasonDisabled
	}
	if c == nil || c.FinalHTML == "" {
		return nil, ReasonNoInput
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = 15000
	}
	if opts.MinChars <= 0 {
		opts.MinChars = 100
	}

	page := cleaner.Exclude(c.FinalHTML, opts.Exclude...)
	if opts.Scope != "" {
		scoped, err := cleaner.Select(page, opts.Scope)
		if err != nil {
			slog.Warn("llm content selector ignored", "selector", opts.Scope, "error", err)
		} else {
			page = scoped
		}
	}
	text := cl.LLMInput(page, sourceOf(c), opts.Format, opts.MaxChars)
	if utf8.RuneCountInString(text) < opts.MinChars {
		return nil, ReasonTooLittleText
	}
	slog.Debug("llm prompt built", "url", sourceOf(c), "chars", utf8.RuneCountInString(text), "est_tokens", cleaner.EstimateTokens(text))

	answer, err := llm.Complete(ctx, structurePrompt+text)
	if err != nil {
		slog.Error("llm structuring failed", "url", sourceOf(c), "code", models.ErrorCode(err), "error", err)
		return nil, "llm call failed: " + models.ErrorCode(err)
	}
	v, ok := detect.ParseJSON(StripFences(answer))
	if !ok {
		return nil, ReasonNoJSON
	}
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		slog.Warn("llm returned no structure", "url", sourceOf(c))
		return nil, ReasonEmpty
	}
	slog.Info("llm structured page", "url", sourceOf(c), "rows", len(arr))
	return accept(models.TechniqueLLMStructured, sourceOf(c), map[string]any{"ai_structured_data": arr}, nil)
}

// StripFences removes a markdown code fence the model added despite the
// prompt.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[3:]
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

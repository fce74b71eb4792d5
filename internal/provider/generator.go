package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/pdfrag/internal/budget"
	"github.com/54b3r/pdfrag/internal/logging"
	"github.com/54b3r/pdfrag/internal/rag"
)

// Context limits applied before the token budget.
const (
	// MaxSnippets is the number of leading snippets given to the model.
	MaxSnippets = 10
	// MaxSnippetChars truncates each snippet.
	MaxSnippetChars = 1200
	// snippetSeparator joins snippets in the context block.
	snippetSeparator = "\n\n---\n\n"
)

// systemPrompt instructs the model to stay within the supplied context.
const systemPrompt = "You are a concise assistant that stays faithful to the supplied context.\n" +
	"Answer only with what the context supports. For summary requests, summarise only the context.\n" +
	"If relevant information is missing, still give the best possible answer and end with a short " +
	"'Limitations' list instead of refusing."

// userPrompt is rendered with the pages, context and question variables.
const userPrompt = "{pages}\n\nCONTEXT (use only what follows):\n{context}\n\nQUESTION: {question}"

// Generator answers a question from retrieved snippets by running a chat
// template and chat model as one compiled eino chain. It is safe for
// concurrent use.
type Generator struct {
	// chain renders the prompt and invokes the model.
	chain compose.Runnable[map[string]any, *schema.Message]
	// timeout bounds each Generate call.
	timeout time.Duration
	// maxContextTokens bounds the estimated prompt size.
	maxContextTokens int
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithTimeout bounds each generation call. Non-positive values are ignored.
func WithTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMaxContextTokens sets the prompt token budget. Non-positive values are ignored.
func WithMaxContextTokens(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxContextTokens = n
		}
	}
}

// NewGenerator compiles the prompt chain around cm.
func NewGenerator(ctx context.Context, cm model.BaseChatModel, opts ...GeneratorOption) (*Generator, error) {
	if cm == nil {
		return nil, fmt.Errorf("provider: chat model is required: %w", rag.ErrConfiguration)
	}
	tpl := prompt.FromMessages(schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt),
	)
	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(tpl).AppendChatModel(cm)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("provider: compile generation chain: %w", err)
	}

	g := &Generator{
		chain:            runnable,
		timeout:          DefaultTimeout,
		maxContextTokens: budget.DefaultMaxContextTokens,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate returns a grounded answer. The first MaxSnippets snippets are
// used, each truncated to MaxSnippetChars, and trailing snippets are dropped
// until the prompt fits the token budget.
func (g *Generator) Generate(ctx context.Context, question string, snippets []rag.Snippet) (string, error) {
	log := logging.FromContext(ctx)

	vars, used := g.promptVars(question, snippets)
	if used < min(len(snippets), MaxSnippets) {
		log.Warn("provider: context trimmed to fit token budget",
			slog.Int("snippets", used),
			slog.Int("max_tokens", g.maxContextTokens),
		)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	msg, err := g.chain.Invoke(ctx, vars)
	if err != nil {
		// Chain errors may not unwrap to the deadline that caused them.
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return "", rag.BackendFailure("provider: generate", err)
	}
	log.Debug("provider: generated answer",
		slog.Int("snippets", used),
		slog.Duration("duration", time.Since(start)),
	)
	return msg.Content, nil
}

// promptVars builds the template variables and reports how many snippets
// made it into the context.
func (g *Generator) promptVars(question string, snippets []rag.Snippet) (map[string]any, int) {
	if len(snippets) > MaxSnippets {
		snippets = snippets[:MaxSnippets]
	}
	texts := make([]string, len(snippets))
	for i, s := range snippets {
		texts[i] = truncateRunes(s.Text, MaxSnippetChars)
	}

	fixed := budget.Estimate(systemPrompt) + budget.Estimate(userPrompt) + budget.Estimate(question)
	n := budget.FitSnippets(fixed, texts, g.maxContextTokens)
	texts, snippets = texts[:n], snippets[:n]

	return map[string]any{
		"pages":    availablePages(snippets),
		"context":  strings.Join(texts, snippetSeparator),
		"question": question,
	}, n
}

// availablePages lists the distinct page values found in the snippets.
func availablePages(snippets []rag.Snippet) string {
	seen := make(map[string]bool)
	var pages []string
	for _, s := range snippets {
		p, ok := s.Metadata[rag.MetaPage]
		if !ok || seen[p] {
			continue
		}
		seen[p] = true
		pages = append(pages, p)
	}
	if len(pages) == 0 {
		return "AVAILABLE PAGES: (not provided)"
	}
	sort.Slice(pages, func(i, j int) bool {
		a, errA := strconv.Atoi(pages[i])
		b, errB := strconv.Atoi(pages[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return pages[i] < pages[j]
		}
	})
	return "AVAILABLE PAGES IN SNIPPETS: [" + strings.Join(pages, ", ") + "]"
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

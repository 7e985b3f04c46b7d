package quiz

import (
	"context"
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"faq-rag/internal/apperror"
	"faq-rag/internal/models"
)

// DocumentSource lists the stored FAQ documents.
type DocumentSource interface {
	Documents(ctx context.Context) ([]models.Document, error)
}

// Generator picks quiz questions from the index.
type Generator struct {
	source DocumentSource
	intn   func(n int) int
	re     *regexp.Regexp
}

type GeneratorOption func(*Generator)

// WithRandom replaces the random index function, mainly for tests.
func WithRandom(intn func(n int) int) GeneratorOption {
	return func(g *Generator) { g.intn = intn }
}

func NewGenerator(source DocumentSource, opts ...GeneratorOption) *Generator {
	g := &Generator{
		source: source,
		intn:   rand.IntN,
		re:     regexp.MustCompile(models.PromptExtractRegex),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NextQuestion returns the prompt of a stored entry chosen uniformly at random.
// When the chosen entry has no prompt it returns models.NoQuestionFound.
func (g *Generator) NextQuestion(ctx context.Context) (string, error) {
	docs, err := g.source.Documents(ctx)
	if err != nil {
		return "", err
	}

	var candidates []models.Document
	for _, d := range docs {
		if strings.TrimSpace(d.Content) != "" {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return "", apperror.Wrap(apperror.CodeIndexMissing, "knowledge base has no entries to quiz on", nil)
	}

	doc := candidates[g.intn(len(candidates))]
	if question := g.extract(doc); question != "" {
		return question, nil
	}

	log.Warn().Str("document", doc.ID).Msg("Stored entry has no prompt text, check the FAQ source")
	return models.NoQuestionFound, nil
}

func (g *Generator) extract(doc models.Document) string {
	if q := strings.TrimSpace(doc.Entry.Prompt); q != "" {
		return q
	}
	if m := g.re.FindStringSubmatch(doc.Content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

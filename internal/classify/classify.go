// Package classify assigns topical categories to archived conversations
// using confidence-weighted keyword and pattern rules. Scoring is pure CPU
// work over already-loaded text; the classifier never touches the network.
package classify

import (
	"context"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/chatvault/chatvault/internal/schema"
)

// patternBonus is added to a rule's base confidence when its regex matches.
const patternBonus = 0.2

// densityBonusCap bounds the keyword-density contribution to a score.
const densityBonusCap = 0.3

// DefaultMinConfidence is the acceptance threshold when none is configured.
const DefaultMinConfidence = 0.5

// CategoryWriter persists a category assignment. The store satisfies this.
type CategoryWriter interface {
	UpdateCategory(ctx context.Context, id, category string) error
}

// Suggestion is the outcome of scoring one text blob.
type Suggestion struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// BatchStats counts the outcomes of one classification pass.
type BatchStats struct {
	Categorized int `json:"categorized"`
	Unchanged   int `json:"unchanged"`
	Failed      int `json:"failed"`
	Total       int `json:"total"`
}

// Progress is a batch observability update: percent complete plus a
// human-readable status line.
type Progress struct {
	Percent int
	Status  string
}

// Config holds optional classifier collaborators.
type Config struct {
	// Writer persists assignments during ClassifyBatch. Nil disables writes;
	// the per-item callback still fires.
	Writer CategoryWriter

	// OnProgress receives percentage-complete updates during a batch.
	OnProgress func(Progress)

	// OnResult is invoked per conversation with its new category and
	// confidence.
	OnResult func(conversationID, category string, confidence float64)

	// Logger for classification activity. Nil gets a stderr logger.
	Logger *log.Logger
}

// rule is a compiled CategoryRule. Keywords are pre-lowered and the pattern
// pre-compiled so a batch run does no per-item preparation.
type rule struct {
	name       string
	category   string
	keywords   []string
	pattern    *regexp.Regexp
	confidence float64
}

// Classifier scores conversations against an immutable rule set. Rules are
// fixed at construction; nothing is mutated during a run.
type Classifier struct {
	rules         []rule
	minConfidence float64

	writer     CategoryWriter
	onProgress func(Progress)
	onResult   func(string, string, float64)
	logger     *log.Logger
}

// New builds a classifier from an ordered rule set and an acceptance
// threshold (0 means DefaultMinConfidence). Configuration problems - no
// enabled rules, an invalid threshold, an uncompilable pattern - fail here,
// at startup, rather than per item.
func New(rules []schema.CategoryRule, minConfidence float64, cfg *Config) (*Classifier, error) {
	if minConfidence == 0 {
		minConfidence = DefaultMinConfidence
	}
	if minConfidence < 0 || minConfidence > 1 {
		return nil, fmt.Errorf("min confidence %v outside [0,1]", minConfidence)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[classify] ", log.LstdFlags)
	}

	c := &Classifier{
		minConfidence: minConfidence,
		writer:        cfg.Writer,
		onProgress:    cfg.OnProgress,
		onResult:      cfg.OnResult,
		logger:        logger,
	}

	for _, def := range rules {
		if !def.Enabled {
			continue
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("invalid rule: %w", err)
		}

		r := rule{
			name:       def.Name,
			category:   def.Category,
			confidence: def.Confidence,
		}
		if r.confidence == 0 {
			r.confidence = schema.DefaultBaseConfidence
		}
		for _, kw := range def.Keywords {
			r.keywords = append(r.keywords, strings.ToLower(kw))
		}
		if def.Pattern != "" {
			re, err := regexp.Compile("(?i)" + def.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %s: bad pattern: %w", def.Name, err)
			}
			r.pattern = re
		}
		c.rules = append(c.rules, r)
	}

	if len(c.rules) == 0 {
		return nil, fmt.Errorf("no enabled rules")
	}

	return c, nil
}

// score returns the rule's confidence for a text blob.
//
// A pattern hit outranks keyword counting and awards base confidence plus a
// fixed bonus. Otherwise the score combines the fraction of the rule's
// keywords present with a bounded bonus for keyword density, capped at 1.0.
func (r *rule) score(text, lower string) float64 {
	if text == "" {
		return 0
	}

	if r.pattern != nil && r.pattern.MatchString(text) {
		return min(1.0, r.confidence+patternBonus)
	}

	if len(r.keywords) == 0 {
		return 0
	}

	matches := 0
	for _, kw := range r.keywords {
		if strings.Contains(lower, kw) {
			matches++
		}
	}
	if matches == 0 {
		return 0
	}

	wordCount := len(strings.Fields(lower))
	if wordCount == 0 {
		wordCount = 1
	}
	density := float64(matches) / float64(wordCount)

	base := min(float64(matches)/float64(len(r.keywords)), 1.0)
	bonus := min(density*2, densityBonusCap)

	return min(base+bonus, 1.0)
}

// Suggest scores a text blob against every rule and returns the best
// category if it clears the acceptance threshold. Pure function: no side
// effects, deterministic for a fixed rule set. Ties go to the
// first-declared rule.
func (c *Classifier) Suggest(text string) (Suggestion, bool) {
	lower := strings.ToLower(text)

	var best Suggestion
	for i := range c.rules {
		score := c.rules[i].score(text, lower)
		if score > best.Confidence {
			best.Category = c.rules[i].category
			best.Confidence = score
		}
	}

	if best.Category == "" || best.Confidence < c.minConfidence {
		return Suggestion{}, false
	}
	return best, true
}

// ClassifyBatch scores each conversation and writes accepted assignments
// through the configured writer. Cancellation is cooperative: the context
// is checked between items, and partial counts are accurate when stopped.
// Per-item problems are counted failed and never abort the batch.
func (c *Classifier) ClassifyBatch(ctx context.Context, conversations []*schema.Conversation) (*BatchStats, error) {
	stats := &BatchStats{Total: len(conversations)}

	if len(conversations) == 0 {
		c.progress(100, "No conversations to categorize")
		return stats, nil
	}

	for i, conv := range conversations {
		if err := ctx.Err(); err != nil {
			c.logger.Printf("Classification stopped after %d of %d", i, len(conversations))
			stats.Total = i
			return stats, nil
		}

		c.progress(i*100/len(conversations), fmt.Sprintf("Categorizing conversation %d/%d", i+1, len(conversations)))

		if conv == nil || conv.ID == "" {
			stats.Failed++
			c.logger.Printf("WARNING: skipping malformed conversation record at index %d", i)
			continue
		}

		suggestion, ok := c.Suggest(conv.Text())
		if !ok || suggestion.Category == conv.Category {
			stats.Unchanged++
			continue
		}

		if c.writer != nil {
			if err := c.writer.UpdateCategory(ctx, conv.ID, suggestion.Category); err != nil {
				stats.Failed++
				c.logger.Printf("WARNING: failed to store category for %s: %v", conv.ID, err)
				continue
			}
		}

		stats.Categorized++
		if c.onResult != nil {
			c.onResult(conv.ID, suggestion.Category, suggestion.Confidence)
		}
	}

	c.progress(100, "Categorization completed")
	c.logger.Printf("Categorization complete: %d categorized, %d unchanged, %d failed",
		stats.Categorized, stats.Unchanged, stats.Failed)

	return stats, nil
}

func (c *Classifier) progress(percent int, status string) {
	if c.onProgress != nil {
		c.onProgress(Progress{Percent: percent, Status: status})
	}
}

package schema

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// CategoryRule is one classification rule: a target category, the keywords
// that vote for it, and an optional regex pattern that outranks keyword
// matching. Rules are configuration data loaded once per classification run;
// they carry no per-conversation state.
type CategoryRule struct {
	Name       string   `toml:"name" json:"name"`
	Category   string   `toml:"category" json:"category"`
	Keywords   []string `toml:"keywords" json:"keywords"`
	Pattern    string   `toml:"pattern,omitempty" json:"pattern,omitempty"`
	Confidence float64  `toml:"confidence" json:"confidence"` // base confidence, 0-1
	Enabled    bool     `toml:"enabled" json:"enabled"`
}

// DefaultBaseConfidence is applied when a rule omits its confidence.
const DefaultBaseConfidence = 0.7

// Validate checks the rule definition.
func (r *CategoryRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if r.Category == "" {
		return fmt.Errorf("category is required")
	}
	if len(r.Keywords) == 0 && r.Pattern == "" {
		return fmt.Errorf("rule %s needs keywords or a pattern", r.Name)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("rule %s confidence %v outside [0,1]", r.Name, r.Confidence)
	}
	return nil
}

// rulesFile is the on-disk TOML shape: an ordered array of [[rules]] tables.
// Enabled and Confidence are pointers so omitted fields can be defaulted.
type rulesFile struct {
	Rules []struct {
		Name       string   `toml:"name"`
		Category   string   `toml:"category"`
		Keywords   []string `toml:"keywords"`
		Pattern    string   `toml:"pattern"`
		Confidence *float64 `toml:"confidence"`
		Enabled    *bool    `toml:"enabled"`
	} `toml:"rules"`
}

// LoadRulesFile reads category rules from a TOML file, preserving declaration
// order. Rules that omit `enabled` default to enabled, and rules that omit
// `confidence` get DefaultBaseConfidence.
func LoadRulesFile(path string) ([]CategoryRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}

	var file rulesFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	rules := make([]CategoryRule, 0, len(file.Rules))
	for i, raw := range file.Rules {
		rule := CategoryRule{
			Name:       raw.Name,
			Category:   raw.Category,
			Keywords:   raw.Keywords,
			Pattern:    raw.Pattern,
			Confidence: DefaultBaseConfidence,
			Enabled:    true,
		}
		if raw.Confidence != nil {
			rule.Confidence = *raw.Confidence
		}
		if raw.Enabled != nil {
			rule.Enabled = *raw.Enabled
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("invalid rule %d in %s: %w", i, path, err)
		}
		rules = append(rules, rule)
	}

	return rules, nil
}

// DefaultRules returns the built-in rule set used when no rules file is
// configured. Declaration order matters: earlier rules win score ties.
func DefaultRules() []CategoryRule {
	rules := []CategoryRule{
		{
			Name:     "Technical",
			Category: "Technical",
			Keywords: []string{
				"programming", "code", "software", "development", "python", "javascript",
				"algorithm", "database", "api", "framework", "debug", "error", "function",
				"variable", "class", "method", "library", "package", "git", "github",
			},
			Pattern: `\b(def|class|import|from|function|var|let|const|SELECT|UPDATE|INSERT)\b`,
		},
		{
			Name:     "Medical",
			Category: "Medical",
			Keywords: []string{
				"health", "medical", "doctor", "medicine", "symptom", "treatment", "therapy",
				"diagnosis", "hospital", "clinic", "patient", "disease", "illness", "medication",
				"prescription", "surgery", "anatomy", "physiology", "psychology",
			},
			Pattern: `\b(mg|ml|dosage|prescription|diagnosis|symptoms?)\b`,
		},
		{
			Name:     "Spiritual",
			Category: "Spiritual",
			Keywords: []string{
				"spiritual", "meditation", "mindfulness", "religion", "faith", "prayer",
				"god", "divine", "soul", "enlightenment", "consciousness", "buddhism",
				"christianity", "islam", "judaism", "hinduism", "yoga", "chakra",
			},
			Pattern: `\b(meditation|prayer|enlightenment|consciousness|divine)\b`,
		},
		{
			Name:     "Political",
			Category: "Political",
			Keywords: []string{
				"politics", "government", "policy", "election", "democracy", "republican",
				"democrat", "conservative", "liberal", "vote", "legislation", "congress",
				"senate", "president", "political", "economy", "economic", "tax",
			},
			Pattern: `\b(election|congress|senate|legislation|policy|democrat|republican)\b`,
		},
		{
			Name:     "Entertainment",
			Category: "Entertainment",
			Keywords: []string{
				"movie", "film", "music", "song", "game", "gaming", "book", "novel",
				"tv", "television", "show", "series", "actor", "artist", "celebrity",
				"entertainment", "fun", "hobby", "sport", "sports",
			},
			Pattern: `\b(movie|film|music|game|book|tv show|series)\b`,
		},
		{
			Name:     "Education",
			Category: "Education",
			Keywords: []string{
				"education", "learning", "study", "school", "university", "college",
				"student", "teacher", "course", "lesson", "homework", "assignment",
				"research", "academic", "science", "math", "history", "literature",
			},
			Pattern: `\b(study|learn|education|school|university|research|academic)\b`,
		},
		{
			Name:     "Business",
			Category: "Business",
			Keywords: []string{
				"business", "company", "corporate", "management", "marketing", "sales",
				"profit", "revenue", "strategy", "investment", "finance", "money",
				"career", "job", "work", "professional", "industry", "market",
			},
			Pattern: `\b(business|company|marketing|sales|investment|finance|career)\b`,
		},
		{
			Name:     "Creative",
			Category: "Creative",
			Keywords: []string{
				"creative", "art", "design", "writing", "poetry", "painting", "drawing",
				"photography", "music", "composition", "creative writing", "artistic",
				"inspiration", "imagination", "craft", "make", "create",
			},
			Pattern: `\b(creative|art|design|writing|poetry|painting|artistic|inspiration)\b`,
		},
	}
	for i := range rules {
		rules[i].Enabled = true
		rules[i].Confidence = DefaultBaseConfidence
	}
	return rules
}

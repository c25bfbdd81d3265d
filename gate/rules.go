package gate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/oneagent/coordination/types"
)

// RuleConfig holds configuration for the built-in rule evaluator.
type RuleConfig struct {
	// MaxContentLength is the maximum accepted content length in runes.
	MaxContentLength int `yaml:"max_content_length" json:"max_content_length"`

	// BlockedKeywords rejects content containing any of these substrings.
	// Matching is case-insensitive.
	BlockedKeywords []string `yaml:"blocked_keywords" json:"blocked_keywords"`

	// WarnLengthRatio marks content above this fraction of the limit as a
	// soft warning that lowers the score without rejecting.
	WarnLengthRatio float64 `yaml:"warn_length_ratio" json:"warn_length_ratio"`

	// MinScore is the lowest score that still passes. Scores run 0 to 100.
	MinScore float64 `yaml:"min_score" json:"min_score"`
}

// DefaultRuleConfig returns a RuleConfig with sensible defaults.
func DefaultRuleConfig() *RuleConfig {
	return &RuleConfig{
		MaxContentLength: 32768,
		WarnLengthRatio:  0.8,
		MinScore:         50,
	}
}

// RuleEvaluator is a local rule-based Evaluator: length bounds and keyword
// screens. It serves as the default when no external evaluator is wired and
// as a fast pre-filter in front of one. Rules can be swapped at runtime via
// SetConfig, which supports configuration hot reload.
type RuleEvaluator struct {
	mu      sync.RWMutex
	config  *RuleConfig
	blocked []string
}

var _ Evaluator = (*RuleEvaluator)(nil)

// NewRuleEvaluator creates a rule evaluator from config.
func NewRuleEvaluator(config *RuleConfig) *RuleEvaluator {
	e := &RuleEvaluator{}
	e.SetConfig(config)
	return e
}

// SetConfig replaces the active rule set. Safe to call while evaluations
// are in flight; each evaluation uses a consistent rule set.
func (e *RuleEvaluator) SetConfig(config *RuleConfig) {
	if config == nil {
		config = DefaultRuleConfig()
	}
	if config.MaxContentLength <= 0 {
		config.MaxContentLength = DefaultRuleConfig().MaxContentLength
	}
	if config.WarnLengthRatio <= 0 || config.WarnLengthRatio > 1 {
		config.WarnLengthRatio = DefaultRuleConfig().WarnLengthRatio
	}

	blocked := make([]string, 0, len(config.BlockedKeywords))
	for _, kw := range config.BlockedKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			blocked = append(blocked, kw)
		}
	}

	e.mu.Lock()
	e.config = config
	e.blocked = blocked
	e.mu.Unlock()
}

// Evaluate applies the configured rules and produces a verdict. Hard rule
// violations reject outright; soft findings only reduce the score.
func (e *RuleEvaluator) Evaluate(_ context.Context, content string, _ map[string]any) (*types.Verdict, error) {
	e.mu.RLock()
	cfg := e.config
	blocked := e.blocked
	e.mu.RUnlock()

	score := 100.0
	var reasons []string
	rejected := false

	if strings.TrimSpace(content) == "" {
		return &types.Verdict{
			Accepted: false,
			Score:    0,
			Reasons:  []string{"content is empty"},
		}, nil
	}

	length := utf8.RuneCountInString(content)
	if length > cfg.MaxContentLength {
		rejected = true
		score = 0
		reasons = append(reasons, fmt.Sprintf("content length %d exceeds limit %d", length, cfg.MaxContentLength))
	} else if float64(length) > float64(cfg.MaxContentLength)*cfg.WarnLengthRatio {
		score -= 20
		reasons = append(reasons, fmt.Sprintf("content length %d near limit %d", length, cfg.MaxContentLength))
	}

	lower := strings.ToLower(content)
	for _, kw := range blocked {
		if strings.Contains(lower, kw) {
			rejected = true
			score = 0
			reasons = append(reasons, fmt.Sprintf("content contains blocked keyword %q", kw))
		}
	}

	if !rejected && score < cfg.MinScore {
		rejected = true
		reasons = append(reasons, fmt.Sprintf("score %.0f below minimum %.0f", score, cfg.MinScore))
	}

	return &types.Verdict{
		Accepted: !rejected,
		Score:    score,
		Reasons:  reasons,
	}, nil
}

package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sjsage522/placereview/helpers"
	"sjsage522/placereview/logger"
	"sjsage522/placereview/pkg/errors"
)

// Sentiment labels accepted from the model
const (
	Positive = "Positive"
	Negative = "Negative"
	Neutral  = "Neutral"
)

// maxPromptText bounds the review text sent to the model
const maxPromptText = 2000

// Aspect is an aspect-level sentiment such as {"서비스", "Negative"}
type Aspect struct {
	Aspect    string `json:"aspect"`
	Sentiment string `json:"sentiment"`
}

// Result is the analysis of a single review
type Result struct {
	Sentiment string   `json:"sentiment"`
	Aspects   []Aspect `json:"aspects"`
	Keywords  []string `json:"keywords"`
	Summary   string   `json:"summary"`
}

// Analyzer classifies one review. Callers treat every error as a
// per-review failure.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*Result, error)
}

// Provider sends a prompt to a language model and returns its reply
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

const promptTemplate = `다음은 네이버 플레이스 방문자 리뷰입니다. 리뷰의 감성을 분석하세요.

반드시 아래 형식의 JSON 객체 하나만 출력하세요. 설명은 쓰지 마세요.
{
  "sentiment": "Positive" | "Negative" | "Neutral",
  "aspects": [{"aspect": "맛", "sentiment": "Positive"}],
  "keywords": ["키워드"],
  "summary": "한 문장 요약"
}

리뷰:
%s`

// BuildPrompt renders the analysis prompt for text
func BuildPrompt(text string) string {
	return fmt.Sprintf(promptTemplate, helpers.Truncate(strings.TrimSpace(text), maxPromptText))
}

// LLMAnalyzer implements Analyzer on top of a Provider
type LLMAnalyzer struct {
	provider Provider
	logger   *logger.Logger
}

// NewLLMAnalyzer creates an analyzer backed by provider
func NewLLMAnalyzer(provider Provider) *LLMAnalyzer {
	return &LLMAnalyzer{
		provider: provider,
		logger:   logger.ForAnalyzer().WithField("provider", provider.Name()),
	}
}

// Analyze asks the model for a JSON verdict and validates it
func (a *LLMAnalyzer) Analyze(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.NewValidation("analyzer", "empty review text")
	}

	reply, err := a.provider.Generate(ctx, BuildPrompt(text))
	if err != nil {
		return nil, errors.NewAnalysis("analyzer", "generate", err)
	}

	res, err := ParseResult(reply)
	if err != nil {
		a.logger.Debug().Str("reply", helpers.Truncate(reply, 200)).Msg("unusable model reply")
		return nil, errors.NewAnalysis("analyzer", "parse reply", err)
	}
	return res, nil
}

// ParseResult decodes a model reply into a Result. The JSON object may be
// wrapped in a code fence or surrounded by prose.
func ParseResult(reply string) (*Result, error) {
	raw := extractJSON(reply)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in reply")
	}

	var res Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}

	sentiment, ok := NormalizeSentiment(res.Sentiment)
	if !ok {
		return nil, fmt.Errorf("invalid sentiment %q", res.Sentiment)
	}
	res.Sentiment = sentiment

	aspects := res.Aspects[:0]
	for _, asp := range res.Aspects {
		name := strings.TrimSpace(asp.Aspect)
		s, ok := NormalizeSentiment(asp.Sentiment)
		if name == "" || !ok {
			continue
		}
		aspects = append(aspects, Aspect{Aspect: name, Sentiment: s})
	}
	res.Aspects = aspects

	keywords := res.Keywords[:0]
	for _, k := range res.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	res.Keywords = keywords
	res.Summary = strings.TrimSpace(res.Summary)
	return &res, nil
}

// NormalizeSentiment maps case variants and Korean labels onto the three
// canonical labels.
func NormalizeSentiment(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "긍정":
		return Positive, true
	case "negative", "부정":
		return Negative, true
	case "neutral", "중립", "mixed":
		return Neutral, true
	default:
		return "", false
	}
}

func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	// strip markdown code fences
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		end := len(lines)
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				end = i
				break
			}
		}
		text = strings.TrimSpace(strings.Join(lines[1:end], "\n"))
	}

	start := strings.Index(text, "{")
	stop := strings.LastIndex(text, "}")
	if start < 0 || stop < start {
		return ""
	}
	return text[start : stop+1]
}

// Package classify maps prompts to difficulty classes. The lexical
// classifier is self-contained and never fails; the LLM and worker variants
// consult an external model and fall back to lexical scoring on any error.
package classify

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iris-network/iris/internal/domain"
	"github.com/iris-network/iris/internal/log"
)

// Prompts are scored 0-100: keyword matches (up to 40), length (up to 30),
// subtask count (up to 30), plus bonuses for code and math notation.
const (
	advancedCutoff = 70
	complexCutoff  = 40
)

// Keyword sets are bilingual (English/Spanish), matching the traffic the
// network actually sees.
var advancedKeywords = []string{
	// Code
	"código", "code", "programa", "program", "function", "función",
	"algorithm", "algoritmo", "implement", "implementa", "debug",
	"refactor", "class", "clase", "api", "endpoint", "database",
	"sql", "query", "script", "bug", "error", "exception",
	// Math
	"matemáticas", "math", "calcul", "equation", "ecuación",
	"formula", "fórmula", "integral", "derivada", "derivative",
	"probabilidad", "probability", "estadística", "statistics",
	// Reasoning
	"razon", "reason", "logic", "lógica", "proof", "prueba",
	"demostración", "theorem", "teorema", "hypothesis", "hipótesis",
	"deducir", "deduce", "infer", "inferir",
	// Architecture
	"arquitectura", "architecture", "design pattern", "patrón de diseño",
	"system design", "diseño de sistema", "microservice",
	// Heavy tasks
	"optimiza", "optimize", "benchmark", "performance", "rendimiento",
}

var complexKeywords = []string{
	"analiza", "analyze", "analysis", "análisis", "evalúa", "evaluate",
	"compara", "compare", "comparison", "comparación", "contrasta",
	"resume", "summarize", "summary", "resumen", "sintetiza",
	"explica", "explain", "explanation", "explicación", "describe",
	"descripción", "detalla", "detail",
	"lista", "list", "enumera", "enumerate", "identifica", "identify",
	"clasifica", "classify", "categoriza", "categorize",
	"revisa", "review", "critica", "critique",
	"planifica", "plan", "estrategia", "strategy", "organiza",
}

var simpleKeywords = []string{
	"qué es", "what is", "define", "definición", "definition",
	"traduce", "translate", "traducción", "translation",
	"cuánto", "how much", "cuántos", "how many",
	"dónde", "where", "cuándo", "when", "quién", "who",
	"sí o no", "yes or no", "verdadero o falso", "true or false",
}

var mathGlyphs = []rune{'∑', '∫', '√', '∂', '≈', '≤', '≥'}

// Lexical is the keyword and structure based classifier.
type Lexical struct {
	advanced *regexp.Regexp
	complex  *regexp.Regexp
	simple   *regexp.Regexp
	logger   zerolog.Logger
}

// NewLexical compiles the keyword patterns once.
func NewLexical() *Lexical {
	return &Lexical{
		advanced: compileKeywords(advancedKeywords),
		complex:  compileKeywords(complexKeywords),
		simple:   compileKeywords(simpleKeywords),
		logger:   log.WithComponent("classify"),
	}
}

func compileKeywords(keywords []string) *regexp.Regexp {
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = regexp.QuoteMeta(kw)
	}
	return regexp.MustCompile("(?i)" + strings.Join(quoted, "|"))
}

// Classify scores the prompt and maps it to a difficulty class.
func (l *Lexical) Classify(_ context.Context, prompt string, subtaskCount int) domain.Difficulty {
	score := l.Score(prompt, subtaskCount)

	var difficulty domain.Difficulty
	switch {
	case score >= advancedCutoff:
		difficulty = domain.Advanced
	case score >= complexCutoff:
		difficulty = domain.Complex
	default:
		difficulty = domain.Simple
	}

	l.logger.Debug().
		Float64("score", score).
		Str("difficulty", string(difficulty)).
		Int("subtasks", subtaskCount).
		Msg("prompt classified")
	return difficulty
}

// Score computes the 0-100 difficulty score.
func (l *Lexical) Score(prompt string, subtaskCount int) float64 {
	score := 0.0

	// Keyword analysis, strongest class wins (up to 40 points).
	advancedMatches := len(l.advanced.FindAllString(prompt, -1))
	complexMatches := len(l.complex.FindAllString(prompt, -1))
	simpleMatches := len(l.simple.FindAllString(prompt, -1))
	switch {
	case advancedMatches > 0:
		score += min(float64(advancedMatches)*15, 40)
	case complexMatches > 0:
		score += min(float64(complexMatches)*10, 25)
	case simpleMatches > 0:
		score -= min(float64(simpleMatches)*5, 15)
	}

	// Length analysis (up to 30 points).
	words := len(strings.Fields(prompt))
	switch {
	case words > 500:
		score += 30
	case words > 200:
		score += 20
	case words > 100:
		score += 10
	case words < 20:
		score -= 5
	}

	// Subtask count (up to 30 points).
	switch {
	case subtaskCount >= 5:
		score += 30
	case subtaskCount >= 3:
		score += 20
	case subtaskCount >= 2:
		score += 10
	}

	// Code fences and definitions.
	if strings.Contains(prompt, "```") || strings.Contains(prompt, "def ") || strings.Contains(prompt, "class ") {
		score += 15
	}

	// Mathematical notation.
	for _, g := range mathGlyphs {
		if strings.ContainsRune(prompt, g) {
			score += 15
			break
		}
	}

	return max(0, min(100, score))
}

// Reason gives a short human explanation for the classification, used on
// the stats surface.
func (l *Lexical) Reason(prompt string) string {
	var reasons []string

	advanced := dedupe(l.advanced.FindAllString(prompt, -1), 3)
	if len(advanced) > 0 {
		reasons = append(reasons, "advanced keywords: "+strings.Join(advanced, ", "))
	}
	complexMatches := dedupe(l.complex.FindAllString(prompt, -1), 3)
	if len(complexMatches) > 0 && len(advanced) == 0 {
		reasons = append(reasons, "complex keywords: "+strings.Join(complexMatches, ", "))
	}
	if words := len(strings.Fields(prompt)); words > 200 {
		reasons = append(reasons, "long prompt")
	}
	if strings.Contains(prompt, "```") {
		reasons = append(reasons, "contains code blocks")
	}
	if len(reasons) == 0 {
		return "standard request"
	}
	return strings.Join(reasons, "; ")
}

func dedupe(matches []string, limit int) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range matches {
		m = strings.ToLower(m)
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out
}

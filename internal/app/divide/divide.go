// Package divide splits a prompt into the unit of work workers receive.
// Three strategies mirror the task modes: heuristic subtask extraction,
// consensus replication, and long-context chunking. Division never fails;
// an indivisible prompt comes back as a single subtask.
package divide

import (
	"fmt"
	"regexp"
	"strings"
)

// ConsensusCopies is how many workers answer the same prompt in consensus
// mode.
const ConsensusCopies = 3

const (
	// ChunkSize bounds one context-mode chunk in characters.
	ChunkSize = 4000
	// chunkOverlap carries trailing context into the next chunk.
	chunkOverlap = 200
)

// ─── Subtask Extraction ─────────────────────────────────────────────────────

var (
	listMarker = regexp.MustCompile(`^\s*(?:\d+[.)]\s*|[a-zA-Z][.)]\s*|[-*•]\s*)(.*)`)

	extractPattern = regexp.MustCompile(`(?i)(extract|analyze|identify|find|get|list|describe)\s+(?:the\s+)?(.+?)(?:\.|\z)`)
	itemSeparator  = regexp.MustCompile(`,\s*(?:and|y)?\s*|\s+(?:and|y)\s+`)

	taskIndicators = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(analyze|extract|identify|find|list|describe|explain|summarize|compare)\b`),
		regexp.MustCompile(`(?i)\b(what|how|why|where|when|who)\b`),
		regexp.MustCompile(`(?i)\b(should|must|need to|have to)\b`),
	}

	contextPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)^(.*?(?:following|below|this|given)[^:]*:)`),
		regexp.MustCompile(`(?i)^((?:Given|Considering|Based on|With)[^.]*\.)`),
		regexp.MustCompile(`(?i)^([^.]*?(?:text|document|data|content)[^.]*\.)`),
	}
)

// Subtasks divides a prompt into independent work items. Heuristics are
// tried in order, first list markers, then enumerated extraction targets,
// then separate task sentences; the first yielding at least two items wins.
func Subtasks(prompt string) []string {
	if items := byListMarkers(prompt); len(items) >= 2 {
		return withPreamble(prompt, items, "Task: ")
	}
	if items := byExtractionTargets(prompt); len(items) >= 2 {
		return withPreamble(prompt, items, "")
	}
	if items := byTaskSentences(prompt); len(items) >= 2 {
		return withPreamble(prompt, items, "")
	}
	return []string{prompt}
}

// byListMarkers collects numbered, lettered, and bulleted items.
// Continuation lines attach to the item above.
func byListMarkers(prompt string) []string {
	var items []string
	current := -1

	for _, line := range strings.Split(prompt, "\n") {
		if m := listMarker.FindStringSubmatch(line); m != nil {
			items = append(items, strings.TrimSpace(m[1]))
			current = len(items) - 1
			continue
		}
		if current >= 0 && strings.TrimSpace(line) != "" {
			items[current] += " " + strings.TrimSpace(line)
		}
	}

	var out []string
	for _, item := range items {
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// byExtractionTargets splits "extract X, Y and Z" style instructions into
// one item per target, each prefixed with the verb.
func byExtractionTargets(prompt string) []string {
	m := extractPattern.FindStringSubmatch(prompt)
	if m == nil {
		return nil
	}
	verb := m[1]

	var items []string
	for _, part := range itemSeparator.Split(m[2], -1) {
		part = strings.TrimSpace(part)
		if part != "" {
			items = append(items, verb+" "+part)
		}
	}
	if len(items) < 2 {
		return nil
	}
	return items
}

// byTaskSentences keeps sentences that read like instructions.
func byTaskSentences(prompt string) []string {
	var tasks []string
	for _, sentence := range splitSentences(prompt) {
		if isTaskSentence(sentence) {
			tasks = append(tasks, sentence)
		}
	}
	return tasks
}

func isTaskSentence(sentence string) bool {
	for _, p := range taskIndicators {
		if p.MatchString(sentence) {
			return true
		}
	}
	return false
}

// splitSentences breaks text on terminal punctuation followed by space.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		if i+1 < len(runes) && runes[i+1] != ' ' && runes[i+1] != '\n' && runes[i+1] != '\t' {
			continue
		}
		s := strings.TrimSpace(string(runes[start : i+1]))
		if s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// Preamble extracts the shared context sentence in front of a divided
// prompt, e.g. "Analyze the following document:".
func Preamble(prompt string) string {
	for _, p := range contextPatterns {
		if m := p.FindStringSubmatch(prompt); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func withPreamble(prompt string, items []string, label string) []string {
	preamble := Preamble(prompt)
	out := make([]string, len(items))
	for i, item := range items {
		if preamble != "" {
			out[i] = preamble + "\n\n" + label + item
		} else {
			out[i] = item
		}
	}
	return out
}

// ─── Consensus ──────────────────────────────────────────────────────────────

// Consensus replicates the prompt so independent workers answer it.
func Consensus(prompt string) []string {
	out := make([]string, ConsensusCopies)
	for i := range out {
		out[i] = prompt
	}
	return out
}

// ─── Context Chunking ───────────────────────────────────────────────────────

var instructionPattern = regexp.MustCompile(`(?is)^(.*?(?:analyze|process|review|examine)[^:]*:?\s*)`)

// Context splits a long prompt into overlapping chunks, each carrying the
// instruction head and a section tag so results can be reassembled in order.
func Context(prompt string) []string {
	if len(prompt) <= ChunkSize {
		return []string{prompt}
	}

	instruction := "Analyze the following section:\n\n"
	content := prompt
	if m := instructionPattern.FindStringSubmatch(prompt); m != nil {
		instruction = m[1]
		content = prompt[len(m[1]):]
	}

	var chunks []string
	pos := 0
	for pos < len(content) {
		end := pos + ChunkSize
		if end > len(content) {
			end = len(content)
		}

		// Prefer a sentence boundary past the chunk midpoint.
		if end < len(content) {
			if cut := strings.LastIndex(content[pos:end], "."); cut > ChunkSize/2 {
				end = pos + cut + 1
			}
		}

		chunks = append(chunks, fmt.Sprintf("%s[Section %d]\n%s", instruction, len(chunks)+1, content[pos:end]))

		if end >= len(content) {
			break
		}
		pos = end - chunkOverlap
	}
	return chunks
}

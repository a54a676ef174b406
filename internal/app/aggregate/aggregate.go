// Package aggregate combines subtask responses into the final answer a
// client sees. Each task mode has its own strategy: structured assembly for
// independent subtasks, similarity voting for consensus, ordered synthesis
// for context chunks.
package aggregate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/iris-network/iris/internal/domain"
)

// lowConsensusThreshold flags disagreement between consensus responses.
const lowConsensusThreshold = 0.3

// Aggregate builds the final response for a task from its subtasks. With no
// usable responses it returns a failure summary naming the loss breakdown.
func Aggregate(mode domain.TaskMode, originalPrompt string, subtasks []domain.Subtask) string {
	if len(subtasks) == 0 {
		return "No results available."
	}

	var completed []domain.Subtask
	failed, timedOut := 0, 0
	for _, st := range subtasks {
		switch {
		case st.Status == domain.SubtaskCompleted && st.Response != "":
			completed = append(completed, st)
		case st.Status == domain.SubtaskTimeout:
			timedOut++
		default:
			failed++
		}
	}

	if len(completed) == 0 {
		return fmt.Sprintf("Task failed. %d subtasks failed, %d timed out.", failed, timedOut)
	}

	switch mode {
	case domain.ModeConsensus:
		return consensus(completed)
	case domain.ModeContext:
		return contextSynthesis(completed)
	default:
		return structured(completed, originalPrompt)
	}
}

// ─── Subtasks Mode ──────────────────────────────────────────────────────────

// structured concatenates responses under per-part headings, titled by what
// each subtask was asked to do.
func structured(subtasks []domain.Subtask, originalPrompt string) string {
	if len(subtasks) == 1 {
		return subtasks[0].Response
	}

	var parts []string
	if title := taskTypeTitle(originalPrompt); title != "" {
		parts = append(parts, "## "+title+"\n")
	}

	for i, st := range subtasks {
		response := strings.TrimSpace(st.Response)
		title := subtaskTitle(st.Prompt)
		if title == "" {
			title = fmt.Sprintf("Part %d", i+1)
		}
		parts = append(parts, fmt.Sprintf("### %s\n%s\n", title, response))
	}
	return strings.Join(parts, "\n")
}

var taskTypeTitles = []struct {
	title   string
	pattern *regexp.Regexp
}{
	{"Analysis Results", regexp.MustCompile(`(?i)\b(analyze|analysis)\b`)},
	{"Extracted Information", regexp.MustCompile(`(?i)\b(extract|extraction)\b`)},
	{"Summary", regexp.MustCompile(`(?i)\b(summarize|summary)\b`)},
	{"Comparison", regexp.MustCompile(`(?i)\b(compare|comparison)\b`)},
	{"Identified Items", regexp.MustCompile(`(?i)\b(identify|find|list)\b`)},
	{"Explanation", regexp.MustCompile(`(?i)\b(explain|describe)\b`)},
}

func taskTypeTitle(prompt string) string {
	for _, tt := range taskTypeTitles {
		if tt.pattern.MatchString(prompt) {
			return tt.title
		}
	}
	return ""
}

var subtaskTitlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`Task:\s*(.+?)(?:\n|\z)`),
	regexp.MustCompile(`(?i)(?:extract|identify|find|analyze)\s+(?:the\s+)?(.+?)(?:\.|\z)`),
}

func subtaskTitle(prompt string) string {
	for _, p := range subtaskTitlePatterns {
		m := p.FindStringSubmatch(prompt)
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[1])
		if title == "" {
			continue
		}
		title = strings.ToUpper(title[:1]) + title[1:]
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		return title
	}
	return ""
}

// ─── Consensus Mode ─────────────────────────────────────────────────────────

// consensus picks the response most similar to its peers by word-set
// Jaccard overlap. Heavy disagreement across three or more responses is
// flagged rather than hidden.
func consensus(subtasks []domain.Subtask) string {
	if len(subtasks) == 1 {
		return subtasks[0].Response
	}

	responses := make([]string, len(subtasks))
	for i, st := range subtasks {
		responses[i] = st.Response
	}

	best := responses[0]
	bestScore := 0.0
	for i := range responses {
		if score := peerSimilarity(i, responses); score > bestScore {
			bestScore = score
			best = responses[i]
		}
	}

	if bestScore < lowConsensusThreshold && len(responses) >= 3 {
		return "**Note: Low consensus among nodes.**\n\n" + best
	}
	return best
}

// peerSimilarity averages the Jaccard similarity of one response against
// every other. Only the response itself is skipped; a peer with identical
// text counts as full agreement.
func peerSimilarity(idx int, all []string) float64 {
	words := wordSet(all[idx])
	var scores []float64
	for i, other := range all {
		if i == idx {
			continue
		}
		otherWords := wordSet(other)
		if len(words) == 0 || len(otherWords) == 0 {
			continue
		}
		scores = append(scores, jaccard(words, otherWords))
	}
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

func wordSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// ─── Context Mode ───────────────────────────────────────────────────────────

var sectionTag = regexp.MustCompile(`\[Section (\d+)\]`)

// contextSynthesis reassembles chunked analyses in document order.
func contextSynthesis(subtasks []domain.Subtask) string {
	if len(subtasks) == 1 {
		return subtasks[0].Response
	}

	ordered := make([]domain.Subtask, len(subtasks))
	copy(ordered, subtasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return sectionNumber(ordered[i].Prompt) < sectionNumber(ordered[j].Prompt)
	})

	parts := []string{"## Analysis Summary\n"}
	for i, st := range ordered {
		parts = append(parts, fmt.Sprintf("### Section %d Analysis\n%s\n", i+1, strings.TrimSpace(st.Response)))
	}
	parts = append(parts, "\n---\n*Analysis compiled from multiple document sections.*")
	return strings.Join(parts, "\n")
}

func sectionNumber(prompt string) int {
	m := sectionTag.FindStringSubmatch(prompt)
	if m == nil {
		return 0
	}
	n := 0
	fmt.Sscanf(m[1], "%d", &n)
	return n
}

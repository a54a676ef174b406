package divide

import (
	"fmt"
	"strings"
	"testing"
)

// ═══ Subtask Division Tests ═════════════════════════════════════════════════

func TestSubtasksNumberedList(t *testing.T) {
	prompt := "Analyze the document:\n1. Extract themes\n2. Identify stakeholders\n3. List solutions"

	got := Subtasks(prompt)
	if len(got) != 3 {
		t.Fatalf("subtasks = %d, want 3: %q", len(got), got)
	}
	for i, want := range []string{"Extract themes", "Identify stakeholders", "List solutions"} {
		if !strings.Contains(got[i], want) {
			t.Errorf("subtask %d = %q, want it to contain %q", i, got[i], want)
		}
		if !strings.Contains(got[i], "Analyze the document") {
			t.Errorf("subtask %d missing shared preamble: %q", i, got[i])
		}
		if !strings.Contains(got[i], "Task: ") {
			t.Errorf("subtask %d missing task label: %q", i, got[i])
		}
	}
}

func TestSubtasksBulletsAndLetters(t *testing.T) {
	cases := []struct {
		name   string
		prompt string
		count  int
	}{
		{"bullets", "- first thing\n- second thing\n- third thing", 3},
		{"letters", "a) compare costs\nb) compare speed", 2},
		{"mixed markers", "* alpha\n1. beta\nc) gamma", 3},
		{"continuation lines", "1. first item\nwith more detail\n2. second item", 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Subtasks(tc.prompt)
			if len(got) != tc.count {
				t.Errorf("subtasks = %d, want %d: %q", len(got), tc.count, got)
			}
		})
	}
}

func TestSubtasksExtractionTargets(t *testing.T) {
	got := Subtasks("Extract the names, dates and locations")
	if len(got) != 3 {
		t.Fatalf("subtasks = %d, want 3: %q", len(got), got)
	}
	for i, want := range []string{"names", "dates", "locations"} {
		if !strings.Contains(got[i], want) {
			t.Errorf("subtask %d = %q, want it to contain %q", i, got[i], want)
		}
		if !strings.HasPrefix(strings.ToLower(got[i]), "extract") {
			t.Errorf("subtask %d = %q, want it to carry the verb", i, got[i])
		}
	}
}

func TestSubtasksTaskSentences(t *testing.T) {
	got := Subtasks("Summarize the introduction briefly. Compare the last two chapters carefully.")
	if len(got) != 2 {
		t.Fatalf("subtasks = %d, want 2: %q", len(got), got)
	}
}

func TestSubtasksIndivisible(t *testing.T) {
	for _, prompt := range []string{
		"Tell me a story about a dragon",
		"",
	} {
		got := Subtasks(prompt)
		if len(got) != 1 || got[0] != prompt {
			t.Errorf("Subtasks(%q) = %q, want the prompt itself", prompt, got)
		}
	}
}

func TestPreamble(t *testing.T) {
	cases := []struct {
		prompt string
		want   string
	}{
		{"Analyze the following report: do things", "Analyze the following report:"},
		{"Given the sales data. Find trends", "Given the sales data."},
		{"Just a question", ""},
	}

	for _, tc := range cases {
		if got := Preamble(tc.prompt); got != tc.want {
			t.Errorf("Preamble(%q) = %q, want %q", tc.prompt, got, tc.want)
		}
	}
}

// ═══ Consensus Tests ════════════════════════════════════════════════════════

func TestConsensusReplicates(t *testing.T) {
	got := Consensus("Is this claim accurate?")
	if len(got) != ConsensusCopies {
		t.Fatalf("copies = %d, want %d", len(got), ConsensusCopies)
	}
	for _, p := range got {
		if p != "Is this claim accurate?" {
			t.Errorf("copy = %q, want the original prompt", p)
		}
	}
}

// ═══ Context Chunking Tests ═════════════════════════════════════════════════

func TestContextShortPromptUnchanged(t *testing.T) {
	got := Context("Analyze this short text.")
	if len(got) != 1 || got[0] != "Analyze this short text." {
		t.Errorf("short prompt should pass through, got %q", got)
	}
}

func TestContextChunksLongPrompt(t *testing.T) {
	var b strings.Builder
	b.WriteString("Analyze the following transcript: ")
	for i := 0; b.Len() < 3*ChunkSize; i++ {
		fmt.Fprintf(&b, "Speaker %d said something moderately interesting. ", i)
	}
	prompt := b.String()

	got := Context(prompt)
	if len(got) < 3 {
		t.Fatalf("chunks = %d, want at least 3", len(got))
	}

	for i, chunk := range got {
		tag := fmt.Sprintf("[Section %d]", i+1)
		if !strings.Contains(chunk, tag) {
			t.Errorf("chunk %d missing %q", i, tag)
		}
		if !strings.Contains(chunk, "Analyze the following transcript:") {
			t.Errorf("chunk %d missing instruction head", i)
		}
		if len(chunk) > ChunkSize+len("Analyze the following transcript: ")+len(tag)+2 {
			t.Errorf("chunk %d length %d exceeds bound", i, len(chunk))
		}
	}
}

func TestContextChunksOverlap(t *testing.T) {
	var b strings.Builder
	b.WriteString("Review the log: ")
	for b.Len() < 2*ChunkSize {
		b.WriteString("An event occurred and was recorded for posterity. ")
	}

	got := Context(b.String())
	if len(got) < 2 {
		t.Fatalf("chunks = %d, want at least 2", len(got))
	}

	// The tail of chunk 1 reappears at the head of chunk 2.
	first := got[0]
	tail := first[len(first)-50:]
	if !strings.Contains(got[1], tail[:20]) {
		t.Error("no overlap carried into the next chunk")
	}
}

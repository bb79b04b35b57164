package mood

import "testing"

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Label
	}{
		{"empty is neutral", "   ", Neutral},
		{"no signal is neutral", "I had pasta for lunch.", Neutral},
		{"sad", "I felt lonely and cried after the call.", Sad},
		{"anxious", "Work was stressful and I'm worried about the deadline.", Anxious},
		{"exclamations lift excitement", "We finally shipped it!!!", Excited},
		{"turn after but wins", "I was tired but grateful for my friends.", Grateful},
		{"chinese keywords", "我今天很难过", Sad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Analyze(tt.text)
			if got.Mood != tt.want {
				t.Fatalf("Analyze(%q) = %s, want %s", tt.text, got.Mood, tt.want)
			}
			if tt.want != Neutral && got.Score <= 0 {
				t.Fatalf("expected positive score, got %d", got.Score)
			}
		})
	}
}

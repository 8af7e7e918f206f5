package speech

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)

	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "strips markdown emphasis and headers",
			input:  "## Question 2\n**Tell me** about a _hard_ bug you `fixed`.",
			expect: "Question 2 Tell me about a _hard_ bug you fixed.",
		},
		{
			name:   "strips html and keeps link text",
			input:  "<p>See <b>our</b> [careers page](https://example.com/jobs)</p>",
			expect: "See our careers page",
		},
		{
			name:   "removes bullets",
			input:  "Consider:\n- scale\n- cost\n1. latency",
			expect: "Consider: scale cost latency",
		},
		{
			name:   "expands acronyms on word boundaries",
			input:  "How would you design an API for AI features? e.g. a search UI",
			expect: "How would you design an A.P.I. for A.I. features? for example a search U.I.",
		},
		{
			name:   "does not expand inside words",
			input:  "The TRAIL and MAIL services",
			expect: "The TRAIL and MAIL services",
		},
		{
			name:   "prefers longest acronym",
			input:  "Which APIs did you build?",
			expect: "Which A.P.I.s did you build?",
		},
		{
			name:   "markup only becomes empty",
			input:  "  ** __ <br/> ``` ",
			expect: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := n.Normalize(tt.input); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestNormalizeWithoutAcronyms(t *testing.T) {
	n := NewNormalizer(map[string]string{})
	if got := n.Normalize("An  AI\n\nengineer"); got != "An AI engineer" {
		t.Fatalf("unexpected output: %q", got)
	}
}

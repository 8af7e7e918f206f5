package turn

import (
	"regexp"
	"strings"
)

// Intent is the classification of a candidate utterance.
type Intent int

const (
	IntentAnswer Intent = iota
	IntentHelp
)

func (i Intent) String() string {
	if i == IntentHelp {
		return "help"
	}
	return "answer"
}

// Classifier decides whether an utterance answers the question or asks for help.
type Classifier interface {
	Classify(text string) Intent
}

// DefaultHelpKeywords are phrases that mark a help request.
var DefaultHelpKeywords = []string{
	"help",
	"hint",
	"don't know",
	"do not know",
	"dont know",
	"no idea",
	"not sure what",
	"repeat the question",
	"can you repeat",
	"explain the question",
	"clarify",
	"what do you mean",
}

const defaultMaxHelpWords = 25

// KeywordClassifier matches help phrases on word boundaries. Utterances longer
// than MaxWords are always answers: a long reply that happens to contain
// "help" is still a reply.
type KeywordClassifier struct {
	MaxWords int
	patterns []*regexp.Regexp
}

// NewKeywordClassifier builds a classifier. Nil keywords select DefaultHelpKeywords.
func NewKeywordClassifier(keywords []string) *KeywordClassifier {
	if keywords == nil {
		keywords = DefaultHelpKeywords
	}

	c := &KeywordClassifier{MaxWords: defaultMaxHelpWords}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		c.patterns = append(c.patterns, regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)+`\b`))
	}
	return c
}

func (c *KeywordClassifier) Classify(text string) Intent {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return IntentAnswer
	}
	text = strings.NewReplacer("’", "'", "‘", "'").Replace(text)

	if c.MaxWords > 0 && len(strings.Fields(text)) > c.MaxWords {
		return IntentAnswer
	}

	for _, p := range c.patterns {
		if p.MatchString(text) {
			return IntentHelp
		}
	}
	return IntentAnswer
}

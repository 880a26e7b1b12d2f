package lingua

import (
	"strings"

	"github.com/compresr/lingua-gateway/internal/pipes"
)

// Kind is the classification of a text fragment.
type Kind string

const (
	KindProse Kind = "text"
	KindCode  Kind = "code"
)

// structureTokens are counted for the punctuation-density signal.
var structureTokens = []string{"{", "}", ";", "()"}

// Classifier decides whether text looks like source code.
// It is a pure function of its configuration and safe for concurrent use.
type Classifier struct {
	indicators         []string
	structureThreshold int
	minLines           int
	indentRatio        float64
}

// NewClassifier creates a classifier. An empty indicator list falls back to
// pipes.DefaultIndicators.
func NewClassifier(cfg pipes.ClassifierConfig) *Classifier {
	indicators := cfg.Indicators
	if len(indicators) == 0 {
		indicators = pipes.DefaultIndicators
	}
	return &Classifier{
		indicators:         indicators,
		structureThreshold: cfg.StructureThreshold,
		minLines:           cfg.MinLines,
		indentRatio:        cfg.IndentRatio,
	}
}

// Classify returns KindCode if any signal fires, KindProse otherwise.
func (c *Classifier) Classify(text string) Kind {
	if c.hasIndicator(text) || c.hasStructure(text) || c.hasIndentation(text) {
		return KindCode
	}
	return KindProse
}

func (c *Classifier) hasIndicator(text string) bool {
	for _, ind := range c.indicators {
		if strings.Contains(text, ind) {
			return true
		}
	}
	return false
}

func (c *Classifier) hasStructure(text string) bool {
	count := 0
	for _, tok := range structureTokens {
		count += strings.Count(text, tok)
	}
	return count > c.structureThreshold
}

// hasIndentation compares indented lines against the newline count, so a
// trailing line without "\n" still counts as a line but not as a newline.
func (c *Classifier) hasIndentation(text string) bool {
	newlines := strings.Count(text, "\n")
	if newlines <= c.minLines {
		return false
	}
	indented := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t") {
			indented++
		}
	}
	return float64(indented)/float64(newlines) > c.indentRatio
}

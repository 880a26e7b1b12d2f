// Pipes configuration - compression pipeline settings.
//
// DESIGN: The lingua pipe compresses message text before forwarding.
// Thresholds and rates are configurable; the defaults below are the
// tuned values and should only change with evidence.
//
// NOTE: This file defines pipe-specific configuration types.
// The main Config struct in config/ imports and uses these types.
package pipes

import "fmt"

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	// DefaultMinChars is the fragment length (in characters) below which
	// compression is skipped.
	DefaultMinChars = 1000

	// DefaultProseRate is the rate requested for natural-language text.
	DefaultProseRate = 0.5

	// DefaultCodeRate is the rate requested for source code.
	DefaultCodeRate = 0.75

	// DefaultStructureThreshold: more than this many {, }, ; or () means code.
	DefaultStructureThreshold = 10

	// DefaultMinLines: indentation is only considered above this many newlines.
	DefaultMinLines = 3

	// DefaultIndentRatio: indented lines per newline above this means code.
	DefaultIndentRatio = 0.3
)

// DefaultIndicators are substrings that mark text as code on their own.
var DefaultIndicators = []string{
	"def ", "class ", "import ", "from ", "return ",
	"function ", "const ", "let ", "var ", "async ", "await ",
	"if (", "for (", "while (", "switch (",
	"```", "self.", "this.", "->", "=>",
	"public ", "private ", "protected ",
	"struct ", "impl ", "fn ", "pub ",
}

// =============================================================================
// PIPES CONFIG - Root configuration for all pipes
// =============================================================================

// Config contains configuration for all compression pipes.
type Config struct {
	Lingua LinguaConfig `yaml:"lingua"` // Message text compression
}

// Validate validates pipe configurations.
func (p *Config) Validate() error {
	return p.Lingua.Validate()
}

// =============================================================================
// LINGUA PIPE CONFIG
// =============================================================================

// LinguaConfig configures message text compression.
type LinguaConfig struct {
	Enabled   bool    `yaml:"enabled"`    // Enable this pipe
	MinChars  int     `yaml:"min_chars"`  // Below this length, no compression
	ProseRate float64 `yaml:"prose_rate"` // Rate for prose fragments
	CodeRate  float64 `yaml:"code_rate"`  // Rate for code fragments

	Classifier ClassifierConfig `yaml:"classifier"`
}

// ClassifierConfig tunes the code/prose heuristic.
type ClassifierConfig struct {
	StructureThreshold int      `yaml:"structure_threshold"`
	MinLines           int      `yaml:"min_lines"`
	IndentRatio        float64  `yaml:"indent_ratio"`
	Indicators         []string `yaml:"indicators,omitempty"`
}

// DefaultLinguaConfig returns the lingua pipe defaults.
func DefaultLinguaConfig() LinguaConfig {
	return LinguaConfig{
		Enabled:    true,
		MinChars:   DefaultMinChars,
		ProseRate:  DefaultProseRate,
		CodeRate:   DefaultCodeRate,
		Classifier: DefaultClassifierConfig(),
	}
}

// DefaultClassifierConfig returns the classifier defaults.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		StructureThreshold: DefaultStructureThreshold,
		MinLines:           DefaultMinLines,
		IndentRatio:        DefaultIndentRatio,
		Indicators:         append([]string(nil), DefaultIndicators...),
	}
}

// Validate validates lingua pipe config.
func (l *LinguaConfig) Validate() error {
	if !l.Enabled {
		return nil
	}
	if l.MinChars < 0 {
		return fmt.Errorf("lingua: min_chars must be >= 0, got %d", l.MinChars)
	}
	if l.ProseRate <= 0 || l.ProseRate >= 1 {
		return fmt.Errorf("lingua: prose_rate must be in (0, 1), got %v", l.ProseRate)
	}
	if l.CodeRate <= 0 || l.CodeRate >= 1 {
		return fmt.Errorf("lingua: code_rate must be in (0, 1), got %v", l.CodeRate)
	}
	if l.Classifier.IndentRatio < 0 || l.Classifier.IndentRatio > 1 {
		return fmt.Errorf("lingua: classifier.indent_ratio must be in [0, 1], got %v", l.Classifier.IndentRatio)
	}
	return nil
}

package quizengine

import (
	"regexp"
	"strings"
)

const (
	tripleSeparator = "|||"
	singleSeparator = "|"
)

var (
	labelPattern      = regexp.MustCompile(`^[A-Da-d]$`)
	lineOptionPattern = regexp.MustCompile(`^\s*([A-Da-d])\s*[).:]\s*(.*)$`)
	inlineMarker      = regexp.MustCompile(`(?:^|\s)([A-Da-d])\)`)
)

// parseStrategy turns a blob into options, or nil when it does not apply
type parseStrategy struct {
	name  string
	parse func(blob string) []ParsedOption
}

var parseStrategies = []parseStrategy{
	{"triple-delimiter", parseTripleDelimited},
	{"line-anchored", parseLineAnchored},
	{"inline", parseInline},
	{"single-pipe", parseSinglePipe},
}

// ParseOptions extracts labeled options from a free-form blob.
// Strategies are tried in a fixed order and the first one yielding at least
// one option wins. The option appearing first in the source is marked
// correct; the generator always authors the right answer first.
// An empty result means the blob could not be parsed.
func ParseOptions(blob string) []ParsedOption {
	if strings.TrimSpace(blob) == "" {
		return []ParsedOption{}
	}

	for _, s := range parseStrategies {
		options := s.parse(blob)
		if len(options) == 0 {
			continue
		}
		options[0].IsCorrect = true
		VerboseLog("Parsed %d options with %s strategy", len(options), s.name)
		return options
	}

	VerboseLog("No option strategy matched blob of %d characters", len(blob))
	return []ParsedOption{}
}

func parseTripleDelimited(blob string) []ParsedOption {
	if !strings.Contains(blob, tripleSeparator) {
		return nil
	}
	return parsePairs(strings.Split(blob, tripleSeparator))
}

func parseSinglePipe(blob string) []ParsedOption {
	if !strings.Contains(blob, singleSeparator) {
		return nil
	}
	return parsePairs(strings.Split(blob, singleSeparator))
}

// parsePairs walks alternating label/text tokens. Tokens that are not a
// label are skipped, and a label followed by empty text is dropped.
func parsePairs(tokens []string) []ParsedOption {
	var options []ParsedOption
	seen := make(map[string]bool)

	for i := 0; i < len(tokens); i++ {
		token := strings.TrimSpace(tokens[i])
		if !labelPattern.MatchString(token) {
			continue
		}
		if i+1 >= len(tokens) {
			break
		}
		text := strings.TrimSpace(tokens[i+1])
		i++
		if text == "" {
			continue
		}
		options = appendOption(options, seen, token, text)
	}

	return options
}

// parseLineAnchored treats every line opening with "A)", "B." or "C:" as the
// start of an option. Other lines continue the current option. A blob with a
// single anchored line is left to the inline strategy when that line holds a
// run of markers, as in "A) Paris B) London".
func parseLineAnchored(blob string) []ParsedOption {
	var (
		options []ParsedOption
		labels  []string
		texts   []*strings.Builder
	)

	for _, line := range strings.Split(blob, "\n") {
		line = strings.TrimRight(line, "\r")
		if m := lineOptionPattern.FindStringSubmatch(line); m != nil {
			sb := &strings.Builder{}
			sb.WriteString(strings.TrimSpace(m[2]))
			labels = append(labels, m[1])
			texts = append(texts, sb)
			continue
		}
		if len(texts) == 0 {
			continue
		}
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			current := texts[len(texts)-1]
			if current.Len() > 0 {
				current.WriteString(" ")
			}
			current.WriteString(trimmed)
		}
	}

	if len(labels) == 1 && len(inlineMarkers(singleLine(blob))) >= 2 {
		return nil
	}

	seen := make(map[string]bool)
	for i, label := range labels {
		text := strings.TrimSpace(texts[i].String())
		if text == "" {
			continue
		}
		options = appendOption(options, seen, label, text)
	}
	return options
}

// parseInline splits a run of "A)text B)text" segments found on one line.
func parseInline(blob string) []ParsedOption {
	line := singleLine(blob)
	markers := inlineMarkers(line)
	if len(markers) < 2 {
		return nil
	}

	var options []ParsedOption
	seen := make(map[string]bool)
	for i, m := range markers {
		end := len(line)
		if i+1 < len(markers) {
			end = markers[i+1].start
		}
		text := strings.TrimSpace(line[m.textStart:end])
		if text == "" {
			continue
		}
		options = appendOption(options, seen, m.label, text)
	}
	return options
}

type marker struct {
	label     string
	start     int
	textStart int
}

// inlineMarkers finds option markers on a line. Markers preceded by
// whitespace may use either case. Failing that, upper-case markers are
// picked up back to back in A, B, C, D order, as in "A)ParisB)London".
func inlineMarkers(line string) []marker {
	var markers []marker
	for _, m := range inlineMarker.FindAllStringSubmatchIndex(line, -1) {
		markers = append(markers, marker{label: line[m[2]:m[3]], start: m[0], textStart: m[1]})
	}
	if len(markers) >= 2 {
		return markers
	}

	markers = markers[:0]
	pos := 0
	for _, label := range []string{"A", "B", "C", "D"} {
		idx := strings.Index(line[pos:], label+")")
		if idx < 0 {
			break
		}
		start := pos + idx
		markers = append(markers, marker{label: label, start: start, textStart: start + 2})
		pos = start + 2
	}
	return markers
}

func singleLine(blob string) string {
	return strings.Join(strings.Fields(blob), " ")
}

func appendOption(options []ParsedOption, seen map[string]bool, label, text string) []ParsedOption {
	label = strings.ToUpper(label)
	if seen[label] {
		return options
	}
	seen[label] = true
	return append(options, ParsedOption{Label: label, Text: text})
}

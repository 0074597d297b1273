package classifier

import (
	"regexp"
	"strconv"
	"strings"

	"ai-screening-call-service/internal/script"
)

// Duration is a spoken time span found in an answer.
type Duration struct {
	Days   float64
	Phrase string // the matched words, e.g. "two and a half months"
}

var (
	gluedUnit = regexp.MustCompile(`(\d)([a-z])`)
	nonWord   = regexp.MustCompile(`[^a-z0-9.]+`)
)

var smallNumbers = map[string]float64{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
}

var tens = map[string]float64{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

// ParseDuration finds the first "<number> <unit>" span in text. Adjacent
// spans joined by "and" are summed ("one month and fifteen days").
func ParseDuration(text string) (Duration, bool) {
	tokens := tokenize(text)

	for i := 0; i < len(tokens); i++ {
		n, next, ok := parseNumber(tokens, i)
		if !ok || next >= len(tokens) {
			continue
		}
		unit := script.CanonicalUnit(tokens[next])
		if unit == "" || !isUnitWord(tokens[next]) {
			continue
		}

		total := n * script.UnitDays(unit)
		end := next + 1
		for end < len(tokens) && tokens[end] == "and" {
			m, j, ok := parseNumber(tokens, end+1)
			if !ok || j >= len(tokens) || !isUnitWord(tokens[j]) {
				break
			}
			total += m * script.UnitDays(script.CanonicalUnit(tokens[j]))
			end = j + 1
		}
		return Duration{Days: total, Phrase: strings.Join(tokens[i:end], " ")}, true
	}
	return Duration{}, false
}

// isUnitWord rejects one-letter abbreviations, which are too ambiguous in speech.
func isUnitWord(tok string) bool {
	return len(tok) > 1 && script.CanonicalUnit(tok) != ""
}

func tokenize(text string) []string {
	s := strings.ToLower(text)
	s = strings.ReplaceAll(s, "-", " ")
	s = gluedUnit.ReplaceAllString(s, "$1 $2")
	s = nonWord.ReplaceAllString(s, " ")

	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// parseNumber reads a number starting at tokens[i] and returns its value and
// the index of the first token after it.
func parseNumber(tokens []string, i int) (float64, int, bool) {
	if i >= len(tokens) {
		return 0, i, false
	}
	tok := tokens[i]

	var value float64
	j := i
	switch {
	case tok == "half":
		value, j = 0.5, i+1
		if j < len(tokens) && (tokens[j] == "a" || tokens[j] == "an") {
			j++
		}
		return value, j, true
	case tok == "a" || tok == "an":
		value, j = 1, i+1
	case tok == "couple":
		value, j = 2, i+1
		if j < len(tokens) && tokens[j] == "of" {
			j++
		}
		return value, j, true
	default:
		if v, err := strconv.ParseFloat(tok, 64); err == nil {
			value, j = v, i+1
		} else if v, next, ok := parseWords(tokens, i); ok {
			value, j = v, next
		} else {
			return 0, i, false
		}
	}

	// "one and a half", "two and half"
	if j+2 < len(tokens) && tokens[j] == "and" && tokens[j+1] == "a" && tokens[j+2] == "half" {
		value += 0.5
		j += 3
	} else if j+1 < len(tokens) && tokens[j] == "and" && tokens[j+1] == "half" {
		value += 0.5
		j += 2
	}
	return value, j, true
}

// parseWords reads spelled-out numbers such as "forty five" or "one hundred twenty".
func parseWords(tokens []string, i int) (float64, int, bool) {
	var current float64
	j := i
	for ; j < len(tokens); j++ {
		tok := tokens[j]
		if v, ok := smallNumbers[tok]; ok {
			current += v
			continue
		}
		if v, ok := tens[tok]; ok {
			current += v
			continue
		}
		if tok == "hundred" && j > i {
			if current == 0 {
				current = 1
			}
			current *= 100
			continue
		}
		break
	}
	if j == i {
		return 0, i, false
	}
	return current, j, true
}

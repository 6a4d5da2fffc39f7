// Package grammar assembles a plate number from the strings read off the
// plate regions of one frame and validates it against the plate layout:
// a two-digit region code, a series letter, a series digit and a four or
// five digit serial (for example 12A345678 or 12A34567).
package grammar

import (
	"regexp"
	"sort"
)

// Kind identifies which structural rule a region string satisfied.
type Kind int

const (
	// None means the string matched no rule and contributes nothing.
	None Kind = iota
	// Body5 is a five digit serial opening the string.
	Body5
	// Body4 is a string that is exactly a four digit serial.
	Body4
	// Prefix is the region code and series opening the string. A string
	// that already reads as a whole plate is a Prefix contributing itself.
	Prefix
)

func (k Kind) String() string {
	switch k {
	case Body5:
		return "body5"
	case Body4:
		return "body4"
	case Prefix:
		return "prefix"
	default:
		return "none"
	}
}

// Rule is the outcome of classifying one region string: the rule that
// matched and the run of characters it contributes.
type Rule struct {
	Kind Kind
	Run  string
}

var (
	body5Pattern  = regexp.MustCompile(`^\d{5}`)
	body4Pattern  = regexp.MustCompile(`^\d{4}$`)
	prefixPattern = regexp.MustCompile(`^\d{2}[A-Z]\d`)
	platePattern  = regexp.MustCompile(`^\d{2}[A-Z]\d\d{4,5}$`)
)

// Classify tests s against the rules in priority order Body5, Body4, Prefix
// and returns the first that matches. Every rule is anchored at the start of
// s, so a single-row plate such as 12A345678 is a Prefix, not a serial.
func Classify(s string) Rule {
	if run := body5Pattern.FindString(s); run != "" {
		return Rule{Kind: Body5, Run: run}
	}
	if body4Pattern.MatchString(s) {
		return Rule{Kind: Body4, Run: s}
	}
	if Valid(s) {
		return Rule{Kind: Prefix, Run: s}
	}
	if run := prefixPattern.FindString(s); run != "" {
		return Rule{Kind: Prefix, Run: run}
	}
	return Rule{Kind: None}
}

// Valid reports whether number has the full plate layout.
func Valid(number string) bool {
	return platePattern.MatchString(number)
}

// Guess is a structurally valid plate number assembled from one frame.
type Guess struct {
	Number string
	// Regions is the number of region strings that contributed to Number.
	Regions int
}

// Aggregate combines the strings read from one frame's plate regions.
// Longer strings are considered first. Body runs are appended and the
// prefix run is prepended. The result is returned only when it is a valid
// plate number that differs from lastAccepted.
func Aggregate(regions []string, lastAccepted string) (Guess, bool) {
	if len(regions) == 0 {
		return Guess{}, false
	}

	ordered := make([]string, len(regions))
	copy(ordered, regions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i]) > len(ordered[j])
	})

	number := ""
	used := 0
	for _, s := range ordered {
		rule := Classify(s)
		switch rule.Kind {
		case Body5, Body4:
			number += rule.Run
		case Prefix:
			number = rule.Run + number
		default:
			continue
		}
		used++
	}

	if !Valid(number) || number == lastAccepted {
		return Guess{}, false
	}
	return Guess{Number: number, Regions: used}, true
}

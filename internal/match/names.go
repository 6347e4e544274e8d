// Package match decides when two independently labeled sources refer to the
// same participant, line and outcome.
package match

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Rule identifies which name-matching rule succeeded.
type Rule int

const (
	RuleNone Rule = iota
	RuleExact
	RulePrefix
	RuleLastWord
	RuleContains
	RuleFirstWord
	RuleAllWords
)

func (r Rule) String() string {
	switch r {
	case RuleExact:
		return "exact"
	case RulePrefix:
		return "prefix"
	case RuleLastWord:
		return "last_word"
	case RuleContains:
		return "contains"
	case RuleFirstWord:
		return "first_word"
	case RuleAllWords:
		return "all_words"
	}
	return "none"
}

// PointTolerance is the maximum difference for two lines to be the same line.
const PointTolerance = 0.01

// Normalize trims, lowercases and collapses internal whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// TeamsMatch reports whether two participant names refer to the same entity.
func TeamsMatch(a, b string) bool {
	_, ok := MatchRule(a, b)
	return ok
}

// MatchRule applies the ordered rules and returns the first that matches.
//
//  1. exact (after Normalize)
//  2. one name is a prefix of the other ("Gonzaga" / "Gonzaga Bulldogs")
//  3. same last word when either side has 2+ words ("Heat" / "Miami Heat")
//  4. one name contains the other
//  5. same first word longer than 3 letters ("Brighton & Hove Albion" / "Brighton FC")
//  6. every word longer than 2 letters of the shorter name is in the longer
func MatchRule(a, b string) (Rule, bool) {
	n1, n2 := Normalize(a), Normalize(b)
	if n1 == "" || n2 == "" {
		return RuleNone, false
	}

	if n1 == n2 {
		return RuleExact, true
	}

	if strings.HasPrefix(n1, n2) || strings.HasPrefix(n2, n1) {
		return RulePrefix, true
	}

	w1, w2 := strings.Fields(n1), strings.Fields(n2)
	if (len(w1) >= 2 || len(w2) >= 2) && w1[len(w1)-1] == w2[len(w2)-1] {
		return RuleLastWord, true
	}

	if strings.Contains(n1, n2) || strings.Contains(n2, n1) {
		return RuleContains, true
	}

	if w1[0] == w2[0] && len(w1[0]) > 3 {
		return RuleFirstWord, true
	}

	if len(w1) > 1 && len(w2) > 1 {
		shorter, longer := w1, w2
		if len(w2) < len(w1) {
			shorter, longer = w2, w1
		}
		inLonger := make(map[string]bool, len(longer))
		for _, w := range longer {
			inLonger[w] = true
		}
		significant := 0
		all := true
		for _, w := range shorter {
			if len(w) <= 2 {
				continue
			}
			significant++
			if !inLonger[w] {
				all = false
				break
			}
		}
		if all && significant > 0 {
			return RuleAllWords, true
		}
	}

	return RuleNone, false
}

// MatchGame reports whether a reference game (away @ home) matches a
// counterparty pair given in either orientation. swapped is true when the
// counterparty lists the teams the other way round.
func MatchGame(refAway, refHome, cpA, cpB string) (matched, swapped bool) {
	if TeamsMatch(refAway, cpA) && TeamsMatch(refHome, cpB) {
		return true, false
	}
	if TeamsMatch(refAway, cpB) && TeamsMatch(refHome, cpA) {
		return true, true
	}
	return false, false
}

// PointsMatch reports whether two lines are equal within PointTolerance.
func PointsMatch(a, b float64) bool {
	return math.Abs(a-b) <= PointTolerance
}

// AwayPoint returns the away line for a home line; spreads are symmetric.
func AwayPoint(homePoint float64) float64 {
	return -homePoint
}

// OutcomeLabel returns the last parenthesized segment of a counterparty label.
// "Bulls vs. Pistons (Bulls)" → "Bulls"; "Spread: Thunder (-7.5) (Thunder)" → "Thunder".
// Labels without parentheses are returned trimmed.
func OutcomeLabel(label string) string {
	start := strings.LastIndex(label, "(")
	end := strings.LastIndex(label, ")")
	if start == -1 || end == -1 || end <= start {
		return strings.TrimSpace(label)
	}
	return strings.TrimSpace(label[start+1 : end])
}

var (
	spreadTeamRe = regexp.MustCompile(`(?i)spread:\s*(.+?)\s*\(`)
	spreadLineRe = regexp.MustCompile(`\(\s*([+-]?\d+(?:\.\d+)?)\s*\)`)
)

// ParseSpreadQuestion extracts the reference team and line from a spread question.
// "Spread: Thunder (-7.5)" → ("Thunder", -7.5)
func ParseSpreadQuestion(question string) (string, float64, bool) {
	if !strings.Contains(strings.ToLower(question), "spread") {
		return "", 0, false
	}
	mTeam := spreadTeamRe.FindStringSubmatch(question)
	mLine := spreadLineRe.FindStringSubmatch(question)
	if mTeam == nil || mLine == nil {
		return "", 0, false
	}
	team := strings.TrimSpace(mTeam[1])
	line, err := strconv.ParseFloat(mLine[1], 64)
	if team == "" || err != nil {
		return "", 0, false
	}
	return team, line, true
}

// TotalSide maps an outcome label to Over or Under.
func TotalSide(label string) (string, bool) {
	switch Normalize(OutcomeLabel(label)) {
	case "over", "o":
		return "Over", true
	case "under", "u":
		return "Under", true
	}
	return "", false
}

// Command validate_matching reports which rule, if any, matches pairs of
// team names. Pairs come from two arguments or from a file with one
// tab-separated pair per line; with no arguments a built-in set is checked.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"sports-value-bot/internal/match"
	"sports-value-bot/internal/polymarket"
)

type pair struct {
	a, b string
	want bool // only meaningful for the built-in set
}

var builtin = []pair{
	{"Los Angeles Lakers", "Lakers", true},
	{"LA Clippers", "Los Angeles Clippers", true},
	{"Manchester United", "Man United", true},
	{"Miami (FL) Hurricanes", "Miami Hurricanes", true},
	{"Gonzaga", "Gonzaga Bulldogs", true},
	{"Brighton & Hove Albion", "Brighton FC", true},
	{"Los Angeles Lakers", "Los Angeles Clippers", false},
	{"Orlando Magic", "Utah Jazz", false},
	{"Lakers", "Clippers", false},
}

func main() {
	var pairs []pair
	checkWant := false

	switch len(os.Args) {
	case 1:
		pairs = builtin
		checkWant = true
	case 2:
		p, err := readPairs(os.Args[1])
		if err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
		pairs = p
	case 3:
		pairs = []pair{{a: os.Args[1], b: os.Args[2]}}
	default:
		fmt.Println("usage: validate_matching [file | name-a name-b]")
		os.Exit(2)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("TEAM NAME MATCHING")
	fmt.Println(strings.Repeat("=", 80))

	matched, failures := 0, 0
	for _, p := range pairs {
		rule, ok := match.MatchRule(p.a, p.b)
		status := "no match"
		if ok {
			status = rule.String()
			matched++
		}
		mark := ""
		if checkWant {
			if ok == p.want {
				mark = "  ✓"
			} else {
				mark = "  ✗"
				failures++
			}
		}
		fmt.Printf("%-32s %-32s %-14s%s\n", p.a, p.b, status, mark)
		fmt.Printf("    normalized: %q vs %q  slug tokens: %v\n", match.Normalize(p.a), match.Normalize(p.b), polymarket.TeamTokens(p.a))
	}

	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("Pairs: %d  Matched: %d\n", len(pairs), matched)
	if failures > 0 {
		fmt.Printf("Unexpected results: %d\n", failures)
		os.Exit(1)
	}
}

func readPairs(path string) ([]pair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []pair
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		a, b, ok := strings.Cut(text, "\t")
		if !ok {
			return nil, fmt.Errorf("%s:%d: expected two tab-separated names", path, line)
		}
		out = append(out, pair{a: strings.TrimSpace(a), b: strings.TrimSpace(b)})
	}
	return out, sc.Err()
}

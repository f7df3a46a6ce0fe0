package utils

import (
	"bufio"
	"os"
	"strings"
)

// ExclusionList holds terms used to drop unwanted pins from a board feed.
// Terms are matched case-insensitively against pin titles and source
// domains.
type ExclusionList struct {
	terms []string
}

// NewExclusionList builds a list from terms already in memory
func NewExclusionList(terms []string) *ExclusionList {
	list := &ExclusionList{}
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term != "" {
			list.terms = append(list.terms, term)
		}
	}
	return list
}

// LoadExclusionList loads exclusion terms from a file, one per line.
// Blank lines and lines starting with # are ignored. A missing file is an
// empty list, not an error.
func LoadExclusionList(path string) (*ExclusionList, error) {
	if path == "" {
		return &ExclusionList{}, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &ExclusionList{}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var terms []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		term := strings.TrimSpace(scanner.Text())
		if term != "" && !strings.HasPrefix(term, "#") {
			terms = append(terms, term)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &ExclusionList{terms: terms}, nil
}

// Len returns the number of loaded terms
func (l *ExclusionList) Len() int {
	return len(l.terms)
}

// Matches checks whether a pin's title or source domain contains any
// exclusion term. Returns (matched, matchedTerm).
func (l *ExclusionList) Matches(title, domain string) (bool, string) {
	if len(l.terms) == 0 {
		return false, ""
	}

	titleLower := strings.ToLower(title)
	domainLower := strings.ToLower(domain)

	for _, term := range l.terms {
		termLower := strings.ToLower(term)
		if strings.Contains(titleLower, termLower) || strings.Contains(domainLower, termLower) {
			return true, term
		}
	}

	return false, ""
}

package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/repo-search/pkg/errors"
)

// Column positions in the repository CSV.
const (
	ColName = iota
	ColDescription
	ColURL
	ColSize
	ColStars
	ColForks
	ColIssues
	ColWatchers
	ColLanguage
	ColTopics

	NumColumns
)

// Record is one parsed repository row.
type Record struct {
	Name        string
	Description string
	URL         string
	Size        int64
	Stars       int64
	Forks       int64
	Issues      int64
	Watchers    int64
	Language    string
	Topics      []string
}

// SearchText is the text the index is built from.
func (r Record) SearchText() string {
	return r.Name + " " + r.Description
}

// ParseFields splits one raw CSV record into its fields.
func ParseFields(raw []byte) ([]string, error) {
	cr := csv.NewReader(bytes.NewReader(raw))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	fields, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedRecord, err)
	}
	return fields, nil
}

// ParseRecord parses exactly one raw CSV record. Records with fewer than
// NumColumns fields are rejected. Non-numeric counters parse as 0.
func ParseRecord(raw []byte) (Record, error) {
	fields, err := ParseFields(raw)
	if err != nil {
		return Record{}, err
	}
	return FromFields(fields)
}

func FromFields(fields []string) (Record, error) {
	if len(fields) < NumColumns {
		return Record{}, fmt.Errorf("%w: %d fields, want %d", apperrors.ErrMalformedRecord, len(fields), NumColumns)
	}
	return Record{
		Name:        strings.TrimSpace(fields[ColName]),
		Description: strings.TrimSpace(fields[ColDescription]),
		URL:         strings.TrimSpace(fields[ColURL]),
		Size:        parseCount(fields[ColSize]),
		Stars:       parseCount(fields[ColStars]),
		Forks:       parseCount(fields[ColForks]),
		Issues:      parseCount(fields[ColIssues]),
		Watchers:    parseCount(fields[ColWatchers]),
		Language:    strings.TrimSpace(fields[ColLanguage]),
		Topics:      ParseTopics(fields[ColTopics]),
	}, nil
}

func parseCount(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ParseTopics decodes the topics column, which holds a list literal such as
// ['cli', "web-framework"]. Anything that is not a bracketed list yields an
// empty slice.
func ParseTopics(s string) []string {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return []string{}
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return []string{}
	}
	parts := strings.Split(inner, ",")
	topics := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, `'"`)
		if p != "" {
			topics = append(topics, p)
		}
	}
	return topics
}

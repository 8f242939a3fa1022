// Package sejm models the legislative document API and provides a thin
// client over the resilient fetcher.
package sejm

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Unknown is the sentinel substituted for absent optional fields.
const Unknown = "?"

// Process describes one legislative proceeding as returned by the
// term-level process listing. The upstream feed is loose about types (print
// numbers appear both as strings and integers, the process number under
// either "num" or "number"), so decoding is tolerant.
type Process struct {
	Number string
	Title  string
	Prints []int
}

// UnmarshalJSON decodes a process descriptor, substituting sentinels for
// absent optional fields.
func (p *Process) UnmarshalJSON(data []byte) error {
	var raw struct {
		Num    json.RawMessage   `json:"num"`
		Number json.RawMessage   `json:"number"`
		Title  string            `json:"title"`
		Prints []json.RawMessage `json:"prints"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode process: %w", err)
	}

	p.Number = flexString(raw.Num)
	if p.Number == "" {
		p.Number = flexString(raw.Number)
	}
	if p.Number == "" {
		p.Number = Unknown
	}
	p.Title = raw.Title

	p.Prints = p.Prints[:0]
	for _, pr := range raw.Prints {
		if n, ok := flexInt(pr); ok {
			p.Prints = append(p.Prints, n)
		}
	}
	return nil
}

// Print describes a filed document and its attachments.
type Print struct {
	Number       int
	Title        string
	DocumentDate string
	DeliveryDate string
	Attachments  []string
}

// UnmarshalJSON decodes a print descriptor with the same tolerance rules.
func (p *Print) UnmarshalJSON(data []byte) error {
	var raw struct {
		Number       json.RawMessage `json:"number"`
		Title        string          `json:"title"`
		DocumentDate string          `json:"documentDate"`
		DeliveryDate string          `json:"deliveryDate"`
		Attachments  []string        `json:"attachments"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode print: %w", err)
	}

	if n, ok := flexInt(raw.Number); ok {
		p.Number = n
	}
	p.Title = raw.Title
	p.DocumentDate = orUnknown(raw.DocumentDate)
	p.DeliveryDate = orUnknown(raw.DeliveryDate)
	p.Attachments = raw.Attachments
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

// flexString reads a JSON value that may be a string or a number.
func flexString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// flexInt reads a JSON value that may be a number or a numeric string.
func flexInt(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, convErr := strconv.Atoi(s); convErr == nil {
			return v, true
		}
	}
	return 0, false
}

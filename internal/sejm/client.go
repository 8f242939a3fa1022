package sejm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Fetcher is the network dependency; satisfied by *fetch.Client.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Client reads process, print, and attachment resources for one API root.
type Client struct {
	baseURL string
	fetcher Fetcher
}

// NewClient builds a Client on top of the given fetcher.
func NewClient(baseURL string, fetcher Fetcher) *Client {
	return &Client{baseURL: baseURL, fetcher: fetcher}
}

// Processes lists every legislative process of a term.
func (c *Client) Processes(ctx context.Context, term int) ([]Process, error) {
	body, err := c.fetcher.Fetch(ctx, fmt.Sprintf("%s/term%d/processes", c.baseURL, term))
	if err != nil {
		return nil, fmt.Errorf("list processes for term %d: %w", term, err)
	}
	var procs []Process
	if err := json.Unmarshal(body, &procs); err != nil {
		return nil, fmt.Errorf("decode process list for term %d: %w", term, err)
	}
	return procs, nil
}

// Print fetches the metadata of one print, including attachment filenames.
func (c *Client) Print(ctx context.Context, term, number int) (Print, error) {
	body, err := c.fetcher.Fetch(ctx, fmt.Sprintf("%s/term%d/prints/%d", c.baseURL, term, number))
	if err != nil {
		return Print{}, fmt.Errorf("fetch print %d: %w", number, err)
	}
	var p Print
	if err := json.Unmarshal(body, &p); err != nil {
		return Print{}, fmt.Errorf("decode print %d: %w", number, err)
	}
	if p.Number == 0 {
		p.Number = number
	}
	return p, nil
}

// Attachment downloads the raw bytes of one attachment.
func (c *Client) Attachment(ctx context.Context, term, printNumber int, filename string) ([]byte, error) {
	body, err := c.fetcher.Fetch(ctx, c.AttachmentURL(term, printNumber, filename))
	if err != nil {
		return nil, fmt.Errorf("fetch attachment %s: %w", filename, err)
	}
	return body, nil
}

// AttachmentURL renders the canonical download URL recorded in output rows.
func (c *Client) AttachmentURL(term, printNumber int, filename string) string {
	return fmt.Sprintf("%s/term%d/prints/%d/%s", c.baseURL, term, printNumber, filename)
}

// ProcessURL renders the public proceedings page for a process root row.
func ProcessURL(term int, processNumber string) string {
	return fmt.Sprintf("https://sejm.gov.pl/Sejm%d.nsf/przebieg.xsp?id=%s", term, processNumber)
}

// ProcessURL satisfies crawl orchestration; the page lives outside the API
// root, so the package-level helper does the rendering.
func (c *Client) ProcessURL(term int, processNumber string) string {
	return ProcessURL(term, processNumber)
}

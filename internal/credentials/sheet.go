package credentials

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// SheetProvider scrapes a spreadsheet published as an HTML export. The only
// markup assumption is the published row shape: table rows whose cells are
// [label, email, password]. The row is matched by label "<service> <slot>";
// when no label matches, the first row whose second column looks like an
// email and whose third column is non-empty is used.
type SheetProvider struct {
	URL     string
	Service string
	Client  *http.Client
}

func (p *SheetProvider) Name() string { return "sheet" }

func (p *SheetProvider) Resolve(ctx context.Context, slot string) (Credentials, error) {
	if p.URL == "" {
		return Credentials{}, ErrNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("sheet request: %w", err)
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("sheet fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Credentials{}, fmt.Errorf("sheet fetch: status %d", resp.StatusCode)
	}

	rows, err := parseTableRows(resp.Body)
	if err != nil {
		return Credentials{}, fmt.Errorf("sheet parse: %w", err)
	}

	label := strings.ToLower(fmt.Sprintf("%s %s", p.Service, slot))
	var fallback *Credentials
	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		if strings.ToLower(strings.TrimSpace(row[0])) == label {
			return Credentials{Slot: slot, Email: strings.TrimSpace(row[1]), Password: strings.TrimSpace(row[2])}, nil
		}
		if fallback == nil && looksLikeEmail(strings.TrimSpace(row[1])) && strings.TrimSpace(row[2]) != "" {
			fallback = &Credentials{Slot: slot, Email: strings.TrimSpace(row[1]), Password: strings.TrimSpace(row[2])}
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return Credentials{}, ErrNotFound
}

// parseTableRows walks the export's DOM and returns the text content of
// every <tr> as a slice of cell strings.
func parseTableRows(r io.Reader) ([][]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					cells = append(cells, nodeText(c))
				}
			}
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return rows, nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

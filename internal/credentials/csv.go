package credentials

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// CSVProvider reads the CSV export of the credential spreadsheet. Rows are
// [service, email, password]; rows tagged with this provider's service are
// matched by position, so slot "2" picks the second tagged row. Opaque slot
// keys cannot be matched positionally and resolve to not found.
type CSVProvider struct {
	URL     string
	Service string
	Client  *http.Client
}

func (p *CSVProvider) Name() string { return "csv" }

func (p *CSVProvider) Resolve(ctx context.Context, slot string) (Credentials, error) {
	if p.URL == "" {
		return Credentials{}, ErrNotFound
	}
	index, err := strconv.Atoi(slot)
	if err != nil || index < 1 {
		return Credentials{}, ErrNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("csv request: %w", err)
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("csv fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Credentials{}, fmt.Errorf("csv fetch: status %d", resp.StatusCode)
	}

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = -1 // exports pad rows inconsistently

	seen := 0
	for {
		row, err := reader.Read()
		if err != nil {
			// io.EOF and malformed trailing rows both end the scan; a
			// partial read is preferable to a failed request.
			break
		}
		if len(row) < 3 || !strings.EqualFold(strings.TrimSpace(row[0]), p.Service) {
			continue
		}
		seen++
		if seen == index {
			email := strings.TrimSpace(row[1])
			password := strings.TrimSpace(row[2])
			if email == "" || password == "" {
				return Credentials{}, ErrNotFound
			}
			return Credentials{Slot: slot, Email: email, Password: password}, nil
		}
	}
	return Credentials{}, ErrNotFound
}

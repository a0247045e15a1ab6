package qjob

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DefaultEnsemblURL is the public Ensembl REST endpoint.
const DefaultEnsemblURL = "https://rest.ensembl.org"

// EnsemblFetcher looks up protein sequences by Ensembl id (ENSP...) through
// the Ensembl REST sequence endpoint.
type EnsemblFetcher struct {
	baseURL string
	client  *http.Client
}

// NewEnsemblFetcher uses http.DefaultClient; an empty baseURL means
// DefaultEnsemblURL.
func NewEnsemblFetcher(baseURL string) *EnsemblFetcher {
	if baseURL == "" {
		baseURL = DefaultEnsemblURL
	}
	return &EnsemblFetcher{baseURL: strings.TrimRight(baseURL, "/"), client: http.DefaultClient}
}

// FetchSequence returns ok=false when Ensembl has no sequence for id.
func (f *EnsemblFetcher) FetchSequence(ctx context.Context, id string) (string, bool, error) {
	u := fmt.Sprintf("%s/sequence/id/%s?type=protein&multiple_sequences=1", f.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", "text/x-fasta")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("fetching %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return "", false, nil
	case resp.StatusCode != http.StatusOK:
		return "", false, fmt.Errorf("fetching %s: ensembl returned %s", id, resp.Status)
	}
	seq, err := firstFASTARecord(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", id, err)
	}
	return seq, seq != "", nil
}

// firstFASTARecord joins the sequence lines of the first record of r.
func firstFASTARecord(r io.Reader) (string, error) {
	var b strings.Builder
	seen := false
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, ">") {
			if seen {
				break
			}
			seen = true
			continue
		}
		b.WriteString(line)
	}
	return b.String(), sc.Err()
}

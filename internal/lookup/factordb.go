// Package lookup provides a client for factordb.com, the public database of
// known factorizations. The engine consults it before spending CPU on targets
// someone else already factored.
package lookup

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/factor-engine/internal/engine"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 10 * time.Second

// DefaultUserAgent is the user agent string for factordb requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; FactorEngine/1.0)"

// Status codes factordb reports for a queried number.
const (
	StatusFullyFactored  = "FF"  // fully factored, all prime factors known
	StatusCompositeKnown = "CF"  // composite with some factors known
	StatusComposite      = "C"   // composite, no factors known
	StatusPrime          = "P"   // proven prime
	StatusProbablePrime  = "PRP" // probable prime
	StatusUnknown        = "U"   // not yet classified
)

// Client queries factordb.com over its HTML interface.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// New returns a client for the factordb instance at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  DefaultUserAgent,
	}
}

// Lookup queries factordb for n and returns its status plus any fully known
// factors. Factors are only populated for fully factored numbers; partial or
// truncated listings come back with the status alone.
func (c *Client) Lookup(ctx context.Context, n string) (*engine.RemoteFactorization, error) {
	reqURL := fmt.Sprintf("%s/index.php?query=%s", c.baseURL, url.QueryEscape(n))

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create factordb request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("factordb request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("factordb returned HTTP status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse factordb response: %w", err)
	}

	return parseResult(doc, n)
}

// parseResult extracts the status cell and the factor links from a factordb
// result page. The page shows one table row per number: a status column and
// the factorization as anchors separated by "=" and "*" text.
func parseResult(doc *goquery.Document, n string) (*engine.RemoteFactorization, error) {
	result := &engine.RemoteFactorization{Status: StatusUnknown}

	doc.Find("td").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		switch strings.ToUpper(strings.TrimSpace(cell.Text())) {
		case StatusFullyFactored:
			result.Status = StatusFullyFactored
		case StatusCompositeKnown:
			result.Status = StatusCompositeKnown
		case StatusComposite:
			result.Status = StatusComposite
		case StatusPrime:
			result.Status = StatusPrime
		case StatusProbablePrime:
			result.Status = StatusProbablePrime
		case StatusUnknown:
			result.Status = StatusUnknown
		default:
			return true // keep scanning
		}
		return false
	})

	truncated := false
	doc.Find(`a[href*="index.php?id="]`).Each(func(_ int, link *goquery.Selection) {
		text := strings.TrimSpace(link.Text())
		if text == "" || text == n {
			return // the first link echoes the queried number
		}
		// Long factors are displayed truncated; their digits cannot be
		// recovered from the page.
		if strings.Contains(text, "...") {
			truncated = true
			return
		}

		factor, repeat := splitExponent(text)
		if !isDigits(factor) {
			return // not a number, e.g. navigation links
		}
		// An exponent may ride in a <sup> sibling rather than the anchor text.
		if sup := link.Next(); repeat == 1 && sup.Is("sup") {
			if k, err := strconv.Atoi(strings.TrimSpace(sup.Text())); err == nil && k > 1 {
				repeat = k
			}
		}
		for i := 0; i < repeat; i++ {
			result.Factors = append(result.Factors, factor)
		}
	})

	// A truncated listing is unusable as a factorization even when the
	// status says fully factored.
	if truncated {
		result.Factors = nil
	}
	if result.Status != StatusFullyFactored {
		result.Factors = nil
	}

	return result, nil
}

// splitExponent turns "1009^2" into ("1009", 2). Plain factors return with
// a repeat count of 1.
func splitExponent(text string) (string, int) {
	base, exp, found := strings.Cut(text, "^")
	if !found {
		return text, 1
	}
	k, err := strconv.Atoi(exp)
	if err != nil || k < 1 {
		return base, 1
	}
	return base, k
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

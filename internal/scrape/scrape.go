// Package scrape retrieves the rendered home page of the launched app and
// the stylesheets it links, for embedding in the preview.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// maxBody caps how much of a page or stylesheet is read.
const maxBody = 8 << 20

// Credentials names the environment variables holding basic-auth credentials.
type Credentials struct {
	UserEnv     string
	PasswordEnv string
}

// DefaultCredentials are the variable names used when none are configured.
var DefaultCredentials = Credentials{UserEnv: "BASIC_AUTH_USER", PasswordEnv: "BASIC_AUTH_PASSWORD"}

// Lookup reads the credentials from the environment. Missing variables
// yield empty strings; the request is still sent with basic auth.
func (c Credentials) Lookup() (string, string) {
	return os.Getenv(c.UserEnv), os.Getenv(c.PasswordEnv)
}

// Page is the outcome of a fetch.
type Page struct {
	Status             int
	HTML               string // pretty-printed document, empty unless Status is 200
	CSS                string // linked stylesheets concatenated in link order
	SkippedStylesheets []string
}

// Fetcher retrieves pages over HTTP.
type Fetcher struct {
	client *http.Client
	creds  Credentials
	log    *slog.Logger
}

// New builds a Fetcher. A nil client gets a default client with timeout.
func New(client *http.Client, creds Credentials, log *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if creds.UserEnv == "" && creds.PasswordEnv == "" {
		creds = DefaultCredentials
	}
	return &Fetcher{client: client, creds: creds, log: log}
}

// Fetch requests pageURL and, on 200, gathers its stylesheets. Non-200
// responses produce an empty Page with Status set and no error; transport
// failures are returned as errors.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string, credentialsRequired bool) (Page, error) {
	f.log.Info("scraping page", "url", pageURL, "auth", credentialsRequired)
	base, err := url.Parse(pageURL)
	if err != nil {
		return Page{}, fmt.Errorf("parse page url: %w", err)
	}
	status, body, err := f.get(ctx, pageURL, credentialsRequired)
	if err != nil {
		return Page{}, err
	}
	if status != http.StatusOK {
		f.log.Error("failed to scrape page", "url", pageURL, "status", status)
		return Page{Status: status}, nil
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}

	page := Page{Status: status, HTML: Prettify(doc)}
	var css strings.Builder
	for _, href := range StylesheetLinks(doc) {
		ref, err := url.Parse(href)
		if err != nil {
			f.log.Warn("skipping stylesheet", "href", href, "error", err)
			page.SkippedStylesheets = append(page.SkippedStylesheets, href)
			continue
		}
		abs := base.ResolveReference(ref)
		sameOrigin := abs.Scheme == base.Scheme && abs.Host == base.Host
		st, b, err := f.get(ctx, abs.String(), credentialsRequired && sameOrigin)
		if err != nil || st != http.StatusOK {
			f.log.Warn("skipping stylesheet", "url", abs.String(), "status", st, "error", err)
			page.SkippedStylesheets = append(page.SkippedStylesheets, abs.String())
			continue
		}
		css.Write(b)
	}
	page.CSS = css.String()
	return page, nil
}

func (f *Fetcher) get(ctx context.Context, u string, auth bool) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, err
	}
	if auth {
		user, pass := f.creds.Lookup()
		req.SetBasicAuth(user, pass)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, b, nil
}

// StylesheetLinks returns the href of every <link rel="stylesheet"> in
// document order. rel is matched as a space separated, case-insensitive list.
func StylesheetLinks(doc *html.Node) []string {
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "link" {
			var rel, href string
			for _, a := range n.Attr {
				switch strings.ToLower(a.Key) {
				case "rel":
					rel = a.Val
				case "href":
					href = a.Val
				}
			}
			if href != "" && hasToken(rel, "stylesheet") {
				out = append(out, href)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if strings.EqualFold(f, token) {
			return true
		}
	}
	return false
}

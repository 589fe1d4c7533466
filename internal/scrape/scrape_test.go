package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/loykin/railspreview/internal/logger"
	"golang.org/x/net/html"
)

func newFetcher() *Fetcher {
	return New(nil, Credentials{UserEnv: "RP_TEST_USER", PasswordEnv: "RP_TEST_PASS"}, logger.Discard())
}

func TestFetch_StylesheetsInOrderSkippingFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `<html><head>
<link rel="stylesheet" href="/assets/app.css">
<link rel="stylesheet" href="missing.css">
<link rel="icon" href="/favicon.ico">
</head><body><h1>Blog</h1></body></html>`)
	})
	mux.HandleFunc("/assets/app.css", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "h1{color:red}")
	})
	mux.HandleFunc("/missing.css", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	page, err := newFetcher().Fetch(context.Background(), srv.URL+"/", false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if page.Status != http.StatusOK {
		t.Fatalf("status %d", page.Status)
	}
	if page.CSS != "h1{color:red}" {
		t.Fatalf("css = %q", page.CSS)
	}
	if len(page.SkippedStylesheets) != 1 || !strings.HasSuffix(page.SkippedStylesheets[0], "/missing.css") {
		t.Fatalf("skipped = %v", page.SkippedStylesheets)
	}
	if !strings.Contains(page.HTML, "<h1>") || !strings.Contains(page.HTML, "Blog") {
		t.Fatalf("html missing content: %q", page.HTML)
	}
}

func TestFetch_ConcatenatesInLinkOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/shop", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `<link rel="stylesheet" href="b.css"><link rel="Stylesheet preload" href="a.css">`)
	})
	mux.HandleFunc("/a.css", func(w http.ResponseWriter, r *http.Request) { _, _ = fmt.Fprint(w, "A") })
	mux.HandleFunc("/b.css", func(w http.ResponseWriter, r *http.Request) { _, _ = fmt.Fprint(w, "B") })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	page, err := newFetcher().Fetch(context.Background(), srv.URL+"/shop", false)
	if err != nil {
		t.Fatal(err)
	}
	if page.CSS != "BA" {
		t.Fatalf("css = %q, want link order", page.CSS)
	}
}

func TestFetch_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	page, err := newFetcher().Fetch(context.Background(), srv.URL, false)
	if err != nil {
		t.Fatalf("non-200 is not an error: %v", err)
	}
	if page.Status != http.StatusInternalServerError || page.HTML != "" || page.CSS != "" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestFetch_BasicAuth(t *testing.T) {
	t.Setenv("RP_TEST_USER", "admin")
	t.Setenv("RP_TEST_PASS", "secret")
	var cssAuth bool
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != "admin" || p != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = fmt.Fprint(w, `<link rel="stylesheet" href="/s.css"><p>private</p>`)
	})
	mux.HandleFunc("/s.css", func(w http.ResponseWriter, r *http.Request) {
		_, _, cssAuth = r.BasicAuth()
		_, _ = fmt.Fprint(w, "p{}")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	page, err := newFetcher().Fetch(context.Background(), srv.URL+"/", true)
	if err != nil {
		t.Fatal(err)
	}
	if page.Status != http.StatusOK || !strings.Contains(page.HTML, "private") {
		t.Fatalf("auth not applied: %+v", page)
	}
	if !cssAuth || page.CSS != "p{}" {
		t.Fatalf("same-origin stylesheet should carry credentials (auth=%v css=%q)", cssAuth, page.CSS)
	}

	page, err = newFetcher().Fetch(context.Background(), srv.URL+"/", false)
	if err != nil {
		t.Fatal(err)
	}
	if page.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", page.Status)
	}
}

func TestFetch_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	if _, err := newFetcher().Fetch(context.Background(), url, false); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestExtractBodyRegion(t *testing.T) {
	got := ExtractBodyRegion(`<html><body><!--c--><p>x</p></body></html>`)
	if got != "<p>x</p>" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractBodyRegion_NestedCommentsAndHead(t *testing.T) {
	src := `<!DOCTYPE html><html><head><title>t</title></head><body class="a"><div><!-- inner --><span>y</span></div></body></html>`
	got := ExtractBodyRegion(src)
	if got != "<div><span>y</span></div>" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractBodyRegion_NoBody(t *testing.T) {
	src := "<p>fragment</p><!-- keep -->"
	if got := ExtractBodyRegion(src); got != src {
		t.Fatalf("input without body must be returned unchanged, got %q", got)
	}
}

func TestPrettify(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<!DOCTYPE html><html><head><style>p{color:red}</style></head><body><p class="x">a &amp; b<br></p></body></html>`))
	if err != nil {
		t.Fatal(err)
	}
	want := `<!DOCTYPE html>
<html>
 <head>
  <style>
p{color:red}
  </style>
 </head>
 <body>
  <p class="x">
   a &amp; b
   <br>
  </p>
 </body>
</html>
`
	if got := Prettify(doc); got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestPrettifyKeepsPreformatted(t *testing.T) {
	doc, err := html.Parse(strings.NewReader("<body><div><pre class=\"ruby\"><code>puts \"hi\"</code>\n  <b>x</b></pre><textarea>a\nb</textarea></div></body>"))
	if err != nil {
		t.Fatal(err)
	}
	got := Prettify(doc)
	for _, want := range []string{
		"   <pre class=\"ruby\"><code>puts &#34;hi&#34;</code>\n  <b>x</b></pre>\n",
		"   <textarea>a\nb</textarea>\n",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in:\n%s", want, got)
		}
	}
}

func TestStylesheetLinks(t *testing.T) {
	doc, _ := html.Parse(strings.NewReader(`<link rel="stylesheet" href="a.css"><link rel="stylesheet"><link href="b.css"><body><link rel="alternate stylesheet" href="c.css"></body>`))
	got := StylesheetLinks(doc)
	if strings.Join(got, ",") != "a.css,c.css" {
		t.Fatalf("got %v", got)
	}
}

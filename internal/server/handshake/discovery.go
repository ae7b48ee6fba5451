package handshake

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

const (
	relAuthorization = "authorization_endpoint"
	relToken         = "token_endpoint"
	relMetadata      = "indieauth-metadata"

	maxDiscoveryBody = 1 << 20
)

// Endpoints are the servers a profile URL delegates authentication to.
type Endpoints struct {
	Issuer        string `json:"issuer,omitempty"`
	Authorization string `json:"authorization_endpoint"`
	Token         string `json:"token_endpoint,omitempty"`
}

// Discover fetches profileURL and extracts its authorization and token
// endpoints. HTTP Link headers take precedence over HTML <link> elements,
// and an indieauth-metadata document takes precedence over both.
func Discover(ctx context.Context, client *http.Client, profileURL string) (Endpoints, error) {
	rels, base, err := fetchRels(ctx, client, profileURL)
	if err != nil {
		return Endpoints{}, err
	}

	if meta, ok := rels[relMetadata]; ok {
		ep, err := fetchMetadata(ctx, client, resolve(base, meta))
		if err != nil {
			return Endpoints{}, err
		}
		if ep.Authorization != "" {
			return ep, nil
		}
	}

	ep := Endpoints{}
	if v, ok := rels[relAuthorization]; ok {
		ep.Authorization = resolve(base, v)
	}
	if v, ok := rels[relToken]; ok {
		ep.Token = resolve(base, v)
	}
	if ep.Authorization == "" {
		return Endpoints{}, fail(KindDiscovery, "%s advertises no %s", profileURL, relAuthorization)
	}
	return ep, nil
}

func fetchRels(ctx context.Context, client *http.Client, target string) (map[string]string, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, fail(KindInvalidRequest, "%v", err)
	}
	req.Header.Set("Accept", "text/html, application/xhtml+xml;q=0.9, */*;q=0.1")

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, transportError(KindDiscovery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fail(KindDiscovery, "GET %s: %s", target, resp.Status)
	}

	base := resp.Request.URL
	rels := map[string]string{}
	for _, link := range resp.Header.Values("Link") {
		for rel, href := range parseLinkHeader(link) {
			if _, seen := rels[rel]; !seen {
				rels[rel] = href
			}
		}
	}

	if isHTML(resp.Header.Get("Content-Type")) {
		for rel, href := range parseHTMLLinks(io.LimitReader(resp.Body, maxDiscoveryBody)) {
			if _, seen := rels[rel]; !seen {
				rels[rel] = href
			}
		}
	}
	return rels, base, nil
}

func fetchMetadata(ctx context.Context, client *http.Client, target string) (Endpoints, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Endpoints{}, fail(KindDiscovery, "metadata url: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Endpoints{}, transportError(KindDiscovery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Endpoints{}, fail(KindDiscovery, "GET %s: %s", target, resp.Status)
	}

	var ep Endpoints
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDiscoveryBody)).Decode(&ep); err != nil {
		return Endpoints{}, fail(KindDiscovery, "metadata %s: %v", target, err)
	}
	return ep, nil
}

// parseLinkHeader parses one Link header value (RFC 8288) into rel -> href.
// A link with several rel values is recorded under each.
func parseLinkHeader(value string) map[string]string {
	out := map[string]string{}
	for _, part := range splitOutsideQuotes(value, ',') {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, "<") {
			continue
		}
		end := strings.Index(part, ">")
		if end < 0 {
			continue
		}
		href := part[1:end]
		for _, param := range splitOutsideQuotes(part[end+1:], ';') {
			name, val, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(name), "rel") {
				continue
			}
			for _, rel := range strings.Fields(strings.Trim(strings.TrimSpace(val), `"`)) {
				rel = strings.ToLower(rel)
				if _, seen := out[rel]; !seen {
					out[rel] = href
				}
			}
		}
	}
	return out
}

func splitOutsideQuotes(s string, sep rune) []string {
	var parts []string
	var b strings.Builder
	quoted := false
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			b.WriteRune(r)
		case r == sep && !quoted:
			parts = append(parts, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	return append(parts, b.String())
}

// parseHTMLLinks collects <link rel=... href=...> and <a rel=... href=...>
// elements. The first occurrence of each rel wins.
func parseHTMLLinks(r io.Reader) map[string]string {
	out := map[string]string{}
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return out
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			if (tag != "link" && tag != "a") || !hasAttr {
				continue
			}
			var rel, href string
			hasHref := false
			for {
				key, val, more := z.TagAttr()
				switch string(key) {
				case "rel":
					rel = string(val)
				case "href":
					href = string(val)
					hasHref = true
				}
				if !more {
					break
				}
			}
			if !hasHref {
				continue
			}
			for _, v := range strings.Fields(rel) {
				v = strings.ToLower(v)
				if _, seen := out[v]; !seen {
					out[v] = href
				}
			}
		}
	}
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType == ""
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func transportError(kind Kind, err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: kind, Err: err}
}

// Package readme implements the README Renderer (spec §4.11): Markdown
// to sanitized HTML, relative link resolution, and upload of the result.
package readme

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/crates-registry/core/blobstore"
	"github.com/crates-registry/core/internal/apperror"
)

const op = "readme"

// policy is the strict allow-list §4.11 specifies: headings, lists,
// paragraphs, code, tables, "a" restricted to http(s) href with
// rel=nofollow, and images restricted to http(s) src.
func policy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowStandardURLs()
	p.AllowElements("h1", "h2", "h3", "h4", "h5", "h6", "p", "br", "hr",
		"ul", "ol", "li", "blockquote",
		"strong", "em", "b", "i", "del", "s", "sup", "sub",
		"code", "pre",
		"table", "thead", "tbody", "tr", "th", "td")
	p.AllowAttrs("id").Globally()
	p.AllowAttrs("align").OnElements("th", "td")

	p.AllowAttrs("href").OnElements("a")
	p.RequireNoFollowOnLinks(true)
	p.AllowURLSchemes("http", "https")

	p.AllowAttrs("src", "alt", "title").OnElements("img")
	return p
}

// Render translates Markdown source into the sanitized HTML fragment
// §4.11 specifies: relative links and images are first rewritten against
// baseURL+pkgPath, then the whole document is run through the allow-list
// sanitizer.
func Render(source []byte, baseURL, pkgPath string) ([]byte, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert(source, &buf); err != nil {
		return nil, apperror.Wrap(apperror.Internal, op+".Render", "converting markdown", err)
	}

	resolved, err := resolveLinks(buf.Bytes(), baseURL, pkgPath)
	if err != nil {
		return nil, err
	}

	return policy().SanitizeBytes(resolved), nil
}

// resolveLinks rewrites every relative "href" and "src" attribute against
// base joined with pkgPath, the repository's subdirectory for this crate
// per §4.11.
func resolveLinks(htmlSrc []byte, base, pkgPath string) ([]byte, error) {
	baseURL, err := resolveBase(base, pkgPath)
	if err != nil || baseURL == nil {
		return htmlSrc, nil
	}

	doc, err := html.Parse(bytes.NewReader(htmlSrc))
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, op+".resolveLinks", "parsing rendered html", err)
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			attrName := ""
			switch n.DataAtom {
			case atom.A:
				attrName = "href"
			case atom.Img:
				attrName = "src"
			}
			if attrName != "" {
				for i, a := range n.Attr {
					if a.Key == attrName {
						n.Attr[i].Val = resolveOne(baseURL, a.Val)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var out bytes.Buffer
	if err := html.Render(&out, doc); err != nil {
		return nil, apperror.Wrap(apperror.Internal, op+".resolveLinks", "rendering resolved html", err)
	}
	return out.Bytes(), nil
}

func resolveBase(repoURL, pkgPath string) (*url.URL, error) {
	if repoURL == "" {
		return nil, nil
	}
	u, err := url.Parse(strings.TrimRight(repoURL, "/") + "/")
	if err != nil {
		return nil, apperror.Wrap(apperror.Validation, op+".resolveBase", "parsing repository url", err)
	}
	if pkgPath != "" {
		u, err = u.Parse(strings.Trim(pkgPath, "/") + "/")
		if err != nil {
			return nil, apperror.Wrap(apperror.Validation, op+".resolveBase", "joining pkg_path_in_vcs", err)
		}
	}
	return u, nil
}

func resolveOne(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	return base.ResolveReference(u).String()
}

// Upload renders source and puts it at readmes/<name>/<name>-<vers>.html.
func Upload(ctx context.Context, blobs blobstore.Store, name, version string, source []byte, baseURL, pkgPath string) error {
	rendered, err := Render(source, baseURL, pkgPath)
	if err != nil {
		return err
	}
	key := blobstore.ReadmeKey(name, version)
	if err := blobs.Put(ctx, key, bytes.NewReader(rendered), int64(len(rendered)), "text/html; charset=utf-8"); err != nil {
		return apperror.Wrap(apperror.Internal, op+".Upload", "uploading rendered readme", err)
	}
	return nil
}

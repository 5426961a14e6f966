package rewrite

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Injection carries the inline scripts placed into a rewritten document.
type Injection struct {
	// EarlyBoot runs before any other script on the page, immediately
	// after <head>.
	EarlyBoot string

	// HeadEnd is placed just before </head>: the runtime patch shim and,
	// on login pages, the auto-login script.
	HeadEnd string
}

// urlAttrs are the attributes rewritten through RewriteURL. srcset is
// handled separately because it is a comma-separated list.
var urlAttrs = map[string]bool{
	"href":       true,
	"src":        true,
	"action":     true,
	"formaction": true,
	"poster":     true,
	"data":       true,
	"background": true,
	"cite":       true,
	"manifest":   true,
}

// RewriteHTML streams an upstream HTML document to w, rewriting link
// attributes through the rule table, dropping restrictive CSP metas and
// telemetry tags, and injecting the runtime scripts. Tokens that need no
// change are copied through as raw bytes.
func (rw *Rewriter) RewriteHTML(r io.Reader, w io.Writer, inj Injection) error {
	z := html.NewTokenizer(r)
	injectedBoot := false
	injectedHead := false

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			err := z.Err()
			if err == io.EOF {
				// Documents without a </head> still get the scripts.
				if !injectedBoot && inj.EarlyBoot != "" {
					io.WriteString(w, inj.EarlyBoot)
				}
				if !injectedHead && inj.HeadEnd != "" {
					io.WriteString(w, inj.HeadEnd)
				}
				return nil
			}
			return err

		case html.StartTagToken, html.SelfClosingTagToken:
			raw := append([]byte(nil), z.Raw()...)
			tok := z.Token()
			name := tok.Data

			if name == "meta" && isCSPMeta(tok) {
				continue
			}
			if (name == "script" || name == "link") && rw.dropByHost(tok) {
				if name == "script" && tt == html.StartTagToken {
					skipScriptBody(z)
				}
				continue
			}
			if name == "body" && !injectedBoot {
				// No <head> seen: boot scripts must still precede page scripts.
				if inj.EarlyBoot != "" {
					io.WriteString(w, inj.EarlyBoot)
				}
				if !injectedHead && inj.HeadEnd != "" {
					io.WriteString(w, inj.HeadEnd)
					injectedHead = true
				}
				injectedBoot = true
			}

			if rw.rewriteTokenAttrs(&tok) {
				io.WriteString(w, tok.String())
			} else {
				w.Write(raw)
			}

			if name == "head" && tt == html.StartTagToken && !injectedBoot {
				if inj.EarlyBoot != "" {
					io.WriteString(w, inj.EarlyBoot)
				}
				injectedBoot = true
			}

		case html.EndTagToken:
			tok := z.Token()
			if tok.Data == "head" && !injectedHead {
				if !injectedBoot && inj.EarlyBoot != "" {
					io.WriteString(w, inj.EarlyBoot)
					injectedBoot = true
				}
				if inj.HeadEnd != "" {
					io.WriteString(w, inj.HeadEnd)
				}
				injectedHead = true
			}
			io.WriteString(w, tok.String())

		default:
			w.Write(z.Raw())
		}
	}
}

// rewriteTokenAttrs applies the attribute rule table in place. Returns true
// when the token must be re-serialized.
func (rw *Rewriter) rewriteTokenAttrs(tok *html.Token) bool {
	changed := false
	kept := tok.Attr[:0]
	for _, attr := range tok.Attr {
		key := strings.ToLower(attr.Key)
		switch {
		case key == "integrity" || key == "crossorigin":
			// Rewritten subresources no longer match their hashes or origin.
			changed = true
			continue
		case urlAttrs[key]:
			if v := rw.RewriteURL(attr.Val); v != attr.Val {
				attr.Val = v
				changed = true
			}
		case key == "srcset":
			if v := rw.rewriteSrcset(attr.Val); v != attr.Val {
				attr.Val = v
				changed = true
			}
		}
		kept = append(kept, attr)
	}
	tok.Attr = kept
	return changed
}

func (rw *Rewriter) rewriteSrcset(val string) string {
	parts := strings.Split(val, ",")
	changed := false
	for i, part := range parts {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		if v := rw.RewriteURL(fields[0]); v != fields[0] {
			fields[0] = v
			parts[i] = strings.Join(fields, " ")
			changed = true
		}
	}
	if !changed {
		return val
	}
	return strings.Join(parts, ", ")
}

func (rw *Rewriter) dropByHost(tok html.Token) bool {
	for _, attr := range tok.Attr {
		key := strings.ToLower(attr.Key)
		if key == "src" || key == "href" {
			return rw.DropHost(attr.Val)
		}
	}
	return false
}

func isCSPMeta(tok html.Token) bool {
	for _, attr := range tok.Attr {
		if strings.EqualFold(attr.Key, "http-equiv") &&
			strings.EqualFold(strings.TrimSpace(attr.Val), "Content-Security-Policy") {
			return true
		}
	}
	return false
}

// skipScriptBody discards everything up to and including the matching
// </script> after a dropped opening tag.
func skipScriptBody(z *html.Tokenizer) {
	for {
		switch z.Next() {
		case html.ErrorToken:
			return
		case html.EndTagToken:
			if tok := z.Token(); tok.Data == "script" {
				return
			}
		}
	}
}

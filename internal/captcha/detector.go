// Package captcha classifies response bodies that are bot-challenge interstitials
// rather than real directory content. False negatives are tolerated; false positives
// abandon a search unit, so every rule is deliberately narrow.
package captcha

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultShellBytes bounds the size of an HTML document considered an empty shell.
const DefaultShellBytes = 4096

var defaultPhrases = []string{
	"pardon our interruption",
	"verify you are human",
	"verify that you are human",
	"checking your browser",
	"checking if the site connection is secure",
	"incapsula incident",
	"_incapsula_resource",
	"cf-chl-",
	"/cdn-cgi/challenge-platform/",
	"px-captcha",
	"class=\"g-recaptcha\"",
	"class=\"h-captcha\"",
	"complete the security check",
	"are you a robot",
	"request unsuccessful. incapsula",
}

var challengeTitles = []string{
	"just a moment",
	"attention required",
	"access denied",
	"security check",
	"pardon our interruption",
}

// Detector is a text-pattern classifier. It never executes scripts.
type Detector struct {
	phrases    [][]byte
	shellBytes int
}

// NewDetector builds a Detector with the built-in phrase table plus extra phrases.
func NewDetector(extra ...string) *Detector {
	all := append(append([]string(nil), defaultPhrases...), extra...)
	phrases := make([][]byte, 0, len(all))
	for _, p := range all {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		phrases = append(phrases, bytes.ToLower([]byte(p)))
	}
	return &Detector{phrases: phrases, shellBytes: DefaultShellBytes}
}

// Detect reports whether body looks like a challenge page.
func (d *Detector) Detect(body []byte) bool {
	if d == nil || len(body) == 0 {
		return false
	}
	lower := bytes.ToLower(body)
	for _, p := range d.phrases {
		if bytes.Contains(lower, p) {
			return true
		}
	}
	trimmed := bytes.TrimSpace(lower)
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	for _, t := range challengeTitles {
		if strings.HasPrefix(title, t) {
			return true
		}
	}
	return d.emptyShell(trimmed, doc)
}

func (d *Detector) emptyShell(lower []byte, doc *goquery.Document) bool {
	if len(lower) >= d.shellBytes || !bytes.Contains(lower, []byte("<script")) {
		return false
	}
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	return strings.TrimSpace(body.Text()) == ""
}

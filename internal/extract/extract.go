// Package extract locates a price value inside an HTML document.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/JakeFAU/pricewatch/internal/tracker"
)

// Extraction is the raw data pulled from a document.
type Extraction struct {
	// Title is the document title; empty when the page has none.
	Title string
	// Raw is the unparsed price text or attribute value.
	Raw string
}

// Compile validates a selector expression.
func Compile(selector string) (cascadia.Selector, error) {
	if strings.TrimSpace(selector) == "" {
		return nil, tracker.NewError(tracker.ReasonSelectorInvalid, "", fmt.Errorf("empty selector"))
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, tracker.NewError(tracker.ReasonSelectorInvalid, "", fmt.Errorf("compile %q: %w", selector, err))
	}
	return sel, nil
}

// Evaluate applies rule to the HTML document in body. A missing title is not
// an error; a missing price element or attribute is.
func Evaluate(body []byte, rule tracker.Rule) (Extraction, error) {
	sel, err := Compile(rule.Selector)
	if err != nil {
		return Extraction{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Extraction{}, tracker.NewError(tracker.ReasonElementNotFound, "", fmt.Errorf("parse document: %w", err))
	}

	out := Extraction{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}

	match := doc.FindMatcher(sel).First()
	if match.Length() == 0 {
		return Extraction{}, tracker.NewError(tracker.ReasonElementNotFound, "",
			fmt.Errorf("no element matches %q", rule.Selector))
	}

	if rule.Attribute != "" {
		val, ok := match.Attr(rule.Attribute)
		if !ok {
			return Extraction{}, tracker.NewError(tracker.ReasonAttributeNotFound, "",
				fmt.Errorf("attribute %q missing on %q", rule.Attribute, rule.Selector))
		}
		out.Raw = val
		return out, nil
	}
	out.Raw = strings.TrimSpace(match.Text())
	return out, nil
}

package browser

import (
	"fmt"
	"strings"
)

// Strategy is the lookup mechanism of a Locator.
type Strategy int

const (
	ByCSS Strategy = iota
	ByID
	ByLinkText
	ByXPath
)

var strategyPrefixes = map[Strategy]string{
	ByCSS:      "css",
	ByID:       "id",
	ByLinkText: "link",
	ByXPath:    "xpath",
}

func (s Strategy) String() string {
	if p, ok := strategyPrefixes[s]; ok {
		return p
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// Locator identifies zero or more elements on the current page.
type Locator struct {
	By    Strategy
	Value string
}

func CSS(selector string) Locator  { return Locator{By: ByCSS, Value: selector} }
func ID(id string) Locator         { return Locator{By: ByID, Value: id} }
func LinkText(text string) Locator { return Locator{By: ByLinkText, Value: text} }
func XPath(expr string) Locator    { return Locator{By: ByXPath, Value: expr} }

// ParseLocator reads the "strategy=value" notation used in config files and on
// the command line: css=, id=, link= and xpath=. A value starting with "/" or
// "(" without a prefix is taken as XPath, anything else as CSS.
func ParseLocator(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Locator{}, fmt.Errorf("empty locator")
	}
	for by, prefix := range strategyPrefixes {
		if value, ok := strings.CutPrefix(s, prefix+"="); ok {
			if value == "" {
				return Locator{}, fmt.Errorf("locator %q has no value", s)
			}
			return Locator{By: by, Value: value}, nil
		}
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(") {
		return XPath(s), nil
	}
	return CSS(s), nil
}

// WithValue returns a copy of l using the same strategy with a different value.
func (l Locator) WithValue(v string) Locator {
	l.Value = v
	return l
}

func (l Locator) String() string {
	return l.By.String() + "=" + l.Value
}

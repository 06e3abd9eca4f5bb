// Package languages maps service language codes to display names.
package languages

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ErrUnknownLanguage is returned for codes the catalog does not carry.
var ErrUnknownLanguage = errors.New("unknown language")

// Language is one catalog entry.
type Language struct {
	Code string
	Name string
}

// Catalog is a read-only code to name table. It is safe for concurrent use.
type Catalog struct {
	names  map[string]string
	sorted []Language
}

// New builds a catalog from a code to name map.
func New(names map[string]string) *Catalog {
	c := &Catalog{names: make(map[string]string, len(names))}
	for code, name := range names {
		c.names[code] = name
		c.sorted = append(c.sorted, Language{Code: code, Name: name})
	}
	sort.Slice(c.sorted, func(i, j int) bool {
		if c.sorted[i].Name == c.sorted[j].Name {
			return c.sorted[i].Code < c.sorted[j].Code
		}
		return c.sorted[i].Name < c.sorted[j].Name
	})
	return c
}

// Default returns the catalog of languages the service translates into.
func Default() *Catalog {
	return New(builtin)
}

// NameOf returns the display name for code. Codes outside the catalog fall
// back to the English CLDR name, then to the code itself.
func (c *Catalog) NameOf(code string) string {
	if name, ok := c.names[code]; ok {
		return name
	}
	if tag, err := language.Parse(code); err == nil {
		if name := display.English.Tags().Name(tag); name != "" {
			return name
		}
	}
	return code
}

// Has reports whether code is in the catalog.
func (c *Catalog) Has(code string) bool {
	_, ok := c.names[code]
	return ok
}

// Validate returns ErrUnknownLanguage if code is not in the catalog.
func (c *Catalog) Validate(code string) error {
	if !c.Has(code) {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, code)
	}
	return nil
}

// List returns all languages sorted by name.
func (c *Catalog) List() []Language {
	out := make([]Language, len(c.sorted))
	copy(out, c.sorted)
	return out
}

// Len implements fuzzy.Source.
func (c *Catalog) Len() int { return len(c.sorted) }

// String implements fuzzy.Source.
func (c *Catalog) String(i int) string {
	return c.sorted[i].Code + " " + c.sorted[i].Name
}

// Search returns languages whose code or name fuzzily matches query, best
// match first. An exact code match is always ranked first.
func (c *Catalog) Search(query string) []Language {
	query = strings.TrimSpace(query)
	if query == "" {
		return c.List()
	}

	var out []Language
	if name, ok := c.names[query]; ok {
		out = append(out, Language{Code: query, Name: name})
	}
	for _, m := range fuzzy.FindFrom(query, c) {
		lang := c.sorted[m.Index]
		if len(out) > 0 && lang.Code == out[0].Code {
			continue
		}
		out = append(out, lang)
	}
	return out
}

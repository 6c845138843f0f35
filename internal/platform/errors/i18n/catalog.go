// Package i18n provides internationalization support for error messages.
package i18n

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// BaseLocale is the canonical source locale and the fallback for every lookup.
const BaseLocale = "en-US"

// Code is a machine-readable error code (duplicated from errors package to avoid cycle).
type Code = string

// Catalog maps error codes to message templates for a specific locale.
type Catalog struct {
	locale   string
	messages map[Code]string
}

type catalogFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

//go:embed locales/*.yaml
var embeddedFS embed.FS

var (
	catalogsMu sync.RWMutex
	// catalogs holds override and embedded catalogs by locale.
	catalogs = map[string]*Catalog{}

	embeddedOnce    sync.Once
	embeddedErr     error
	embeddedTags    []language.Tag
	embeddedMatcher language.Matcher
)

// GetCatalog returns the catalog that best matches the given locale.
// Falls back to en-US if nothing matches.
func GetCatalog(locale string) *Catalog {
	loadEmbedded()

	requested := strings.TrimSpace(locale)
	if requested == "" {
		requested = BaseLocale
	}
	if c, ok := lookupCatalog(requested); ok {
		return c
	}

	resolved := matchLocale(requested)
	if c, ok := lookupCatalog(resolved); ok {
		return c
	}
	if c, ok := lookupCatalog(BaseLocale); ok {
		return c
	}
	return NewCatalog(BaseLocale, nil)
}

// Locale returns the locale of this catalog.
func (c *Catalog) Locale() string {
	return c.locale
}

// Format renders the message template with the given metadata.
// Falls back to the error code itself if no template is found.
// Templates are always executed even with nil/empty metadata to ensure
// consistent output (template variables without metadata render as empty).
func (c *Catalog) Format(code Code, metadata map[string]string) string {
	tmpl, ok := c.messages[code]
	if !ok {
		return code
	}

	if metadata == nil {
		metadata = map[string]string{}
	}

	t, err := template.New("msg").Parse(tmpl)
	if err != nil {
		return tmpl
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, metadata); err != nil {
		return tmpl
	}
	return buf.String()
}

// Codes returns the sorted codes that have a template in this catalog.
func (c *Catalog) Codes() []Code {
	out := make([]Code, 0, len(c.messages))
	for code := range c.messages {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// RegisterCatalog registers a catalog for the given locale, replacing any
// embedded catalog with the same locale.
func RegisterCatalog(locale string, cat *Catalog) {
	catalogsMu.Lock()
	defer catalogsMu.Unlock()
	catalogs[locale] = cat
}

// NewCatalog creates a new catalog with the given locale and messages.
func NewCatalog(locale string, messages map[Code]string) *Catalog {
	cloned := make(map[Code]string, len(messages))
	for key, value := range messages {
		cloned[key] = value
	}
	return &Catalog{
		locale:   locale,
		messages: cloned,
	}
}

// LoadFromFS parses every locales/*.yaml file in catalogFS. Each file must
// declare a locale matching its file name and at least one message.
func LoadFromFS(catalogFS fs.FS) (map[string]*Catalog, error) {
	paths, err := fs.Glob(catalogFS, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	sort.Strings(paths)

	out := make(map[string]*Catalog, len(paths))
	for _, p := range paths {
		data, err := fs.ReadFile(catalogFS, p)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", p, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", p, err)
		}

		locale := strings.TrimSpace(file.Locale)
		fromPath := strings.TrimSuffix(path.Base(p), path.Ext(p))
		if locale == "" {
			return nil, fmt.Errorf("catalog %s: locale is required", p)
		}
		if locale != fromPath {
			return nil, fmt.Errorf("catalog %s: locale %q must match file name %q", p, locale, fromPath)
		}
		if _, err := language.Parse(locale); err != nil {
			return nil, fmt.Errorf("catalog %s: parse locale: %w", p, err)
		}
		if len(file.Messages) == 0 {
			return nil, fmt.Errorf("catalog %s: messages are required", p)
		}
		out[locale] = NewCatalog(locale, file.Messages)
	}

	if _, ok := out[BaseLocale]; !ok {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", BaseLocale)
	}
	return out, nil
}

func loadEmbedded() {
	embeddedOnce.Do(func() {
		loaded, err := LoadFromFS(embeddedFS)
		if err != nil {
			embeddedErr = err
			return
		}

		// The base locale goes first so it is the matcher's default.
		tags := []language.Tag{language.MustParse(BaseLocale)}
		locales := make([]string, 0, len(loaded))
		for locale := range loaded {
			if locale != BaseLocale {
				locales = append(locales, locale)
			}
		}
		sort.Strings(locales)
		for _, locale := range locales {
			tags = append(tags, language.MustParse(locale))
		}

		catalogsMu.Lock()
		for locale, cat := range loaded {
			if _, exists := catalogs[locale]; !exists {
				catalogs[locale] = cat
			}
		}
		catalogsMu.Unlock()

		embeddedTags = tags
		embeddedMatcher = language.NewMatcher(tags)
	})
}

// EmbeddedError reports a failure to load the embedded catalogs, if any.
func EmbeddedError() error {
	loadEmbedded()
	return embeddedErr
}

func matchLocale(requested string) string {
	if embeddedMatcher == nil {
		return BaseLocale
	}
	tag, err := language.Parse(requested)
	if err != nil {
		return BaseLocale
	}
	_, index, confidence := embeddedMatcher.Match(tag)
	if confidence == language.No || index < 0 || index >= len(embeddedTags) {
		return BaseLocale
	}
	return embeddedTags[index].String()
}

func lookupCatalog(locale string) (*Catalog, bool) {
	catalogsMu.RLock()
	defer catalogsMu.RUnlock()
	cat, ok := catalogs[locale]
	return cat, ok
}

package ivr

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed languages.yaml
var defaultCatalog []byte

// Language is one menu option.
type Language struct {
	Name         string `yaml:"name"`
	Code         string `yaml:"code"` // locale passed to speech synthesis and recognition
	Voice        string `yaml:"voice"`
	SystemPrompt string `yaml:"system_prompt"`
	Greeting     string `yaml:"greeting"`
	Fallback     string `yaml:"fallback"`
	ListenPrompt string `yaml:"listen_prompt"`
	Goodbye      string `yaml:"goodbye"`
}

// Catalog holds the menu and every configured language keyed by digit.
type Catalog struct {
	MenuPrompt       string              `yaml:"menu_prompt"`
	MenuLanguage     string              `yaml:"menu_language"`
	InvalidSelection string              `yaml:"invalid_selection"`
	DefaultLanguage  string              `yaml:"default_language"`
	Reminder         string              `yaml:"reminder"`
	HelplineSuffix   string              `yaml:"helpline_suffix"`
	SuspiciousMarker string              `yaml:"suspicious_marker"`
	OpinionMarkers   []string            `yaml:"opinion_markers"`
	Languages        map[string]Language `yaml:"languages"`
}

// LoadCatalog reads the catalog at path, or the built-in one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return LoadCatalogFromReader(bytes.NewReader(defaultCatalog))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %q: %w", path, err)
	}
	defer f.Close()

	c, err := LoadCatalogFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse %q: %w", path, err)
	}
	return c, nil
}

func LoadCatalogFromReader(r io.Reader) (*Catalog, error) {
	c := &Catalog{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("catalog: decode yaml: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate returns every problem found, joined.
func (c *Catalog) Validate() error {
	var errs []error
	if c.MenuPrompt == "" {
		errs = append(errs, errors.New("menu_prompt is required"))
	}
	if c.SuspiciousMarker == "" {
		errs = append(errs, errors.New("suspicious_marker is required"))
	}
	if len(c.Languages) == 0 {
		errs = append(errs, errors.New("at least one language is required"))
	}
	if _, ok := c.Languages[c.DefaultLanguage]; !ok {
		errs = append(errs, fmt.Errorf("default_language %q is not a configured language", c.DefaultLanguage))
	}

	for _, digit := range c.Digits() {
		lang := c.Languages[digit]
		prefix := fmt.Sprintf("languages[%s]", digit)
		if len(digit) != 1 || digit[0] < '0' || digit[0] > '9' {
			errs = append(errs, fmt.Errorf("%s: key must be a single keypad digit", prefix))
		}
		required := map[string]string{
			"code":          lang.Code,
			"system_prompt": lang.SystemPrompt,
			"greeting":      lang.Greeting,
			"fallback":      lang.Fallback,
			"listen_prompt": lang.ListenPrompt,
			"goodbye":       lang.Goodbye,
		}
		for _, field := range []string{"code", "system_prompt", "greeting", "fallback", "listen_prompt", "goodbye"} {
			if required[field] == "" {
				errs = append(errs, fmt.Errorf("%s.%s is required", prefix, field))
			}
		}
	}
	return errors.Join(errs...)
}

// Lookup returns the language selected by digit.
func (c *Catalog) Lookup(digit string) (Language, bool) {
	lang, ok := c.Languages[digit]
	return lang, ok
}

// Resolve returns the language for key, or the default language.
func (c *Catalog) Resolve(key string) (string, Language) {
	if lang, ok := c.Languages[key]; ok {
		return key, lang
	}
	return c.DefaultLanguage, c.Languages[c.DefaultLanguage]
}

// Digits lists the configured menu digits in order.
func (c *Catalog) Digits() []string {
	digits := make([]string, 0, len(c.Languages))
	for d := range c.Languages {
		digits = append(digits, d)
	}
	sort.Strings(digits)
	return digits
}

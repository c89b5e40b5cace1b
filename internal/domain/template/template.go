// Package template holds reusable note snippets owned by agents.
package template

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
)

const Table = "templates"

type Category string

const (
	CategorySupport Category = "support"
	CategorySales   Category = "sales"
	CategoryGeneral Category = "general"
)

func (c Category) IsValid() bool {
	return c == CategorySupport || c == CategorySales || c == CategoryGeneral
}

type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Category  Category  `json:"category"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func NewTemplate(name, content string, category Category, userID string) (Template, error) {
	if category == "" {
		category = CategoryGeneral
	}
	t := Template{
		Name:     strings.TrimSpace(name),
		Content:  content,
		Category: category,
		UserID:   userID,
	}
	if err := t.Validate(); err != nil {
		return Template{}, err
	}
	return t, nil
}

func (t Template) GetID() string {
	return t.ID
}

func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template name is required")
	}
	if t.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if !t.Category.IsValid() {
		return fmt.Errorf("invalid template category: %s", t.Category)
	}
	return nil
}

var folder = cases.Fold()

// Shortcut is the key typed after a '.' to expand the template: the name
// case-folded with all whitespace removed.
func (t Template) Shortcut() string {
	return normalizeShortcut(t.Name)
}

func normalizeShortcut(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return folder.String(s)
}

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// Placeholders returns the distinct variable names in {name} form, in order
// of first appearance.
func (t Template) Placeholders() []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(t.Content, -1) {
		name := strings.TrimSpace(m[1])
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Fill substitutes vars into the content. Placeholders without a value are
// left in place and reported as missing.
func (t Template) Fill(vars map[string]string) (string, []string) {
	var missing []string
	seen := make(map[string]bool)
	out := placeholderPattern.ReplaceAllStringFunc(t.Content, func(m string) string {
		name := strings.TrimSpace(m[1 : len(m)-1])
		if v, ok := vars[name]; ok {
			return v
		}
		if !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
		return m
	})
	return out, missing
}

// Package classify assigns a project category from its name using an
// ordered keyword table. Rules are checked top-down and the first rule with
// a keyword contained in the lowercased name wins.
package classify

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"clockify-sync/internal/domain"
)

// Rule maps any of its keywords to a category.
type Rule struct {
	Category domain.Category `yaml:"category"`
	Keywords []string        `yaml:"keywords"`
}

// Classifier holds the ordered rules and the mandatory default.
type Classifier struct {
	Rules   []Rule          `yaml:"rules"`
	Default domain.Category `yaml:"default"`
}

// Default returns the studio's standard table.
func Default() *Classifier {
	return &Classifier{
		Rules: []Rule{
			{Category: domain.CategoryPhotoEditing, Keywords: []string{"photo", "editing"}},
			{Category: domain.CategoryClipping, Keywords: []string{"clip"}},
			{Category: domain.CategoryBuilding, Keywords: []string{"build"}},
		},
		Default: domain.CategoryProduction,
	}
}

// Classify returns the category of a project name.
func (c *Classifier) Classify(name string) domain.Category {
	lower := strings.ToLower(name)
	for _, r := range c.Rules {
		for _, kw := range r.Keywords {
			if kw != "" && strings.Contains(lower, kw) {
				return r.Category
			}
		}
	}
	return c.Default
}

// Parse reads rules from a compact string such as
// "photo-editing=photo,editing;clipping=clip;building=build".
// The default category is passed separately.
func Parse(rules string, def domain.Category) (*Classifier, error) {
	c := &Classifier{Default: def}
	for _, part := range strings.Split(rules, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cat, kws, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(cat) == "" {
			return nil, fmt.Errorf("classify: rule %q must look like category=keyword[,keyword]", part)
		}
		r := Rule{Category: domain.Category(strings.TrimSpace(cat))}
		for _, kw := range strings.Split(kws, ",") {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				r.Keywords = append(r.Keywords, kw)
			}
		}
		if len(r.Keywords) == 0 {
			return nil, fmt.Errorf("classify: rule %q has no keywords", part)
		}
		c.Rules = append(c.Rules, r)
	}
	return c, c.validate()
}

// LoadFile reads a YAML rule table:
//
//	default: production
//	rules:
//	  - category: photo-editing
//	    keywords: [photo, editing]
func LoadFile(path string) (*Classifier, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Classifier
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("classify: %s: %w", path, err)
	}
	for i := range c.Rules {
		for j, kw := range c.Rules[i].Keywords {
			c.Rules[i].Keywords[j] = strings.ToLower(strings.TrimSpace(kw))
		}
	}
	return &c, c.validate()
}

func (c *Classifier) validate() error {
	if c.Default == "" {
		return fmt.Errorf("classify: a default category is required")
	}
	return nil
}

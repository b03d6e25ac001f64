// Package domain holds the convention rule and the processing records shared
// by the store, the pipeline and the status API.
package domain

import (
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/foldkeeper/foldkeeper/internal/naming"
)

var (
	specialChars       = regexp.MustCompile(`[^A-Za-z0-9_\s-]`)
	specialCharsDigits = regexp.MustCompile(`[^A-Za-z_\s-]`)
)

// Convention is the naming policy of a single directory.
// Path is the store key: slash-separated and relative to the managed root.
type Convention struct {
	CreatedAt time.Time `json:"created_at" yaml:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at,omitempty"`

	Path        string       `json:"path" yaml:"path" validate:"required,max=1024,relpath"`
	NamingStyle naming.Style `json:"naming_style" yaml:"naming_style"`
	Prefix      string       `json:"prefix,omitempty" yaml:"prefix,omitempty" validate:"max=64"`
	Suffix      string       `json:"suffix,omitempty" yaml:"suffix,omitempty" validate:"max=64"`

	// Cosmetic, used by reporting UIs only.
	Icon  string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Color string `json:"color,omitempty" yaml:"color,omitempty" validate:"omitempty,hexcolor"`

	ProjectPrefix     string   `json:"project_prefix,omitempty" yaml:"project_prefix,omitempty" validate:"max=64"`
	AllowedExtensions []string `json:"allowed_extensions,omitempty" yaml:"allowed_extensions,omitempty" validate:"dive,extension"`

	EnforceNaming      bool `json:"enforce_naming" yaml:"enforce_naming"`
	AutoApply          bool `json:"auto_apply" yaml:"auto_apply"`
	RemoveSpecialChars bool `json:"remove_special_chars" yaml:"remove_special_chars"`
	PreserveNumbers    bool `json:"preserve_numbers" yaml:"preserve_numbers"`
	AutoCapitalize     bool `json:"auto_capitalize" yaml:"auto_capitalize"`
	ProjectSpecific    bool `json:"project_specific,omitempty" yaml:"project_specific,omitempty"`
}

// NewConvention returns a convention for dir with the defaults used by registration.
// New conventions never auto-apply.
func NewConvention(dir string) *Convention {
	now := time.Now()
	return &Convention{
		Path:               NormalizePath(dir),
		NamingStyle:        naming.PascalCase,
		EnforceNaming:      true,
		RemoveSpecialChars: true,
		PreserveNumbers:    true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Name returns the base name of the convention's directory.
func (c *Convention) Name() string {
	return path.Base(c.Path)
}

// Depth returns the number of path segments below the managed root.
func (c *Convention) Depth() int {
	return PathDepth(c.Path)
}

// Matches reports whether filePath lies under this convention's directory.
// The comparison is a case-insensitive prefix match on normalized paths.
func (c *Convention) Matches(filePath string) bool {
	return strings.HasPrefix(strings.ToLower(NormalizePath(filePath)), strings.ToLower(NormalizePath(c.Path)))
}

// IsExtensionAllowed reports whether ext is permitted. An empty allow list permits everything.
func (c *Convention) IsExtensionAllowed(ext string) bool {
	if len(c.AllowedExtensions) == 0 {
		return true
	}
	ext = NormalizeExtension(ext)
	return slices.ContainsFunc(c.AllowedExtensions, func(allowed string) bool {
		return strings.EqualFold(NormalizeExtension(allowed), ext)
	})
}

// maxApplyPasses bounds the fixed-point search in Apply.
const maxApplyPasses = 4

// Apply returns the canonical file name (base plus extension) for originalName.
//
// Affixes already present on the input are detached before the naming style
// runs and attached again afterwards. Some inputs need a second pass before
// the style settles ("a b" -> "AB" -> "Ab"), so the transform is repeated
// until it reaches a fixed point, which makes Apply(Apply(n)) == Apply(n).
func (c *Convention) Apply(originalName, extension string) string {
	name := strings.TrimSpace(originalName)
	for range maxApplyPasses {
		next := c.applyOnce(name)
		if next == name {
			break
		}
		name = next
	}
	return name + NormalizeExtension(extension)
}

func (c *Convention) applyOnce(name string) string {
	core := strings.TrimSpace(name)

	projectPrefix := c.activeProjectPrefix()
	core = trimAffixPrefix(core, c.Prefix)
	core = trimAffixPrefix(core, projectPrefix)
	core = trimAffixSuffix(core, c.Suffix)

	cleaned := core
	if c.RemoveSpecialChars {
		if c.PreserveNumbers {
			cleaned = specialChars.ReplaceAllString(cleaned, "")
		} else {
			cleaned = specialCharsDigits.ReplaceAllString(cleaned, "")
		}
	}
	styled := naming.Apply(cleaned, c.NamingStyle)
	if styled == "" {
		styled = core
	}

	if projectPrefix != "" && !hasPrefixFold(styled, projectPrefix) {
		styled = projectPrefix + styled
	}
	if c.Prefix != "" && !hasPrefixFold(styled, c.Prefix) {
		styled = c.Prefix + styled
	}
	if c.Suffix != "" && !hasSuffixFold(styled, c.Suffix) {
		styled += c.Suffix
	}
	if c.AutoCapitalize {
		styled = naming.UpperFirst(styled)
	}
	return styled
}

// Validate returns the reasons fileName violates this convention.
// The result is empty when naming is not enforced.
func (c *Convention) Validate(fileName, extension string) []string {
	if !c.EnforceNaming {
		return nil
	}

	var violations []string
	if !c.IsExtensionAllowed(extension) {
		violations = append(violations, fmt.Sprintf("extension %q is not allowed in %s", NormalizeExtension(extension), c.Path))
	}
	current := fileName + NormalizeExtension(extension)
	if want := c.Apply(fileName, extension); want != current {
		violations = append(violations, fmt.Sprintf("name %q should be %q", current, want))
	}
	return violations
}

// InheritFrom copies the naming behaviour of a parent convention.
func (c *Convention) InheritFrom(parent *Convention) {
	if parent == nil {
		return
	}
	c.NamingStyle = parent.NamingStyle
	c.RemoveSpecialChars = parent.RemoveSpecialChars
	c.PreserveNumbers = parent.PreserveNumbers
}

// Touch updates the modification timestamp.
func (c *Convention) Touch() {
	c.UpdatedAt = time.Now()
}

// Clone returns a deep copy.
func (c *Convention) Clone() *Convention {
	if c == nil {
		return nil
	}
	cp := *c
	cp.AllowedExtensions = slices.Clone(c.AllowedExtensions)
	return &cp
}

func (c *Convention) activeProjectPrefix() string {
	if !c.ProjectSpecific {
		return ""
	}
	return c.ProjectPrefix
}

// NormalizePath converts p to the canonical slash-separated form used as a store key.
// "." and "" both normalize to "".
func NormalizePath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "./")
	if p == "." {
		return ""
	}
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// PathDepth returns the number of segments in a normalized relative path.
func PathDepth(p string) int {
	p = strings.Trim(NormalizePath(p), "/")
	if p == "" {
		return 0
	}
	return strings.Count(p, "/") + 1
}

// NormalizeExtension returns ext with exactly one leading dot, or "" for an empty extension.
func NormalizeExtension(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" || ext == "." {
		return ""
	}
	return "." + strings.TrimLeft(ext, ".")
}

// SplitName splits a file name into its base and extension (with dot).
func SplitName(fileName string) (base, ext string) {
	ext = path.Ext(fileName)
	return strings.TrimSuffix(fileName, ext), ext
}

// trimAffixPrefix removes a case-insensitive prefix unless nothing would remain.
func trimAffixPrefix(s, prefix string) string {
	if prefix == "" || len(s) <= len(prefix) || !hasPrefixFold(s, prefix) {
		return s
	}
	return s[len(prefix):]
}

func trimAffixSuffix(s, suffix string) string {
	if suffix == "" || len(s) <= len(suffix) || !hasSuffixFold(s, suffix) {
		return s
	}
	return s[:len(s)-len(suffix)]
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && utf8.ValidString(s[:len(prefix)]) && strings.EqualFold(s[:len(prefix)], prefix)
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && utf8.ValidString(s[len(s)-len(suffix):]) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}

// IsHiddenName reports whether a path segment is hidden or a metadata shadow
// file (dotfiles, AppleDouble "._x", sidecar "x.meta").
func IsHiddenName(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(strings.ToLower(name), ".meta")
}

package conventions

import (
	"path"
	"slices"
	"strings"

	"github.com/foldkeeper/foldkeeper/internal/domain"
)

// Preset seeds the cosmetic and affix fields of a convention created for a
// directory whose name contains one of its keywords.
type Preset struct {
	Name              string
	Icon              string
	Color             string
	Prefix            string
	Keywords          []string
	AllowedExtensions []string
}

// DefaultPresets is ordered; the first preset with a matching keyword wins.
// "anim" sits before "material" so "Animations" is not claimed by a broader rule.
var DefaultPresets = []Preset{
	{
		Name:              "animation",
		Keywords:          []string{"anim"},
		Icon:              "film",
		Color:             "#9c27b0",
		Prefix:            "AN_",
		AllowedExtensions: []string{".anim", ".fbx", ".controller"},
	},
	{
		Name:              "texture",
		Keywords:          []string{"texture", "sprite", "image", "icon"},
		Icon:              "image",
		Color:             "#4caf50",
		Prefix:            "T_",
		AllowedExtensions: []string{".png", ".jpg", ".jpeg", ".tga", ".psd", ".exr", ".tif", ".tiff"},
	},
	{
		Name:              "model",
		Keywords:          []string{"model", "mesh"},
		Icon:              "cube",
		Color:             "#2196f3",
		Prefix:            "SM_",
		AllowedExtensions: []string{".fbx", ".obj", ".blend", ".gltf", ".glb"},
	},
	{
		Name:              "material",
		Keywords:          []string{"material"},
		Icon:              "palette",
		Color:             "#ff9800",
		Prefix:            "M_",
		AllowedExtensions: []string{".mat"},
	},
	{
		Name:              "audio",
		Keywords:          []string{"audio", "sound", "sfx", "music"},
		Icon:              "music",
		Color:             "#e91e63",
		Prefix:            "A_",
		AllowedExtensions: []string{".wav", ".mp3", ".ogg", ".flac", ".aiff"},
	},
	{
		Name:              "prefab",
		Keywords:          []string{"prefab"},
		Icon:              "box",
		Color:             "#00bcd4",
		Prefix:            "P_",
		AllowedExtensions: []string{".prefab"},
	},
	{
		Name:              "script",
		Keywords:          []string{"script", "code", "src"},
		Icon:              "code",
		Color:             "#607d8b",
		AllowedExtensions: []string{".cs", ".go", ".py", ".js", ".ts"},
	},
	{
		Name:              "docs",
		Keywords:          []string{"doc"},
		Icon:              "book",
		Color:             "#795548",
		AllowedExtensions: []string{".md", ".txt", ".pdf"},
	},
}

// MatchPreset returns the first preset whose keywords occur in the base name of dir.
func MatchPreset(presets []Preset, dir string) (Preset, bool) {
	name := strings.ToLower(path.Base(domain.NormalizePath(dir)))
	for _, p := range presets {
		if slices.ContainsFunc(p.Keywords, func(kw string) bool {
			return strings.Contains(name, strings.ToLower(kw))
		}) {
			return p, true
		}
	}
	return Preset{}, false
}

// ApplyTo copies the preset's fields onto c. AutoApply is never touched.
func (p Preset) ApplyTo(c *domain.Convention) {
	c.Icon = p.Icon
	c.Color = p.Color
	c.Prefix = p.Prefix
	c.AllowedExtensions = slices.Clone(p.AllowedExtensions)
}

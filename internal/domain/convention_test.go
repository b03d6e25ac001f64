package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldkeeper/foldkeeper/internal/naming"
)

func TestConvention_Apply(t *testing.T) {
	tests := []struct {
		name string
		conv Convention
		in   string
		ext  string
		want string
	}{
		{
			name: "pascal with prefix",
			conv: Convention{NamingStyle: naming.PascalCase, Prefix: "T_", RemoveSpecialChars: true, PreserveNumbers: true},
			in:   "rock_diffuse 01",
			ext:  ".png",
			want: "T_RockDiffuse01.png",
		},
		{
			name: "prefix already present is kept once",
			conv: Convention{NamingStyle: naming.PascalCase, Prefix: "T_"},
			in:   "T_Rock",
			ext:  "png",
			want: "T_Rock.png",
		},
		{
			name: "suffix appended",
			conv: Convention{NamingStyle: naming.SnakeCase, Suffix: "_lod0"},
			in:   "PlayerModel",
			ext:  ".fbx",
			want: "player_model_lod0.fbx",
		},
		{
			name: "special chars removed",
			conv: Convention{NamingStyle: naming.KebabCase, RemoveSpecialChars: true, PreserveNumbers: true},
			in:   "Main (Final) v2!",
			ext:  ".wav",
			want: "main-final-v2.wav",
		},
		{
			name: "digits stripped when numbers are not preserved",
			conv: Convention{NamingStyle: naming.PascalCase, RemoveSpecialChars: true},
			in:   "rock 01",
			ext:  ".png",
			want: "Rock.png",
		},
		{
			name: "name made only of stripped characters is left alone",
			conv: Convention{NamingStyle: naming.PascalCase, RemoveSpecialChars: true},
			in:   "123",
			ext:  ".png",
			want: "123.png",
		},
		{
			name: "project prefix before the core, after the prefix",
			conv: Convention{NamingStyle: naming.PascalCase, Prefix: "T_", ProjectSpecific: true, ProjectPrefix: "Gx"},
			in:   "rock",
			ext:  ".png",
			want: "T_GxRock.png",
		},
		{
			name: "project prefix ignored when not project specific",
			conv: Convention{NamingStyle: naming.PascalCase, ProjectPrefix: "Gx"},
			in:   "rock",
			ext:  ".png",
			want: "Rock.png",
		},
		{
			name: "auto capitalize",
			conv: Convention{NamingStyle: naming.CamelCase, AutoCapitalize: true},
			in:   "main menu",
			ext:  ".cs",
			want: "MainMenu.cs",
		},
		{
			name: "as is trims",
			conv: Convention{NamingStyle: naming.AsIs},
			in:   "  Keep Me  ",
			ext:  "",
			want: "Keep Me",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.conv.Apply(tt.in, tt.ext))
		})
	}
}

func TestConvention_ApplyIsIdempotent(t *testing.T) {
	conventions := []Convention{
		{NamingStyle: naming.PascalCase, Prefix: "T_", RemoveSpecialChars: true, PreserveNumbers: true},
		{NamingStyle: naming.CamelCase, Suffix: "Anim", AutoCapitalize: true},
		{NamingStyle: naming.SnakeCase, Prefix: "sm_", Suffix: "_lod0", RemoveSpecialChars: true},
		{NamingStyle: naming.KebabCase, ProjectSpecific: true, ProjectPrefix: "gx-"},
		{NamingStyle: naming.UpperCase, Prefix: "a_"},
		{NamingStyle: naming.LowerCase, AutoCapitalize: true},
		{NamingStyle: naming.AsIs, Prefix: "P_", AutoCapitalize: true},
	}
	names := []string{
		"texture_01", "UI-Button", "PlayerModel", "a b", "T_T_rock", "  spaced  out ",
		"Main (Final) v2!", "t_lower prefix", "x", "_-_", "123", "",
	}

	for _, conv := range conventions {
		for _, n := range names {
			once := conv.Apply(n, ".png")
			base, ext := SplitName(once)
			assert.Equal(t, once, conv.Apply(base, ext), "style=%s input=%q", conv.NamingStyle, n)
		}
	}
}

func TestConvention_Matches(t *testing.T) {
	c := &Convention{Path: "Assets/Textures"}

	assert.True(t, c.Matches("Assets/Textures/rock.png"))
	assert.True(t, c.Matches(`assets\textures\ROCK.png`))
	assert.False(t, c.Matches("Assets/Models/rock.fbx"))
}

func TestConvention_Validate(t *testing.T) {
	c := &Convention{
		Path:              "Textures",
		NamingStyle:       naming.PascalCase,
		Prefix:            "T_",
		EnforceNaming:     true,
		AllowedExtensions: []string{".png", "TGA"},
	}

	assert.Empty(t, c.Validate("T_Rock", ".png"))
	assert.Empty(t, c.Validate("T_Rock", ".tga"), "extension match is case-insensitive")

	violations := c.Validate("rock", ".png")
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "T_Rock.png")

	violations = c.Validate("T_Rock", ".psd")
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], ".psd")

	c.EnforceNaming = false
	assert.Empty(t, c.Validate("whatever name", ".psd"))
}

func TestConvention_IsExtensionAllowed(t *testing.T) {
	unrestricted := &Convention{}
	assert.True(t, unrestricted.IsExtensionAllowed(".anything"))

	c := &Convention{AllowedExtensions: []string{"png", ".JPG"}}
	assert.True(t, c.IsExtensionAllowed(".PNG"))
	assert.True(t, c.IsExtensionAllowed("jpg"))
	assert.False(t, c.IsExtensionAllowed(".gif"))
	assert.False(t, c.IsExtensionAllowed(""))
}

func TestNewConvention_NeverAutoApplies(t *testing.T) {
	c := NewConvention(`Assets\Audio\`)

	assert.Equal(t, "Assets/Audio", c.Path)
	assert.False(t, c.AutoApply)
	assert.Equal(t, 2, c.Depth())
	assert.Equal(t, "Audio", c.Name())
	assert.False(t, c.CreatedAt.IsZero())
}

func TestConvention_InheritFrom(t *testing.T) {
	parent := &Convention{NamingStyle: naming.KebabCase, RemoveSpecialChars: false, PreserveNumbers: false, AutoApply: true, Prefix: "X_"}
	child := NewConvention("A/B")
	child.InheritFrom(parent)

	assert.Equal(t, naming.KebabCase, child.NamingStyle)
	assert.False(t, child.RemoveSpecialChars)
	assert.False(t, child.PreserveNumbers)
	assert.False(t, child.AutoApply)
	assert.Empty(t, child.Prefix)

	child.InheritFrom(nil)
	assert.Equal(t, naming.KebabCase, child.NamingStyle)
}

func TestConvention_Clone(t *testing.T) {
	c := &Convention{Path: "A", AllowedExtensions: []string{".png"}}
	cp := c.Clone()
	cp.AllowedExtensions[0] = ".jpg"
	cp.Path = "B"

	assert.Equal(t, ".png", c.AllowedExtensions[0])
	assert.Equal(t, "A", c.Path)

	var nilConv *Convention
	assert.Nil(t, nilConv.Clone())
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{".", ""},
		{"./A/B/", "A/B"},
		{`A\B\C`, "A/B/C"},
		{"A//B/../C", "A/C"},
		{"  A/B  ", "A/B"},
		{"/abs/path/", "/abs/path"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePath(tt.in))
		})
	}
}

func TestPathDepth(t *testing.T) {
	assert.Equal(t, 0, PathDepth(""))
	assert.Equal(t, 1, PathDepth("A"))
	assert.Equal(t, 3, PathDepth("A/B/C/"))
}

func TestNormalizeExtension(t *testing.T) {
	assert.Equal(t, ".png", NormalizeExtension("png"))
	assert.Equal(t, ".png", NormalizeExtension(".png"))
	assert.Equal(t, ".png", NormalizeExtension("..png"))
	assert.Equal(t, "", NormalizeExtension("."))
	assert.Equal(t, "", NormalizeExtension(""))
}

func TestIsHiddenName(t *testing.T) {
	assert.True(t, IsHiddenName(".git"))
	assert.True(t, IsHiddenName("._rock.png"))
	assert.True(t, IsHiddenName("rock.png.meta"))
	assert.False(t, IsHiddenName("rock.png"))
	assert.False(t, IsHiddenName(""))
}

func TestProjectStats_Record(t *testing.T) {
	var s ProjectStats
	s.Record([]ProcessingResult{
		{Kind: ResultRenamed, Success: true},
		{Kind: ResultRenamed, Success: false},
		{Kind: ResultUnchanged, Success: true},
		{Kind: ResultMoved, Success: true},
	}, time.Now())

	assert.Equal(t, int64(4), s.Processed)
	assert.Equal(t, int64(1), s.Renamed)
	assert.Equal(t, int64(1), s.Moved)
	assert.False(t, s.LastUpdate.IsZero())

	m := s.AsMap()
	assert.Equal(t, int64(4), m["processed"])

	s.Reset(s.LastUpdate)
	assert.Zero(t, s.Processed)
	assert.Zero(t, s.Renamed)
	assert.Zero(t, s.Moved)
}

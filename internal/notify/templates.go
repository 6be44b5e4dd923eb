package notify

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/trew/PokemonGoMapNotifier/internal/templatefmt"
)

// ReasonTemplate is the permanent-failure reason for template render errors.
const ReasonTemplate = "template"

// TemplateKeys lists every overridable template; `<kind>_title` renders the title line.
var TemplateKeys = []string{
	"pokemon", "pokemon_title",
	"raid", "raid_title",
	"egg", "egg_title",
	"gym", "gym_title",
}

var defaultTemplates = map[string]string{
	"pokemon_title": `{{ .Name }}{{ if .IV }} ({{ percent .IV }}%){{ end }}{{ if .Sublocality }} in {{ .Sublocality }}{{ end }}`,
	"pokemon": `Available until {{ .Time }} ({{ .TimeLeft }} left).` +
		`{{ if .IV }}
IV: {{ value .Attack }}/{{ value .Defense }}/{{ value .Stamina }}{{ end }}` +
		`{{ if .CP }}
CP: {{ value .CP }} (level {{ value .Level }}){{ end }}` +
		`{{ if .Move1 }}
Moves: {{ .Move1 }} - {{ .Move2 }}{{ end }}
{{ .GoogleMaps }}`,
	"raid_title": `Level {{ .Level }} raid: {{ .Name }}`,
	"raid": `{{ .GymName }} until {{ .End }} ({{ .UntilEnd }} left).` +
		`{{ if .Move1 }}
Moves: {{ .Move1 }} - {{ .Move2 }}{{ end }}
{{ .GoogleMaps }}`,
	"egg_title": `Level {{ .Level }} egg`,
	"egg": `{{ .GymName }} hatches at {{ .Start }} ({{ .UntilStart }} left).
{{ .GoogleMaps }}`,
	"gym_title": `{{ .TrainerName }} joined a gym!`,
	"gym": `{{ .Name }}{{ if .TeamName }} ({{ .TeamName }}){{ end }}
{{ .GoogleMaps }}`,
}

// TemplateSet holds compiled title/body templates for one endpoint.
type TemplateSet struct {
	templates map[string]*template.Template
}

// CompileTemplates merges endpoint overrides over the built-in templates.
// Params: override bodies keyed by TemplateKeys entries.
// Returns: compiled set or error naming the bad key.
func CompileTemplates(overrides map[string]string) (*TemplateSet, error) {
	unknown := make([]string, 0)
	for key := range overrides {
		if _, ok := defaultTemplates[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown template keys: %s", strings.Join(unknown, ", "))
	}

	set := &TemplateSet{templates: make(map[string]*template.Template, len(defaultTemplates))}
	for _, key := range TemplateKeys {
		body := defaultTemplates[key]
		if override, ok := overrides[key]; ok {
			body = override
		}
		compiled, err := templatefmt.ParseNotificationTemplate(key, body)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", key, err)
		}
		set.templates[key] = compiled
	}
	return set, nil
}

// Render executes title and body templates of one alert kind.
// Params: kind key (pokemon, raid, egg, gym) and payload.
// Returns: trimmed title and body.
func (s *TemplateSet) Render(kind string, payload any) (string, string, error) {
	title, err := s.execute(kind+"_title", payload)
	if err != nil {
		return "", "", err
	}
	body, err := s.execute(kind, payload)
	if err != nil {
		return "", "", err
	}
	return title, body, nil
}

func (s *TemplateSet) execute(key string, payload any) (string, error) {
	tmpl, ok := s.templates[key]
	if !ok {
		return "", fmt.Errorf("template %q is not defined", key)
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, payload); err != nil {
		return "", fmt.Errorf("render template %q: %w", key, err)
	}
	return strings.TrimSpace(out.String()), nil
}

package templates

import (
	"regexp"
	"strings"

	"companion/internal/catalog"
	"companion/internal/types"
)

// DefaultPetName replaces {PET_NAME} while the pet's name is unknown.
const DefaultPetName = "your pet"

// SafeText is emitted only if a fallback itself fails the guard. Catalog
// validation and the pipeline's startup audit make this unreachable in
// practice.
const SafeText = "I'm here with you."

// Fallback reasons, reported as "template:<reason>".
const (
	ReasonForbidden  = "forbidden"
	ReasonMissing    = "must_contain"
	ReasonUnresolved = "unresolved"
	ReasonLastResort = "fallback_failed"
)

const (
	guardPrefix         = "template:"
	placeholderOpen     = "\x00"
	placeholderClose    = "\x01"
	maxPlaceholderDepth = 4
)

// innermost matches a placeholder that contains no other placeholder.
var innermost = regexp.MustCompile(`\{([^{}]*)\}`)

// Request describes one render.
type Request struct {
	Category types.Category
	Region   string
	PetName  string
	// Escalate selects the crisis fallback when the render fails.
	Escalate bool
}

// Rendered is the outcome of a render.
type Rendered struct {
	Text         string         `json:"text"`
	Category     types.Category `json:"category"`
	Region       string         `json:"region"`
	Generative   bool           `json:"generative"`
	UsedFallback bool           `json:"usedFallback"`
	// Unresolved lists placeholders left verbatim in Text.
	Unresolved []string `json:"unresolved"`
	// Violations lists "template:<reason>" entries explaining a fallback.
	Violations []string `json:"violations"`
}

// Resolver renders catalog templates. It holds no state beyond the catalog
// and is safe for concurrent use.
type Resolver struct {
	cat *catalog.Catalog
}

// NewResolver returns a resolver over cat.
func NewResolver(cat *catalog.Catalog) *Resolver {
	return &Resolver{cat: cat}
}

// Region returns candidate when it has configured hotlines, otherwise the
// catalog's default region.
func (r *Resolver) Region(candidate string) string {
	candidate = strings.ToUpper(strings.TrimSpace(candidate))
	if candidate != "" {
		if _, ok := r.cat.Hotline(candidate + ".crisis"); ok {
			return candidate
		}
	}
	return r.cat.Regions().Default
}

// Render fills the category's template and runs the forbidden-phrase and
// must-contain checks. Any violation replaces the text with the crisis
// fallback (when req.Escalate) or the general fallback; the violating text is
// never returned.
func (r *Resolver) Render(req Request) Rendered {
	region := r.Region(req.Region)
	tpl := r.cat.Template(req.Category)

	out := Rendered{
		Category:   req.Category,
		Region:     region,
		Generative: tpl.Generative,
		Unresolved: []string{},
		Violations: []string{},
	}

	text, unresolved := r.Fill(tpl.Text, region, req.PetName)
	violations := r.check(text, tpl, region, req.PetName)
	if len(violations) == 0 {
		out.Text = text
		out.Unresolved = append(out.Unresolved, unresolved...)
		return out
	}

	fb := r.Fallback(req.Escalate, region, req.PetName)
	fb.Category = req.Category
	fb.Generative = tpl.Generative
	fb.Violations = append(violations, fb.Violations...)
	return fb
}

// Question renders a follow-up question prompt. It reports false when the
// prompt is missing or fails the forbidden-phrase guard.
func (r *Resolver) Question(q types.QuestionIntent, region, petName string) (string, bool) {
	prompt, ok := r.cat.Question(q)
	if !ok {
		return "", false
	}
	text, unresolved := r.Fill(prompt, r.Region(region), petName)
	if len(unresolved) > 0 || len(GuardPhrases(text, r.cat.ForbiddenPhrases())) > 0 {
		return "", false
	}
	return text, true
}

// check returns the "template:<reason>" violations of a filled text.
func (r *Resolver) check(text string, tpl catalog.Template, region, petName string) []string {
	var v []string
	for _, phrase := range GuardPhrases(text, r.cat.ForbiddenPhrases(), tpl.Forbidden) {
		v = append(v, guardPrefix+ReasonForbidden+":"+phrase)
	}
	for _, must := range tpl.MustContain {
		want, unresolved := r.Fill(must, region, petName)
		switch {
		case len(unresolved) > 0:
			v = append(v, guardPrefix+ReasonUnresolved+":"+must)
		case !strings.Contains(text, want):
			v = append(v, guardPrefix+ReasonMissing+":"+must)
		}
	}
	return v
}

// Fill substitutes {REGION}, {PET_NAME} and {HOTLINES.<path>} placeholders,
// innermost first, so a hotline path may itself contain {REGION}. Unknown
// placeholders are left verbatim and returned in order of appearance.
func (r *Resolver) Fill(text, region, petName string) (string, []string) {
	petName = strings.TrimSpace(petName)
	if petName == "" {
		petName = DefaultPetName
	}

	var unresolved []string
	for depth := 0; depth < maxPlaceholderDepth && strings.Contains(text, "{"); depth++ {
		text = innermost.ReplaceAllStringFunc(text, func(m string) string {
			key := m[1 : len(m)-1]
			if v, ok := r.lookup(key, region, petName); ok {
				return v
			}
			unresolved = append(unresolved, restore("{"+key+"}"))
			return placeholderOpen + key + placeholderClose
		})
	}
	return restore(text), dedupe(unresolved)
}

func (r *Resolver) lookup(key, region, petName string) (string, bool) {
	switch {
	case key == "REGION":
		return region, true
	case key == "PET_NAME":
		return petName, true
	case strings.HasPrefix(key, "HOTLINES."):
		if strings.Contains(key, placeholderOpen) {
			return "", false
		}
		return r.cat.Hotline(strings.TrimPrefix(key, "HOTLINES."))
	}
	return "", false
}

func restore(s string) string {
	return strings.NewReplacer(placeholderOpen, "{", placeholderClose, "}").Replace(s)
}

// dedupe drops inner placeholders that are also reported as part of an
// enclosing unresolved placeholder, and repeated entries.
func dedupe(in []string) []string {
	out := []string{}
	for i, p := range in {
		dup := false
		for j, q := range in {
			if i != j && strings.Contains(q, p) && q != p {
				dup = true
				break
			}
		}
		for _, o := range out {
			if o == p {
				dup = true
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}

// Fallback renders the crisis or general fallback directly, for turns whose
// own template must not be shown.
func (r *Resolver) Fallback(crisis bool, region, petName string) Rendered {
	region = r.Region(region)
	fb := r.cat.Fallbacks().General
	if crisis {
		fb = r.cat.Fallbacks().Crisis
	}
	out := Rendered{Region: region, UsedFallback: true, Unresolved: []string{}, Violations: []string{}}
	text, unresolved := r.Fill(fb.Text, region, petName)
	if len(r.check(text, fb, region, petName)) > 0 {
		out.Violations = append(out.Violations, guardPrefix+ReasonLastResort)
		out.Text = SafeText
		return out
	}
	out.Text = text
	out.Unresolved = append(out.Unresolved, unresolved...)
	return out
}

package templates

import (
	"strings"
	"testing"

	"companion/internal/catalog"
	"companion/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestGuardPhrases(t *testing.T) {
	deny := []string{"calm down", "at least", "Move On"}

	assert.Empty(t, GuardPhrases("I'm here with you.", deny))
	assert.Equal(t, []string{"calm down"}, GuardPhrases("Please **CALM   down**.", deny))
	assert.Equal(t, []string{"at least", "move on"}, GuardPhrases("At least you can move on.", deny, []string{"at least"}))
	assert.Empty(t, GuardPhrases("that leastwise sounds odd", deny), "whole words only")
	assert.Empty(t, GuardPhrases("remove online", deny))
}

func TestDetectRegion(t *testing.T) {
	spec := catalog.MustDefault().Regions()

	tests := []struct {
		text   string
		want   string
		wantOK bool
	}{
		{"i'm in london and my dog died", "GB", true},
		{"we live in toronto", "CA", true},
		{"from sydney, australia", "AU", true},
		{"my ukulele broke", "", false},
		{"", "", false},
		{"moved from canada to the uk", "CA", true},
	}
	for _, tt := range tests {
		got, ok := DetectRegion(tt.text, spec)
		assert.Equal(t, tt.wantOK, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestFill(t *testing.T) {
	r := NewResolver(catalog.MustDefault())

	text, unresolved := r.Fill("Call {HOTLINES.{REGION}.crisis} in {REGION} for {PET_NAME}.", "GB", "")
	assert.Equal(t, "Call 116 123 in GB for your pet.", text)
	assert.Empty(t, unresolved)

	text, unresolved = r.Fill("{PET_NAME} and {MYSTERY} and {HOTLINES.{REGION}.fax}", "US", "Biscuit")
	assert.Equal(t, "Biscuit and {MYSTERY} and {HOTLINES.US.fax}", text)
	assert.Equal(t, []string{"{MYSTERY}", "{HOTLINES.US.fax}"}, unresolved)

	text, unresolved = r.Fill("{HOTLINES.{NOPE}.crisis}", "US", "")
	assert.Equal(t, "{HOTLINES.{NOPE}.crisis}", text)
	assert.Equal(t, []string{"{HOTLINES.{NOPE}.crisis}"}, unresolved)
}

func TestRegion(t *testing.T) {
	r := NewResolver(catalog.MustDefault())
	assert.Equal(t, "GB", r.Region("gb"))
	assert.Equal(t, "US", r.Region(""))
	assert.Equal(t, "US", r.Region("ZZ"))
}

func TestRenderDefaultCatalog(t *testing.T) {
	cat := catalog.MustDefault()
	r := NewResolver(cat)

	for _, region := range cat.HotlineRegions() {
		for _, c := range types.AllCategories() {
			out := r.Render(Request{Category: c, Region: region, PetName: "Biscuit", Escalate: c.IsCrisis()})
			assert.False(t, out.UsedFallback, "%s/%s: %v", c, region, out.Violations)
			assert.Empty(t, out.Unresolved, "%s/%s", c, region)
			assert.Empty(t, GuardPhrases(out.Text, cat.ForbiddenPhrases()), "%s/%s", c, region)
			assert.NotContains(t, out.Text, "{", "%s/%s", c, region)
		}
	}

	out := r.Render(Request{Category: types.CategorySuicideIntent})
	assert.Contains(t, out.Text, "988")
	assert.Equal(t, "US", out.Region)

	out = r.Render(Request{Category: types.CategoryGeneral})
	assert.True(t, out.Generative)
	assert.Contains(t, out.Text, "your pet")
}

const brokenCatalogPatch = `
templates:
  emergency:
    text: "Get to a vet."
    must_contain: ["{HOTLINES.{REGION}.pet_poison}"]
  guilt_cbt:
    text: "It happens."
    must_contain: ["{HOTLINES.{REGION}.nothing}"]
`

// patchedCatalog overlays templates on the defaults. Must-contain lists are
// checked at render time only, so the result still loads.
func patchedCatalog(t *testing.T, patch string) *catalog.Catalog {
	t.Helper()
	var f catalog.File
	require.NoError(t, yaml.Unmarshal(catalog.DefaultYAML(), &f))

	var p catalog.File
	require.NoError(t, yaml.Unmarshal([]byte(patch), &p))
	for k, v := range p.Templates {
		f.Templates[k] = v
	}
	cat, err := catalog.New(f)
	require.NoError(t, err)
	return cat
}

func TestRenderFallsBackOnViolations(t *testing.T) {
	cat := patchedCatalog(t, brokenCatalogPatch)
	r := NewResolver(cat)

	t.Run("missing must-contain", func(t *testing.T) {
		out := r.Render(Request{Category: types.CategoryEmergency, Region: "US", Escalate: true})
		require.True(t, out.UsedFallback)
		assert.Equal(t, []string{"template:must_contain:{HOTLINES.{REGION}.pet_poison}"}, out.Violations)
		assert.Contains(t, out.Text, "988", "escalating turns use the crisis fallback")
		assert.NotContains(t, out.Text, "Get to a vet")
	})

	t.Run("unresolvable must-contain", func(t *testing.T) {
		out := r.Render(Request{Category: types.CategoryGuiltCBT})
		require.True(t, out.UsedFallback)
		assert.Equal(t, []string{"template:unresolved:{HOTLINES.{REGION}.nothing}"}, out.Violations)
		assert.Equal(t, cat.Fallbacks().General.Text, out.Text)
	})
}

func TestRenderNeverEmitsForbiddenText(t *testing.T) {
	// Static text is caught at load time; a pet name only exists at render time.
	var f catalog.File
	require.NoError(t, yaml.Unmarshal(catalog.DefaultYAML(), &f))
	f.Templates["scam"] = catalog.Template{Text: "Stay alert, {PET_NAME} is counting on you.", Forbidden: []string{"stay alert"}}
	_, err := catalog.New(f)
	require.Error(t, err, "validation also applies per-template lists")

	cat := catalog.MustDefault()
	r := NewResolver(cat)
	out := r.Render(Request{Category: types.CategoryScam, PetName: "calm down"})
	require.True(t, out.UsedFallback, "a pet name can smuggle in a forbidden phrase")
	assert.Equal(t, []string{"template:forbidden:calm down"}, out.Violations)
	assert.Empty(t, GuardPhrases(out.Text, cat.ForbiddenPhrases()))
}

func TestQuestion(t *testing.T) {
	r := NewResolver(catalog.MustDefault())

	text, ok := r.Question(types.AskSpecies, "", "Luna")
	require.True(t, ok)
	assert.Equal(t, "What kind of animal is Luna?", text)

	text, ok = r.Question(types.AskLastSeenTime, "", "")
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(text, "your pet?"))

	_, ok = r.Question(types.QuestionIntent("ask_favorite_toy"), "", "")
	assert.False(t, ok)
}

func TestAuditDefaultCatalog(t *testing.T) {
	report := Audit(catalog.MustDefault())
	assert.True(t, report.OK(), "%v", report.Violations)
	assert.Equal(t, []string{"AU", "CA", "GB", "US"}, report.Regions)
	assert.Greater(t, report.Rendered, 4*len(types.AllCategories()))
	assert.Empty(t, report.FallbackViolations())
}

func TestAuditReportsFallbackProblems(t *testing.T) {
	var f catalog.File
	require.NoError(t, yaml.Unmarshal(catalog.DefaultYAML(), &f))
	f.Fallbacks.Crisis.Text = "Call {HOTLINES.{REGION}.text_line} now."
	cat, err := catalog.New(f)
	require.NoError(t, err)

	report := Audit(cat)
	require.False(t, report.OK())
	fb := report.FallbackViolations()
	require.NotEmpty(t, fb)
	assert.Equal(t, "fallback.crisis", fb[0].Subject)
	assert.Equal(t, "template:unresolved:{HOTLINES.AU.text_line}", fb[0].Reason)
}

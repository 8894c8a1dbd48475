package templates

import (
	"fmt"
	"strings"

	"companion/internal/catalog"
	"companion/internal/types"
)

// Violation is one audit finding.
type Violation struct {
	Subject string `json:"subject"`
	Region  string `json:"region"`
	Reason  string `json:"reason"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s [%s]: %s", v.Subject, v.Region, v.Reason)
}

// Report collects the findings of Audit.
type Report struct {
	Regions    []string    `json:"regions"`
	Rendered   int         `json:"rendered"`
	Violations []Violation `json:"violations"`
}

// OK reports whether the audit found nothing.
func (r Report) OK() bool { return len(r.Violations) == 0 }

// FallbackViolations returns the findings against the fallbacks only. A
// catalog whose fallbacks fail cannot guarantee a safe render.
func (r Report) FallbackViolations() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if strings.HasPrefix(v.Subject, "fallback.") {
			out = append(out, v)
		}
	}
	return out
}

// Audit renders every template, both fallbacks and every question prompt for
// every region with hotlines, with and without a pet name, and reports
// forbidden phrases, missing must-contain entries and unresolved placeholders.
func Audit(cat *catalog.Catalog) Report {
	r := NewResolver(cat)
	report := Report{Regions: cat.HotlineRegions(), Violations: []Violation{}}

	add := func(subject, region string, reasons ...string) {
		for _, reason := range reasons {
			report.Violations = append(report.Violations, Violation{Subject: subject, Region: region, Reason: reason})
		}
	}
	auditText := func(subject, region, petName string, tpl catalog.Template) {
		report.Rendered++
		text, unresolved := r.Fill(tpl.Text, region, petName)
		for _, p := range unresolved {
			add(subject, region, guardPrefix+ReasonUnresolved+":"+p)
		}
		add(subject, region, r.check(text, tpl, region, petName)...)
	}

	for _, region := range report.Regions {
		for _, petName := range []string{"", "Biscuit"} {
			for _, c := range types.AllCategories() {
				auditText("template."+string(c), region, petName, cat.Template(c))
			}
			auditText("fallback.crisis", region, petName, cat.Fallbacks().Crisis)
			auditText("fallback.general", region, petName, cat.Fallbacks().General)
			for _, q := range types.AllQuestionIntents() {
				prompt, ok := cat.Question(q)
				if !ok {
					continue
				}
				auditText("question."+string(q), region, petName, catalog.Template{Text: prompt})
			}
		}
	}
	report.Violations = uniqueViolations(report.Violations)
	return report
}

func uniqueViolations(in []Violation) []Violation {
	seen := make(map[Violation]bool, len(in))
	out := make([]Violation, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

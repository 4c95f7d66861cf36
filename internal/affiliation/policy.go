package affiliation

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy is the replaceable keyword configuration behind a Classifier.
//
// Keywords are matched case-insensitively on word boundaries. A leading or
// trailing "*" drops the boundary on that side, so "*pharma*" matches
// "Biopharmaceuticals" and "*therapeutics" matches "Immunotherapeutics".
type Policy struct {
	// Academic keywords mark an affiliation as academic. They take
	// precedence over company keywords.
	Academic []string `yaml:"academic" json:"academic"`
	// Company keywords mark an affiliation as non-academic and locate the
	// company name inside it.
	Company []string `yaml:"company" json:"company"`
	// RequireCompanyKeyword controls affiliations that match neither list.
	// When false, any non-empty non-academic affiliation counts as industry.
	RequireCompanyKeyword bool `yaml:"require_company_keyword" json:"require_company_keyword"`
}

// DefaultPolicy returns the built-in keyword lists.
func DefaultPolicy() Policy {
	return Policy{
		Academic: []string{
			"universit*", "univ", "college", "school", "faculty", "academ*",
			"institut*", "hospital*", "clinic", "clinics", "medical center",
			"medical centre", "health system", "health science*", "research center",
			"research centre", "cancer center", "national laborator*",
			"nih", "national institutes of health", "cnrs", "inserm", "csic",
			"max planck", "ministry of", "department of health", "public health",
		},
		Company: []string{
			"inc", "ltd", "llc", "gmbh", "corp*", "company",
			"co., ltd", "& co.", "ag", "plc", "s.a.", "s.p.a.", "b.v.", "k.k.",
			"*pharma*", "biotech*", "*therapeutics", "biosciences",
			"biologics", "diagnostics", "laboratories", "holdings",
			"pfizer", "novartis", "roche", "genentech", "merck", "astrazeneca",
			"sanofi", "glaxosmithkline", "gsk", "janssen", "johnson & johnson",
			"bayer", "amgen", "gilead", "abbvie", "eli lilly", "moderna",
			"biontech", "regeneron", "takeda", "boehringer ingelheim",
			"bristol-myers squibb", "bristol myers squibb", "novo nordisk", "vertex", "biogen",
			"illumina", "medtronic", "siemens healthineers",
		},
		RequireCompanyKeyword: true,
	}
}

// LoadPolicy reads a YAML policy file. Keys missing from the file keep
// their DefaultPolicy values.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("reading policy %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("parsing policy %s: %w", path, err)
	}
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// Normalize trims keywords and drops blanks and case-insensitive duplicates.
func (p Policy) Normalize() Policy {
	trimList := func(xs []string) []string {
		seen := map[string]bool{}
		ys := make([]string, 0, len(xs))
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" || x == "*" || x == "**" {
				continue
			}
			key := strings.ToLower(x)
			if seen[key] {
				continue
			}
			seen[key] = true
			ys = append(ys, x)
		}
		return ys
	}

	out := p
	out.Academic = trimList(p.Academic)
	out.Company = trimList(p.Company)
	return out
}

// Validate reports policies that can never classify anything as industry.
func (p Policy) Validate() error {
	if p.RequireCompanyKeyword && len(p.Company) == 0 {
		return fmt.Errorf("no company keywords and require_company_keyword is set")
	}
	return nil
}

// SPDX-License-Identifier: MIT

// Package profile loads the applicant profile from plain_text_resume.yaml.
// The profile feeds LLM prompts and form field resolution, so loading is
// strict: unknown keys and malformed sections fail instead of degrading
// answer quality silently.
package profile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile mirrors plain_text_resume.yaml.
type Profile struct {
	PersonalInformation PersonalInformation `yaml:"personal_information"`
	ProfessionalSummary string              `yaml:"professional_summary"`
	EducationDetails    []Education         `yaml:"education_details"`
	Skills              map[string][]string `yaml:"skills"`
	ExperienceDetails   []Experience        `yaml:"experience_details"`
	Projects            []Project           `yaml:"projects"`
	Certifications      []string            `yaml:"certifications"`
	Achievements        []string            `yaml:"achievements"`
	Languages           []Language          `yaml:"languages"`
	Interests           []string            `yaml:"interests"`
	Availability        Availability        `yaml:"availability"`
	SalaryExpectations  SalaryExpectations  `yaml:"salary_expectations"`
	SelfIdentification  SelfIdentification  `yaml:"self_identification"`
	LegalAuthorization  LegalAuthorization  `yaml:"legal_authorization"`
	WorkPreferences     WorkPreferences     `yaml:"work_preferences"`
}

// PersonalInformation identifies and reaches the applicant.
type PersonalInformation struct {
	Name        string `yaml:"name"`
	Surname     string `yaml:"surname"`
	Country     string `yaml:"country"`
	City        string `yaml:"city"`
	PhonePrefix string `yaml:"phone_prefix"`
	Phone       string `yaml:"phone"`
	Email       string `yaml:"email"`
	GitHub      string `yaml:"github"`
	LinkedIn    string `yaml:"linkedin"`
}

// Education is one completed or ongoing degree.
type Education struct {
	EducationLevel   string `yaml:"education_level"`
	Institution      string `yaml:"institution"`
	FieldOfStudy     string `yaml:"field_of_study"`
	YearOfCompletion string `yaml:"year_of_completion"`
}

// Experience is one work engagement.
type Experience struct {
	Position            string   `yaml:"position"`
	Company             string   `yaml:"company"`
	EmploymentPeriod    string   `yaml:"employment_period"`
	KeyResponsibilities []string `yaml:"key_responsibilities"`
}

// Project is one portfolio entry.
type Project struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Language pairs a language with a proficiency level.
type Language struct {
	Language    string `yaml:"language"`
	Proficiency string `yaml:"proficiency"`
}

// Availability holds scheduling constraints.
type Availability struct {
	NoticePeriod string `yaml:"notice_period"`
}

// SalaryExpectations holds the expected compensation range.
type SalaryExpectations struct {
	SalaryRangeUSD string `yaml:"salary_range_usd"`
}

// SelfIdentification holds voluntary demographic answers. Values are
// free-form strings because portals phrase the options differently.
type SelfIdentification struct {
	Gender     string `yaml:"gender"`
	Pronouns   string `yaml:"pronouns"`
	Veteran    string `yaml:"veteran"`
	Disability string `yaml:"disability"`
	Ethnicity  string `yaml:"ethnicity"`
}

// LegalAuthorization answers work permit and visa questions per region.
type LegalAuthorization struct {
	EUWorkAuthorization         string `yaml:"eu_work_authorization"`
	USWorkAuthorization         string `yaml:"us_work_authorization"`
	RequiresUSVisa              string `yaml:"requires_us_visa"`
	LegallyAllowedToWorkInUS    string `yaml:"legally_allowed_to_work_in_us"`
	RequiresUSSponsorship       string `yaml:"requires_us_sponsorship"`
	RequiresEUVisa              string `yaml:"requires_eu_visa"`
	LegallyAllowedToWorkInEU    string `yaml:"legally_allowed_to_work_in_eu"`
	RequiresEUSponsorship       string `yaml:"requires_eu_sponsorship"`
	CanadaWorkAuthorization     string `yaml:"canada_work_authorization"`
	RequiresCanadaVisa          string `yaml:"requires_canada_visa"`
	LegallyAllowedToWorkInCA    string `yaml:"legally_allowed_to_work_in_canada"`
	RequiresCanadaSponsorship   string `yaml:"requires_canada_sponsorship"`
	UKWorkAuthorization         string `yaml:"uk_work_authorization"`
	RequiresUKVisa              string `yaml:"requires_uk_visa"`
	LegallyAllowedToWorkInUK    string `yaml:"legally_allowed_to_work_in_uk"`
	RequiresUKSponsorship       string `yaml:"requires_uk_sponsorship"`
}

// WorkPreferences answers workplace and screening questions.
type WorkPreferences struct {
	RemoteWork                        string `yaml:"remote_work"`
	InPersonWork                      string `yaml:"in_person_work"`
	OpenToRelocation                  string `yaml:"open_to_relocation"`
	WillingToCompleteAssessments      string `yaml:"willing_to_complete_assessments"`
	WillingToUndergoDrugTests         string `yaml:"willing_to_undergo_drug_tests"`
	WillingToUndergoBackgroundChecks  string `yaml:"willing_to_undergo_background_checks"`
}

// Load reads and strictly parses the profile file.
func Load(path string) (Profile, error) {
	var p Profile

	// #nosec G304 -- the profile path comes from operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if err == io.EOF {
			return p, fmt.Errorf("profile file is empty")
		}
		return p, fmt.Errorf("parse profile: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return p, fmt.Errorf("profile contains multiple documents or trailing content")
	}

	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Validate checks that the fields every application needs are present.
// Missing fields are named individually so the operator can fix the file
// in one pass.
func (p Profile) Validate() error {
	var missing []string
	pi := p.PersonalInformation
	for _, f := range []struct{ name, val string }{
		{"personal_information.name", pi.Name},
		{"personal_information.surname", pi.Surname},
		{"personal_information.email", pi.Email},
		{"personal_information.phone", pi.Phone},
		{"personal_information.country", pi.Country},
		{"personal_information.city", pi.City},
	} {
		if strings.TrimSpace(f.val) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("profile incomplete, missing: %s", strings.Join(missing, ", "))
	}
	if !strings.Contains(pi.Email, "@") {
		return fmt.Errorf("personal_information.email %q is not an email address", pi.Email)
	}
	return nil
}

// FullName returns the applicant's display name.
func (p Profile) FullName() string {
	return strings.TrimSpace(p.PersonalInformation.Name + " " + p.PersonalInformation.Surname)
}

// Summary returns a one-line form for logs.
func (p Profile) Summary() string {
	return fmt.Sprintf("%s <%s>, %d experiences, %d skill groups",
		p.FullName(), p.PersonalInformation.Email, len(p.ExperienceDetails), len(p.Skills))
}

// PromptText renders the profile as deterministic plain text for LLM
// prompts. Section order is fixed and map keys are sorted so the same
// profile always produces the same prompt.
func (p Profile) PromptText() string {
	var b strings.Builder

	section := func(title string) {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(title)
		b.WriteString(":\n")
	}
	line := func(k, v string) {
		if strings.TrimSpace(v) == "" {
			return
		}
		fmt.Fprintf(&b, "  %s: %s\n", k, v)
	}

	section("Personal Information")
	pi := p.PersonalInformation
	line("name", p.FullName())
	line("country", pi.Country)
	line("city", pi.City)
	line("phone", pi.PhonePrefix+pi.Phone)
	line("email", pi.Email)
	line("github", pi.GitHub)
	line("linkedin", pi.LinkedIn)

	if p.ProfessionalSummary != "" {
		section("Professional Summary")
		b.WriteString("  " + strings.TrimSpace(p.ProfessionalSummary) + "\n")
	}

	if len(p.EducationDetails) > 0 {
		section("Education")
		for _, e := range p.EducationDetails {
			fmt.Fprintf(&b, "  - %s, %s, %s (%s)\n",
				e.EducationLevel, e.Institution, e.FieldOfStudy, e.YearOfCompletion)
		}
	}

	if len(p.Skills) > 0 {
		section("Skills")
		groups := make([]string, 0, len(p.Skills))
		for g := range p.Skills {
			groups = append(groups, g)
		}
		sort.Strings(groups)
		for _, g := range groups {
			fmt.Fprintf(&b, "  %s: %s\n", g, strings.Join(p.Skills[g], ", "))
		}
	}

	if len(p.ExperienceDetails) > 0 {
		section("Experience")
		for _, e := range p.ExperienceDetails {
			fmt.Fprintf(&b, "  - %s at %s (%s)\n", e.Position, e.Company, e.EmploymentPeriod)
			for _, r := range e.KeyResponsibilities {
				fmt.Fprintf(&b, "    * %s\n", r)
			}
		}
	}

	if len(p.Projects) > 0 {
		section("Projects")
		for _, pr := range p.Projects {
			fmt.Fprintf(&b, "  - %s: %s\n", pr.Name, pr.Description)
		}
	}

	if len(p.Certifications) > 0 {
		section("Certifications")
		for _, c := range p.Certifications {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
	}

	if len(p.Achievements) > 0 {
		section("Achievements")
		for _, a := range p.Achievements {
			fmt.Fprintf(&b, "  - %s\n", a)
		}
	}

	if len(p.Languages) > 0 {
		section("Languages")
		for _, l := range p.Languages {
			fmt.Fprintf(&b, "  - %s (%s)\n", l.Language, l.Proficiency)
		}
	}

	if len(p.Interests) > 0 {
		section("Interests")
		b.WriteString("  " + strings.Join(p.Interests, ", ") + "\n")
	}

	section("Availability")
	line("notice_period", p.Availability.NoticePeriod)

	section("Salary Expectations")
	line("salary_range_usd", p.SalaryExpectations.SalaryRangeUSD)

	section("Self Identification")
	si := p.SelfIdentification
	line("gender", si.Gender)
	line("pronouns", si.Pronouns)
	line("veteran", si.Veteran)
	line("disability", si.Disability)
	line("ethnicity", si.Ethnicity)

	section("Legal Authorization")
	la := p.LegalAuthorization
	line("eu_work_authorization", la.EUWorkAuthorization)
	line("us_work_authorization", la.USWorkAuthorization)
	line("requires_us_visa", la.RequiresUSVisa)
	line("legally_allowed_to_work_in_us", la.LegallyAllowedToWorkInUS)
	line("requires_us_sponsorship", la.RequiresUSSponsorship)
	line("requires_eu_visa", la.RequiresEUVisa)
	line("legally_allowed_to_work_in_eu", la.LegallyAllowedToWorkInEU)
	line("requires_eu_sponsorship", la.RequiresEUSponsorship)
	line("canada_work_authorization", la.CanadaWorkAuthorization)
	line("requires_canada_visa", la.RequiresCanadaVisa)
	line("legally_allowed_to_work_in_canada", la.LegallyAllowedToWorkInCA)
	line("requires_canada_sponsorship", la.RequiresCanadaSponsorship)
	line("uk_work_authorization", la.UKWorkAuthorization)
	line("requires_uk_visa", la.RequiresUKVisa)
	line("legally_allowed_to_work_in_uk", la.LegallyAllowedToWorkInUK)
	line("requires_uk_sponsorship", la.RequiresUKSponsorship)

	section("Work Preferences")
	wp := p.WorkPreferences
	line("remote_work", wp.RemoteWork)
	line("in_person_work", wp.InPersonWork)
	line("open_to_relocation", wp.OpenToRelocation)
	line("willing_to_complete_assessments", wp.WillingToCompleteAssessments)
	line("willing_to_undergo_drug_tests", wp.WillingToUndergoDrugTests)
	line("willing_to_undergo_background_checks", wp.WillingToUndergoBackgroundChecks)

	return b.String()
}

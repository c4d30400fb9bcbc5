package structuring

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/JaimeStill/aura/internal/clinical"
)

var (
	biradsPattern   = regexp.MustCompile(`(?i)bi-?rads\s*(?:category|score|cat\.?)?\s*[:\-]?\s*([0-6])`)
	followupPattern = regexp.MustCompile(`(?i)follow[\s-]?up`)
	lmpPattern      = regexp.MustCompile(`(?i)\blmp[:\s]*([\d/\-\.]+)`)
	monthsPattern   = regexp.MustCompile(`(?i)(\d{1,2})\s*months?`)
	acrPattern      = regexp.MustCompile(`(?i)\bacr\s*(?:type|density|category)?\s*[:\-]?\s*([a-d])\b`)

	agePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bage[:\s]+(\d{1,3})`),
		regexp.MustCompile(`(?i)(\d{1,3})\s*-?\s*(?:years?|yrs?|y/o)\b`),
	}

	densities = []struct {
		phrase string
		acr    string
	}{
		{"almost entirely fatty", "A"},
		{"scattered fibroglandular", "B"},
		{"heterogeneously dense", "C"},
		{"extremely dense", "D"},
	}
)

// Rules structures text with keyword and pattern rules. It recognizes far
// fewer fields than a language model and is used when none is available.
func Rules(text string) clinical.StructuredData {
	d := clinical.New()
	lower := strings.ToLower(text)

	if m := biradsPattern.FindStringSubmatch(text); m != nil {
		d.BIRADSScore = m[1]
	}

	switch {
	case strings.Contains(lower, "routine") && strings.Contains(lower, "screening"):
		d.Indication = "routine screening"
	case followupPattern.MatchString(lower):
		d.Indication = "follow-up"
	case strings.Contains(lower, "symptom"):
		d.Indication = "symptomatic"
	}

	for _, p := range agePatterns {
		m := p.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		if age, err := strconv.Atoi(m[1]); err == nil && age >= 18 && age <= 100 {
			d.Age = m[1]
			break
		}
	}

	if line := lineContaining(lower, "family history"); line != "" {
		switch {
		case containsAny(line, "no family", "negative", "none", "denies"):
			d.FamilyHistoryBreastPathology = "negative"
		case strings.Contains(line, "cancer"):
			d.FamilyHistoryBreastPathology = "family history of breast cancer"
		case containsAny(line, "positive", "yes"):
			d.FamilyHistoryBreastPathology = "positive"
		}
	}

	if m := lmpPattern.FindStringSubmatch(text); m != nil {
		d.LMP = m[1]
	}

	if strings.Contains(lower, "no suspicious") {
		d.FindingsSummary = "no suspicious findings"
		d.CalcificationsPresent = "no"
		d.ArchitecturalDistortion = "none"
	}

	if strings.Contains(lower, "routine") {
		if m := monthsPattern.FindStringSubmatch(lower); m != nil {
			d.FollowupRecommended = "yes"
			d.RecommendationText = "routine screening in " + m[1] + " months"
		}
	}

	for _, dn := range densities {
		if strings.Contains(lower, dn.phrase) {
			d.GlandDensity = dn.phrase
			d.ACRDensityType = dn.acr
			break
		}
	}
	if m := acrPattern.FindStringSubmatch(text); m != nil {
		d.ACRDensityType = strings.ToUpper(m[1])
	}

	return d
}

func lineContaining(text, phrase string) string {
	for line := range strings.SplitSeq(text, "\n") {
		if strings.Contains(line, phrase) {
			return line
		}
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

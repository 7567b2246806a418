package model

import "strings"

// Classification is the document type assigned by the classification stage.
type Classification string

const (
	ClassificationOrder        Classification = "Order"
	ClassificationJudgment     Classification = "Judgment"
	ClassificationOralJudgment Classification = "Oral Judgment"
	ClassificationUnclassified Classification = "Unclassified"
)

// ParseClassification maps a provider label onto a Classification. The
// provider's "Null" label and an empty string both mean Unclassified.
func ParseClassification(s string) (Classification, bool) {
	switch strings.ToLower(strings.Join(strings.Fields(s), " ")) {
	case "order":
		return ClassificationOrder, true
	case "judgment", "judgement":
		return ClassificationJudgment, true
	case "oral judgment", "oral judgement", "oraljudgment":
		return ClassificationOralJudgment, true
	case "null", "", "unclassified":
		return ClassificationUnclassified, true
	default:
		return "", false
	}
}

// NoveltyScore is the ordinal legal-significance rating of a judgment.
type NoveltyScore string

const (
	NoveltyVeryLow  NoveltyScore = "Very Low"
	NoveltyLow      NoveltyScore = "Low"
	NoveltyModerate NoveltyScore = "Moderate"
	NoveltyHigh     NoveltyScore = "High"
	NoveltyVeryHigh NoveltyScore = "Very High"
)

// NoveltyScores lists every score from lowest to highest.
func NoveltyScores() []NoveltyScore {
	return []NoveltyScore{NoveltyVeryLow, NoveltyLow, NoveltyModerate, NoveltyHigh, NoveltyVeryHigh}
}

// Rank returns 1 (Very Low) through 5 (Very High), or 0 for an unknown score.
func (s NoveltyScore) Rank() int {
	for i, v := range NoveltyScores() {
		if v == s {
			return i + 1
		}
	}
	return 0
}

// Valid reports whether s is one of the five known scores.
func (s NoveltyScore) Valid() bool { return s.Rank() > 0 }

// AreaOfLaw is the legal domain a judgment belongs to.
type AreaOfLaw string

const (
	AreaAdministrative     AreaOfLaw = "Administrative Law"
	AreaArbitration        AreaOfLaw = "Arbitration Law"
	AreaBusiness           AreaOfLaw = "Business Law"
	AreaCivil              AreaOfLaw = "Civil Law"
	AreaConstitutional     AreaOfLaw = "Constitutional Law"
	AreaContract           AreaOfLaw = "Contract Law"
	AreaCriminal           AreaOfLaw = "Criminal Law"
	AreaEnvironmental      AreaOfLaw = "Environmental Law"
	AreaEducation          AreaOfLaw = "Education Law"
	AreaEmployment         AreaOfLaw = "Employment Law"
	AreaFamilyAndHealth    AreaOfLaw = "Family and Health Law"
	AreaIndustrial         AreaOfLaw = "Industrial Law"
	AreaIntellectualProp   AreaOfLaw = "Intellectual Property Law"
	AreaMarriageAndDivorce AreaOfLaw = "Marriage and Divorce Law"
	AreaProperty           AreaOfLaw = "Property Law"
	AreaTaxation           AreaOfLaw = "Taxation Law"
)

// AreasOfLaw returns the closed set of legal areas.
func AreasOfLaw() []AreaOfLaw {
	return []AreaOfLaw{
		AreaAdministrative,
		AreaArbitration,
		AreaBusiness,
		AreaCivil,
		AreaConstitutional,
		AreaContract,
		AreaCriminal,
		AreaEnvironmental,
		AreaEducation,
		AreaEmployment,
		AreaFamilyAndHealth,
		AreaIndustrial,
		AreaIntellectualProp,
		AreaMarriageAndDivorce,
		AreaProperty,
		AreaTaxation,
	}
}

// Valid reports whether a is in the closed set.
func (a AreaOfLaw) Valid() bool {
	for _, v := range AreasOfLaw() {
		if v == a {
			return true
		}
	}
	return false
}

// Stage names one enrichment step.
type Stage string

const (
	StageParties        Stage = "parties"
	StageJudges         Stage = "judges"
	StageClassification Stage = "classification"
	StageSummary        Stage = "summary"
	StageRephrase       Stage = "rephrase"
	StageNovelty        Stage = "novelty"
)

// AllStages returns every stage in execution order.
func AllStages() []Stage {
	return []Stage{StageParties, StageJudges, StageClassification, StageSummary, StageRephrase, StageNovelty}
}

// ParseStages parses a list of stage names. "all" expands to every stage.
func ParseStages(names []string) ([]Stage, bool) {
	var out []Stage
	seen := make(map[Stage]bool)
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if n == "all" {
			return AllStages(), true
		}
		s := Stage(n)
		if !s.Valid() {
			return nil, false
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out, true
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	for _, v := range AllStages() {
		if v == s {
			return true
		}
	}
	return false
}

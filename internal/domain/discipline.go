package domain

import "strings"

// Discipline is the coarse sport classification used for calendar matching.
type Discipline string

const (
	DisciplineRun   Discipline = "RUN"
	DisciplineBike  Discipline = "BIKE"
	DisciplineSwim  Discipline = "SWIM"
	DisciplineOther Discipline = "OTHER"
)

// Ordered precedence list: first keyword hit wins. Deliberately coarse; the
// provider's sport-type vocabulary drifts, keywords don't.
var disciplineKeywords = []struct {
	keywords   []string
	discipline Discipline
}{
	{[]string{"run", "walk", "hike"}, DisciplineRun},
	{[]string{"ride", "bike", "cycl", "velo"}, DisciplineBike},
	{[]string{"swim"}, DisciplineSwim},
}

// ClassifyDiscipline maps a provider sport-type string onto a Discipline.
func ClassifyDiscipline(sportType string) Discipline {
	normalized := strings.ToLower(strings.TrimSpace(sportType))
	if normalized == "" {
		return DisciplineOther
	}
	for _, entry := range disciplineKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(normalized, keyword) {
				return entry.discipline
			}
		}
	}
	return DisciplineOther
}

package analysis

import (
	"time"

	"github.com/fyrsmithlabs/dialogd/internal/session"
)

// Sexagenary cycle tables. Index 0 corresponds to year 4 CE (jia-zi).
var (
	heavenlyStems = []string{
		"jia", "yi", "bing", "ding", "wu", "ji", "geng", "xin", "ren", "gui",
	}
	earthlyBranches = []string{
		"zi", "chou", "yin", "mao", "chen", "si",
		"wu", "wei", "shen", "you", "xu", "hai",
	}
	zodiacAnimals = []string{
		"rat", "ox", "tiger", "rabbit", "dragon", "snake",
		"horse", "goat", "monkey", "rooster", "dog", "pig",
	}
)

// computeBirthChart derives the deterministic chart facts from a
// complete birth profile. It reports false when the profile is
// incomplete.
func computeBirthChart(birth *session.BirthProfile) (AlgorithmResult, bool) {
	if !birth.Complete() {
		return AlgorithmResult{}, false
	}

	start := time.Now()

	offset := ((birth.Year-4)%60 + 60) % 60
	yearStem := heavenlyStems[offset%10]
	yearBranch := earthlyBranches[offset%12]
	zodiac := zodiacAnimals[offset%12]

	// each branch spans two hours, zi starting at 23:00
	hourBranch := earthlyBranches[((birth.Hour+1)/2)%12]

	return AlgorithmResult{
		Domain:  "birth_chart",
		Success: true,
		Data: map[string]any{
			"year_stem":   yearStem,
			"year_branch": yearBranch,
			"zodiac":      zodiac,
			"hour_branch": hourBranch,
		},
		Confidence:    0.9,
		ExecutionTime: time.Since(start),
	}, true
}

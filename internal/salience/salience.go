package salience

import (
	"math"

	"github.com/ppiankov/petitionlens/internal/constituency"
)

// Category describes local salience relative to the national picture
type Category string

const (
	MoreSalient  Category = "more salient"
	AboutSalient Category = "about as salient"
	LessSalient  Category = "less salient"
)

// Class returns the CSS class used when rendering the category
func (c Category) Class() string {
	switch c {
	case MoreSalient:
		return "more-salient"
	case AboutSalient:
		return "about-salient"
	default:
		return "less-salient"
	}
}

const (
	moreThreshold = 1.01
	aboutEpsilon  = 0.01
)

// Result is the salience of one petition in one constituency
type Result struct {
	Ratio    float64  `json:"ratio"`
	Category Category `json:"category"`
}

// Ratio compares a constituency's share of signatures with an even split across k constituencies.
// A non-positive total yields zero.
func Ratio(count, total, k int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(count) * float64(k) / float64(total)
}

// Categorize maps a ratio onto a category
func Categorize(ratio float64) Category {
	switch {
	case ratio > moreThreshold:
		return MoreSalient
	case math.Abs(ratio-1) < aboutEpsilon:
		return AboutSalient
	default:
		return LessSalient
	}
}

// Compute returns ratio and category for count local signatures out of total UK signatures
func Compute(count, total int) Result {
	r := Ratio(count, total, constituency.Count)
	return Result{Ratio: r, Category: Categorize(r)}
}

// Band is a salience filter used by report views
type Band string

const (
	BandAny   Band = ""
	BandMore  Band = "more"
	BandAbout Band = "about"
	BandLess  Band = "less"
)

// ParseBand accepts more, about, less, or empty for any
func ParseBand(s string) (Band, bool) {
	switch b := Band(s); b {
	case BandAny, BandMore, BandAbout, BandLess:
		return b, true
	}
	return BandAny, false
}

// Contains reports whether a ratio falls inside the band
func (b Band) Contains(ratio float64) bool {
	switch b {
	case BandMore:
		return ratio > 1.01
	case BandLess:
		return ratio < 0.99
	case BandAbout:
		return ratio >= 0.99 && ratio <= 1.01
	default:
		return true
	}
}

package domain

// Metadata categories used by the knowledge index. Each indexed document
// carries exactly one of them.
const (
	CategoryZodiacs          = "zodiacs"
	CategoryPlanetaryFactors = "planetary_factors"
	CategoryLifeAreas        = "life_areas"
	CategoryNakshatra        = "nakshtra"
)

// Categories lists the metadata categories in a fixed order.
var Categories = []string{
	CategoryZodiacs,
	CategoryPlanetaryFactors,
	CategoryLifeAreas,
	CategoryNakshatra,
}

// ZodiacSigns are the twelve rasis.
var ZodiacSigns = []string{
	"Aries", "Taurus", "Gemini", "Cancer", "Leo", "Virgo",
	"Libra", "Scorpio", "Sagittarius", "Capricorn", "Aquarius", "Pisces",
}

// PlanetaryFactors are the nine grahas.
var PlanetaryFactors = []string{
	"Sun", "Moon", "Mars", "Mercury", "Jupiter", "Venus", "Saturn", "Rahu", "Ketu",
}

// LifeAreas are the guidance areas covered by the knowledge base.
var LifeAreas = []string{"love", "spirituality", "career"}

// Nakshatras are the 27 lunar mansions.
var Nakshatras = []string{
	"Ashwini", "Bharani", "Krittika", "Rohini", "Mrigashira", "Ardra",
	"Punarvasu", "Pushya", "Ashlesha", "Magha", "Purva Phalguni", "Uttara Phalguni",
	"Hasta", "Chitra", "Swati", "Vishakha", "Anuradha", "Jyeshtha",
	"Mula", "Purva Ashadha", "Uttara Ashadha", "Shravana", "Dhanishtha",
	"Shatabhisha", "Purva Bhadrapada", "Uttara Bhadrapada", "Revati",
}

var categoryValues = map[string]map[string]struct{}{
	CategoryZodiacs:          toSet(ZodiacSigns),
	CategoryPlanetaryFactors: toSet(PlanetaryFactors),
	CategoryLifeAreas:        toSet(LifeAreas),
	CategoryNakshatra:        toSet(Nakshatras),
}

// ValidCategoryValue reports whether value belongs to the enum of category.
func ValidCategoryValue(category, value string) bool {
	set, ok := categoryValues[category]
	if !ok {
		return false
	}
	_, ok = set[value]
	return ok
}

// CategoryEnum returns the allowed values for a category.
func CategoryEnum(category string) []string {
	switch category {
	case CategoryZodiacs:
		return ZodiacSigns
	case CategoryPlanetaryFactors:
		return PlanetaryFactors
	case CategoryLifeAreas:
		return LifeAreas
	case CategoryNakshatra:
		return Nakshatras
	default:
		return nil
	}
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

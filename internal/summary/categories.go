package summary

import (
	"strings"
	"unicode"
)

// Canonical category labels used for grouping and report rows.
const (
	CategoryTransportation = "Transportation"
	CategoryAccommodation  = "Accommodation"
	CategoryMeals          = "Meals & Entertainment"
	CategoryConference     = "Conference & Training"
	CategoryOffice         = "Office & Supplies"
	CategoryCommunication  = "Communication"
	CategoryOthers         = "Others"
)

// Keyword buckets checked in order; first hit wins. Single keywords match
// whole words of the label ("bus" matches "bus ticket", not "business");
// keywords with a space match consecutive words.
var categoryKeywords = []struct {
	label    string
	keywords []string
}{
	{CategoryTransportation, []string{
		"taxi", "uber", "lyft", "flight", "flights", "airline", "airfare", "train",
		"bus", "metro", "fuel", "gas", "gasoline", "petrol", "parking",
		"transport", "transportation", "travel", "car rental",
	}},
	{CategoryAccommodation, []string{
		"hotel", "lodge", "lodging", "airbnb", "inn", "hostel", "motel",
		"resort", "accommodation", "stay",
	}},
	{CategoryMeals, []string{
		"restaurant", "meal", "meals", "food", "cafe", "coffee", "dinner", "lunch",
		"breakfast", "bar", "entertainment", "catering", "dining",
	}},
	{CategoryConference, []string{
		"conference", "training", "seminar", "workshop", "course", "education", "registration",
	}},
	{CategoryOffice, []string{
		"office", "supplies", "stationery", "equipment", "printer", "paper",
		"software", "hardware", "subscription",
	}},
	{CategoryCommunication, []string{
		"phone", "internet", "telecom", "mobile", "communication", "broadband", "sim",
	}},
}

// NormalizeCategory maps a free-form category label onto one of the
// canonical buckets. Keywords match on word boundaries so fragments inside
// unrelated words never claim a label. Unknown or empty labels land in
// Others.
func NormalizeCategory(raw string) string {
	words := labelWords(raw)
	if len(words) == 0 {
		return CategoryOthers
	}
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[w] = true
	}
	phrase := " " + strings.Join(words, " ") + " "
	for _, bucket := range categoryKeywords {
		for _, kw := range bucket.keywords {
			if strings.ContainsRune(kw, ' ') {
				if strings.Contains(phrase, " "+kw+" ") {
					return bucket.label
				}
				continue
			}
			if seen[kw] {
				return bucket.label
			}
		}
	}
	return CategoryOthers
}

func labelWords(raw string) []string {
	return strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

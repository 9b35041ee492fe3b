package fetcher

import "strings"

// Adzuna partitions its index by country, so the country code must match
// the location being searched. supportedCountries lists the markets the
// API serves.
var supportedCountries = map[string]string{
	"au": "Australia",
	"at": "Austria",
	"be": "Belgium",
	"br": "Brazil",
	"ca": "Canada",
	"ch": "Switzerland",
	"de": "Germany",
	"es": "Spain",
	"fr": "France",
	"gb": "United Kingdom",
	"in": "India",
	"it": "Italy",
	"mx": "Mexico",
	"nl": "Netherlands",
	"nz": "New Zealand",
	"pl": "Poland",
	"ru": "Russia",
	"sg": "Singapore",
	"us": "United States",
	"za": "South Africa",
}

type countryHint struct {
	name    string
	country string
}

// Major cities per market. Checked by substring so "Berlin, Germany" and
// "Berlin Mitte" both resolve.
var cityCountries = []countryHint{
	{"sydney", "au"}, {"melbourne", "au"}, {"brisbane", "au"}, {"perth", "au"},
	{"adelaide", "au"}, {"canberra", "au"}, {"hobart", "au"}, {"darwin", "au"},

	{"vienna", "at"}, {"salzburg", "at"}, {"graz", "at"}, {"innsbruck", "at"},

	{"brussels", "be"}, {"antwerp", "be"}, {"ghent", "be"}, {"bruges", "be"},
	{"liege", "be"}, {"leuven", "be"},

	{"sao paulo", "br"}, {"rio de janeiro", "br"}, {"brasilia", "br"},
	{"salvador", "br"}, {"fortaleza", "br"}, {"belo horizonte", "br"},

	{"toronto", "ca"}, {"vancouver", "ca"}, {"montreal", "ca"}, {"calgary", "ca"},
	{"ottawa", "ca"}, {"edmonton", "ca"}, {"quebec", "ca"}, {"winnipeg", "ca"},

	{"zurich", "ch"}, {"geneva", "ch"}, {"basel", "ch"}, {"bern", "ch"},
	{"lausanne", "ch"}, {"lucerne", "ch"},

	{"berlin", "de"}, {"munich", "de"}, {"hamburg", "de"}, {"frankfurt", "de"},
	{"cologne", "de"}, {"stuttgart", "de"}, {"dusseldorf", "de"}, {"dortmund", "de"},

	{"madrid", "es"}, {"barcelona", "es"}, {"valencia", "es"}, {"seville", "es"},
	{"zaragoza", "es"}, {"malaga", "es"}, {"bilbao", "es"},

	{"paris", "fr"}, {"marseille", "fr"}, {"lyon", "fr"}, {"toulouse", "fr"},
	{"nice", "fr"}, {"nantes", "fr"}, {"strasbourg", "fr"}, {"bordeaux", "fr"},

	{"london", "gb"}, {"manchester", "gb"}, {"birmingham", "gb"}, {"glasgow", "gb"},
	{"liverpool", "gb"}, {"edinburgh", "gb"}, {"leeds", "gb"}, {"bristol", "gb"},
	{"newcastle", "gb"}, {"cardiff", "gb"}, {"belfast", "gb"},

	{"mumbai", "in"}, {"delhi", "in"}, {"bangalore", "in"}, {"hyderabad", "in"},
	{"chennai", "in"}, {"kolkata", "in"}, {"pune", "in"}, {"ahmedabad", "in"},

	{"rome", "it"}, {"milan", "it"}, {"naples", "it"}, {"turin", "it"},
	{"florence", "it"}, {"venice", "it"}, {"bologna", "it"},

	{"mexico city", "mx"}, {"guadalajara", "mx"}, {"monterrey", "mx"},
	{"puebla", "mx"}, {"tijuana", "mx"}, {"cancun", "mx"},

	{"amsterdam", "nl"}, {"rotterdam", "nl"}, {"the hague", "nl"}, {"utrecht", "nl"},
	{"eindhoven", "nl"}, {"groningen", "nl"},

	{"auckland", "nz"}, {"wellington", "nz"}, {"christchurch", "nz"},
	{"hamilton", "nz"}, {"dunedin", "nz"},

	{"warsaw", "pl"}, {"krakow", "pl"}, {"wroclaw", "pl"}, {"poznan", "pl"},
	{"gdansk", "pl"}, {"lodz", "pl"},

	{"moscow", "ru"}, {"st petersburg", "ru"}, {"novosibirsk", "ru"},
	{"yekaterinburg", "ru"}, {"kazan", "ru"},

	{"singapore", "sg"},

	{"new york", "us"}, {"los angeles", "us"}, {"chicago", "us"}, {"houston", "us"},
	{"phoenix", "us"}, {"philadelphia", "us"}, {"san antonio", "us"}, {"san diego", "us"},
	{"dallas", "us"}, {"san jose", "us"}, {"austin", "us"}, {"jacksonville", "us"},
	{"san francisco", "us"}, {"seattle", "us"}, {"denver", "us"}, {"boston", "us"},
	{"miami", "us"}, {"atlanta", "us"}, {"washington", "us"}, {"las vegas", "us"},

	{"johannesburg", "za"}, {"cape town", "za"}, {"durban", "za"}, {"pretoria", "za"},
}

// Country names and demonyms, longest first so "united kingdom" wins
// over partial matches.
var countryKeywords = []countryHint{
	{"united kingdom", "gb"},
	{"united states", "us"},
	{"south africa", "za"},
	{"new zealand", "nz"},
	{"netherlands", "nl"},
	{"switzerland", "ch"},
	{"australian", "au"},
	{"australia", "au"},
	{"brazilian", "br"},
	{"singapore", "sg"},
	{"american", "us"},
	{"austrian", "at"},
	{"canadian", "ca"},
	{"america", "us"},
	{"austria", "at"},
	{"belgian", "be"},
	{"belgium", "be"},
	{"britain", "gb"},
	{"british", "gb"},
	{"england", "gb"},
	{"germany", "de"},
	{"holland", "nl"},
	{"italian", "it"},
	{"mexican", "mx"},
	{"russian", "ru"},
	{"spanish", "es"},
	{"brazil", "br"},
	{"canada", "ca"},
	{"france", "fr"},
	{"french", "fr"},
	{"german", "de"},
	{"indian", "in"},
	{"mexico", "mx"},
	{"poland", "pl"},
	{"polish", "pl"},
	{"russia", "ru"},
	{"dutch", "nl"},
	{"india", "in"},
	{"italy", "it"},
	{"spain", "es"},
	{"swiss", "ch"},
}

// DetectCountry resolves the Adzuna country code for a location string,
// checking known cities first, then country names and demonyms. Empty or
// unrecognized locations fall back to defaultCountry.
func DetectCountry(location, defaultCountry string) string {
	loc := strings.ToLower(strings.TrimSpace(location))
	if loc == "" {
		return defaultCountry
	}
	for _, hint := range cityCountries {
		if strings.Contains(loc, hint.name) {
			return hint.country
		}
	}
	for _, hint := range countryKeywords {
		if strings.Contains(loc, hint.name) {
			return hint.country
		}
	}
	return defaultCountry
}

// CountryName returns the full market name for a supported country code.
func CountryName(code string) string {
	if name, ok := supportedCountries[strings.ToLower(code)]; ok {
		return name
	}
	return strings.ToUpper(code)
}

// IsSupportedCountry reports whether Adzuna serves the given market.
func IsSupportedCountry(code string) bool {
	_, ok := supportedCountries[strings.ToLower(code)]
	return ok
}

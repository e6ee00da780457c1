package scraper

import (
	"strings"

	"auctionharvest/internal/models"
)

// assetTypeRules is ordered: the first group with a keyword hit wins, so the
// broader categories near the top shadow the narrower ones below.
var assetTypeRules = []struct {
	assetType string
	keywords  []string
}{
	{"real-estate", []string{
		"real estate", "land", "building", "property", "warehouse",
		"office", "facility", "acre", "commercial", "residential",
	}},
	{"cars", []string{
		"vehicle", "car", "truck", "van", "suv", "sedan", "pickup", "automobile", "auto",
	}},
	{"trailers", []string{"trailer", "semi", "tractor", "flatbed"}},
	{"motorcycles", []string{"motorcycle", "bike", "scooter", "harley", "honda", "yamaha"}},
	{"electronics", []string{
		"computer", "laptop", "tablet", "phone", "electronic",
		"equipment", "server", "monitor",
	}},
	{"industrial", []string{
		"industrial", "machinery", "equipment", "tool",
		"generator", "compressor", "forklift",
	}},
	{"furniture", []string{
		"furniture", "desk", "chair", "table", "cabinet", "office furniture",
	}},
	{"collectibles", []string{
		"coin", "stamp", "art", "collectible", "antique", "vintage",
	}},
}

// Classify buckets an item into an asset type from its title and description.
// Unmatched items land in "other".
func Classify(title, description string) string {
	text := strings.ToLower(title) + " " + strings.ToLower(description)
	for _, rule := range assetTypeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.assetType
			}
		}
	}
	return models.AssetTypeOther
}

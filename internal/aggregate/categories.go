package aggregate

// Source categories.
const (
	CategoryRenewable = "renewable"
	CategoryFossil    = "fossil"
	CategoryNuclear   = "nuclear"
	CategoryStorage   = "storage"
	CategoryTrade     = "trade"
	CategoryOther     = "other"
)

// UnitMegawatt is the unit of every source value the API reports.
const UnitMegawatt = "MW"

// SourceCategories maps source keys to their category. Sources not listed
// here fall back to CategoryOther.
var SourceCategories = map[string]string{
	// Renewable
	"hydro_run_of_river":    CategoryRenewable,
	"biomass":               CategoryRenewable,
	"wind_offshore":         CategoryRenewable,
	"wind_onshore":          CategoryRenewable,
	"photovoltaic":          CategoryRenewable,
	"solar":                 CategoryRenewable,
	"hydro_water_reservoir": CategoryRenewable,
	"geothermal":            CategoryRenewable,
	// Fossil
	"fossil_brown_coal_lignite": CategoryFossil,
	"fossil_hard_coal":          CategoryFossil,
	"fossil_coal_derived_gas":   CategoryFossil,
	"fossil_gas":                CategoryFossil,
	"fossil_oil":                CategoryFossil,
	// Nuclear
	"nuclear": CategoryNuclear,
	// Storage
	"hydro_pumped_storage": CategoryStorage,
	"battery":              CategoryStorage,
	"battery_storage":      CategoryStorage,
}

// FossilSources are the members of the fossil category sum.
var FossilSources = []string{
	"fossil_brown_coal_lignite",
	"fossil_hard_coal",
	"fossil_coal_derived_gas",
	"fossil_gas",
	"fossil_oil",
}

// Members of the independent category group sums.
var (
	solarSources = []string{"photovoltaic", "solar"}
	windSources  = []string{"wind_onshore", "wind_offshore"}
	hydroSources = []string{
		"hydro_run_of_river",
		"hydro_water_reservoir",
		"hydro_pumped_storage",
	}
)

package herd

import "github.com/rshade/cowtracker/internal/cache"

// Key categories. Each is also the invalidation pattern for its resources.
const (
	CategoryFarm    = "farm"
	CategoryCattle  = "cattle"
	CategoryMedical = "medical"
	CategoryUser    = "user"
	CategoryReport  = "report"
)

// allFarms is the report parameter value meaning "every farm".
const allFarms = "null"

// FarmListKey is the key of the full farm list.
func FarmListKey() string {
	return cache.NewKey(CategoryFarm, cache.Seg("list")).String()
}

// FarmKey is the key of a single farm. The ID is a named parameter so an ID
// such as "list" cannot collide with FarmListKey.
func FarmKey(id string) string {
	return cache.NewKey(CategoryFarm, cache.P("id", id)).String()
}

// CattleAllKey is the key of the list of every animal.
func CattleAllKey() string {
	return cache.NewKey(CategoryCattle, cache.Seg("all")).String()
}

// CattleByFarmKey is the key of the animals on one farm.
func CattleByFarmKey(farmID string) string {
	return cache.NewKey(CategoryCattle, cache.P("farm", farmID)).String()
}

// CattleKey is the key of a single animal.
func CattleKey(id string) string {
	return cache.NewKey(CategoryCattle, cache.P("id", id)).String()
}

// MedicalKey is both the key for an animal's records and the pattern that
// invalidates them.
func MedicalKey(cattleID string) string {
	return cache.NewKey(CategoryMedical, cache.P("cattle", cattleID)).String()
}

// CurrentUserKey is the key of the signed-in user.
func CurrentUserKey() string {
	return cache.NewKey(CategoryUser, cache.Seg("me")).String()
}

// UserListKey is the key of the user list.
func UserListKey() string {
	return cache.NewKey(CategoryUser, cache.Seg("list")).String()
}

// ReportKey returns the report snapshot key; an empty farmID selects the
// all-farms report ("report:farmId=null").
func ReportKey(farmID string) string {
	if farmID == "" {
		farmID = allFarms
	}
	return cache.NewKey(CategoryReport, cache.P("farmId", farmID)).String()
}

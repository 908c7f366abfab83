package domain

// GameSystem is an entry of the game system catalog
type GameSystem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var gameSystems = []GameSystem{
	{ID: "dnd-5e", Name: "D&D 5e", Description: "Dungeons & Dragons 5th Edition"},
	{ID: "pathfinder-2e", Name: "Pathfinder 2e", Description: "Pathfinder Second Edition"},
	{ID: "call-of-cthulhu", Name: "Call of Cthulhu", Description: "Horror investigation RPG"},
	{ID: "vampire-masquerade", Name: "Vampire: The Masquerade", Description: "Gothic punk vampire RPG"},
	{ID: "cyberpunk-red", Name: "Cyberpunk Red", Description: "Cyberpunk dystopian RPG"},
	{ID: "blades-in-dark", Name: "Blades in the Dark", Description: "Heist-focused fantasy RPG"},
	{ID: "monster-of-week", Name: "Monster of the Week", Description: "Supernatural investigation RPG"},
	{ID: "fate-core", Name: "FATE Core", Description: "Narrative-focused universal RPG"},
	{ID: "savage-worlds", Name: "Savage Worlds", Description: "Fast, furious, fun universal RPG"},
	{ID: "other", Name: "Other", Description: "Custom or other game system"},
}

// GameSystems returns a copy of the catalog
func GameSystems() []GameSystem {
	out := make([]GameSystem, len(gameSystems))
	copy(out, gameSystems)
	return out
}

// LookupGameSystem finds a catalog entry by id
func LookupGameSystem(id string) (GameSystem, bool) {
	for _, gs := range gameSystems {
		if gs.ID == id {
			return gs, true
		}
	}
	return GameSystem{}, false
}

var supportedTimezones = []string{
	"Europe/Stockholm",
	"Europe/London",
	"Europe/Berlin",
	"Europe/Paris",
	"America/New_York",
	"America/Chicago",
	"America/Denver",
	"America/Los_Angeles",
	"America/Toronto",
	"America/Vancouver",
	"Asia/Tokyo",
	"Asia/Shanghai",
	"Australia/Sydney",
	"Australia/Melbourne",
	"UTC",
}

// SupportedTimezones returns the IANA zones sessions may be scheduled in
func SupportedTimezones() []string {
	out := make([]string, len(supportedTimezones))
	copy(out, supportedTimezones)
	return out
}

// IsSupportedTimezone reports whether tz is one of SupportedTimezones
func IsSupportedTimezone(tz string) bool {
	for _, z := range supportedTimezones {
		if z == tz {
			return true
		}
	}
	return false
}

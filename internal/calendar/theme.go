package calendar

// Theme is a named color theme for the calendar and its stickers.
type Theme string

const (
	ThemeDefault  Theme = "default"
	ThemeOcean    Theme = "ocean"
	ThemeForest   Theme = "forest"
	ThemeSunset   Theme = "sunset"
	ThemeLavender Theme = "lavender"
	ThemeCandy    Theme = "candy"
	ThemeSky      Theme = "sky"
	ThemeMint     Theme = "mint"
	ThemePeach    Theme = "peach"
	ThemeLemon    Theme = "lemon"
	ThemeBerry    Theme = "berry"
	ThemeCoral    Theme = "coral"
	ThemeSand     Theme = "sand"
	ThemeNight    Theme = "night"
	ThemeRainbow  Theme = "rainbow"
	ThemePastel   Theme = "pastel"
	ThemeAutumn   Theme = "autumn"
	ThemeWinter   Theme = "winter"
	ThemeSpring   Theme = "spring"
	ThemeSummer   Theme = "summer"
	ThemeSpace    Theme = "space"
	ThemeJungle   Theme = "jungle"
)

var themes = []Theme{
	ThemeDefault, ThemeOcean, ThemeForest, ThemeSunset, ThemeLavender, ThemeCandy,
	ThemeSky, ThemeMint, ThemePeach, ThemeLemon, ThemeBerry, ThemeCoral,
	ThemeSand, ThemeNight, ThemeRainbow, ThemePastel, ThemeAutumn, ThemeWinter,
	ThemeSpring, ThemeSummer, ThemeSpace, ThemeJungle,
}

// Themes returns every supported theme in display order.
func Themes() []Theme {
	return append([]Theme(nil), themes...)
}

// Valid reports whether t is a supported theme.
func (t Theme) Valid() bool {
	for _, known := range themes {
		if t == known {
			return true
		}
	}
	return false
}

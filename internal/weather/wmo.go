package weather

// Kind is the broad family of a WMO weather code.
type Kind string

const (
	KindClear           Kind = "clear"
	KindClouds          Kind = "clouds"
	KindFog             Kind = "fog"
	KindDrizzle         Kind = "drizzle"
	KindRain            Kind = "rain"
	KindFreezingDrizzle Kind = "freezing_drizzle"
	KindFreezingRain    Kind = "freezing_rain"
	KindSnow            Kind = "snow"
	KindSnowGrains      Kind = "snow_grains"
	KindShowers         Kind = "showers"
	KindSnowShowers     Kind = "snow_showers"
	KindThunder         Kind = "thunder"
)

// Severity grades the intensity of a precipitation code.
type Severity string

const (
	SeverityLight    Severity = "light"
	SeverityModerate Severity = "moderate"
	SeverityHeavy    Severity = "heavy"
	SeverityViolent  Severity = "violent"
)

// Classification is the semantic view of a weather code.
type Classification struct {
	TextKey  string   `json:"textKey"`
	Icon     string   `json:"icon"`
	Kind     Kind     `json:"kind,omitempty"`
	Severity Severity `json:"severity,omitempty"`
}

// DefaultClassification is returned for missing or unknown codes.
var DefaultClassification = Classification{TextKey: "weather.unknown", Icon: "🌈"}

type wmoEntry struct {
	key       string
	icon      string
	iconDay   string
	iconNight string
	kind      Kind
	severity  Severity
}

var wmoTable = map[int]wmoEntry{
	0: {key: "weather.clear_sky", icon: "☀️", iconDay: "☀️", iconNight: "🌙", kind: KindClear},
	1: {key: "weather.partly_cloudy", icon: "🌤️", iconDay: "🌤️", iconNight: "☁️", kind: KindClouds},
	2: {key: "weather.partly_cloudy", icon: "⛅", iconDay: "⛅", iconNight: "☁️", kind: KindClouds},
	3: {key: "weather.cloudy", icon: "☁️", kind: KindClouds},

	45: {key: "weather.fog", icon: "🌫️", kind: KindFog},
	48: {key: "weather.fog", icon: "🌫️", kind: KindFog},

	51: {key: "weather.drizzle_light", icon: "🌦️", kind: KindDrizzle, severity: SeverityLight},
	53: {key: "weather.drizzle", icon: "🌦️", kind: KindDrizzle, severity: SeverityModerate},
	55: {key: "weather.drizzle_heavy", icon: "🌧️", kind: KindDrizzle, severity: SeverityHeavy},

	56: {key: "weather.freezing_drizzle_light", icon: "🌧️", kind: KindFreezingDrizzle, severity: SeverityLight},
	57: {key: "weather.freezing_drizzle_heavy", icon: "🌧️", kind: KindFreezingDrizzle, severity: SeverityHeavy},

	61: {key: "weather.rainy_light", icon: "🌧️", kind: KindRain, severity: SeverityLight},
	63: {key: "weather.rainy", icon: "🌧️", kind: KindRain, severity: SeverityModerate},
	65: {key: "weather.rain_heavy", icon: "🌧️", kind: KindRain, severity: SeverityHeavy},

	66: {key: "weather.freezing_rain", icon: "🌧️", kind: KindFreezingRain, severity: SeverityModerate},
	67: {key: "weather.freezing_rain_heavy", icon: "🌧️", kind: KindFreezingRain, severity: SeverityHeavy},

	71: {key: "weather.snow_light", icon: "❄️", kind: KindSnow, severity: SeverityLight},
	73: {key: "weather.snow", icon: "❄️", kind: KindSnow, severity: SeverityModerate},
	75: {key: "weather.snow_heavy", icon: "❄️", kind: KindSnow, severity: SeverityHeavy},

	77: {key: "weather.snow_grains", icon: "❄️", kind: KindSnowGrains},

	80: {key: "weather.shower_light", icon: "🌦️", kind: KindShowers, severity: SeverityLight},
	81: {key: "weather.shower", icon: "🌧️", kind: KindShowers, severity: SeverityModerate},
	82: {key: "weather.shower_heavy", icon: "⛈️", kind: KindShowers, severity: SeverityHeavy},

	85: {key: "weather.snow_showers", icon: "🌨️", kind: KindSnowShowers, severity: SeverityModerate},
	86: {key: "weather.snow_showers_heavy", icon: "❄️", kind: KindSnowShowers, severity: SeverityHeavy},

	95: {key: "weather.thunderstorm", icon: "⛈️", kind: KindThunder, severity: SeverityModerate},
	96: {key: "weather.thunderstorm_hail", icon: "⛈️", kind: KindThunder, severity: SeverityHeavy},
	99: {key: "weather.thunderstorm_hail_heavy", icon: "⛈️", kind: KindThunder, severity: SeverityViolent},
}

// IsDayFlag converts the upstream 0/1 day flag.
func IsDayFlag(v int) bool {
	return v == 1
}

// Classify maps a WMO code and day flag to a Classification.
// A nil or unmapped code yields DefaultClassification.
func Classify(code *int, isDay bool) Classification {
	if code == nil {
		return DefaultClassification
	}
	entry, ok := wmoTable[*code]
	if !ok {
		return DefaultClassification
	}

	icon := entry.iconNight
	if isDay {
		icon = entry.iconDay
	}
	if icon == "" {
		icon = entry.icon
	}
	if icon == "" {
		icon = DefaultClassification.Icon
	}

	return Classification{
		TextKey:  entry.key,
		Icon:     icon,
		Kind:     entry.kind,
		Severity: entry.severity,
	}
}

package weather

import (
	"math"
	"time"

	"github.com/i474232898/weather-tracker/internal/common"
)

var compassPoints = [16]string{
	"N", "NNE", "NE", "ENE",
	"E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW",
	"W", "WNW", "NW", "NNW",
}

// localTimeLayouts are the timestamp forms the upstream emits with timezone=auto.
var localTimeLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// MapForecast converts a validated payload into a CardViewModel.
// It performs no I/O and never fails; non-finite numbers become nil or zero.
func MapForecast(p ForecastPayload) CardViewModel {
	cw := p.Current
	code := cw.WeatherCode
	isDay := IsDayFlag(cw.IsDay)
	cls := Classify(&code, isDay)

	windDeg := common.FinitePtr(cw.WindDirection)

	return CardViewModel{
		Temperature:          common.FiniteOr(cw.Temperature, 0),
		DescriptionKey:       cls.TextKey,
		Icon:                 cls.Icon,
		Kind:                 cls.Kind,
		Severity:             cls.Severity,
		Humidity:             currentHumidity(cw.Time, p.Hourly),
		WindSpeed:            common.FiniteOr(cw.WindSpeed, 0),
		WindDirectionDeg:     windDeg,
		WindDirectionCompass: Compass(windDeg),
		IsDay:                isDay,
		Code:                 &code,
		DailyRows:            dailyRows(p.Daily, DailyHumidityAverages(p.Hourly)),
		Units: Units{
			Current: stringMap(p.Extra["current_weather_units"]),
			Daily:   stringMap(p.DailyUnits),
		},
		Meta: Meta{
			Latitude:         common.FinitePtr(p.Latitude),
			Longitude:        common.FinitePtr(p.Longitude),
			Timezone:         p.Timezone,
			UTCOffsetSeconds: p.UTCOffsetSeconds,
		},
	}
}

// Compass returns the 16-point compass label for a bearing in degrees, or "-".
func Compass(deg *float64) string {
	if deg == nil || !common.IsFinite(*deg) {
		return "-"
	}
	d := math.Mod(*deg, 360)
	if d < 0 {
		d += 360
	}
	ix := int(math.Floor(d/22.5+0.5)) % len(compassPoints)
	return compassPoints[ix]
}

// NearestHourIndex returns the index of the timestamp closest to target,
// the first one on ties, or -1 when nothing parses.
func NearestHourIndex(target string, times []string) int {
	t, ok := parseLocalTime(target)
	if !ok || len(times) == 0 {
		return -1
	}

	best := -1
	bestDiff := int64(math.MaxInt64)
	for i, raw := range times {
		ts, ok := parseLocalTime(raw)
		if !ok {
			continue
		}
		diff := ts.Sub(t).Milliseconds()
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			bestDiff = diff
			best = i
		}
	}
	return best
}

// DailyHumidityAverages buckets hourly humidity by YYYY-MM-DD and rounds each mean.
// Dates without samples are absent from the result.
func DailyHumidityAverages(h *HourlySeries) map[string]float64 {
	out := make(map[string]float64)
	if h == nil {
		return out
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i, ts := range h.Time {
		day := ts
		if len(day) > 10 {
			day = day[:10]
		}
		if day == "" || i >= len(h.RelativeHumidity) {
			continue
		}
		v := h.RelativeHumidity[i]
		if !common.IsFinite(v) {
			continue
		}
		sums[day] += v
		counts[day]++
	}

	for day, n := range counts {
		out[day] = math.Floor(sums[day]/float64(n) + 0.5)
	}
	return out
}

func currentHumidity(currentTime string, h *HourlySeries) *float64 {
	if h == nil || len(h.Time) == 0 || len(h.RelativeHumidity) == 0 {
		return nil
	}
	idx := NearestHourIndex(currentTime, h.Time)
	return common.At(h.RelativeHumidity, idx)
}

func dailyRows(d DailySeries, humidity map[string]float64) []DailyRow {
	precip := d.Precipitation
	if precip == nil {
		precip = make([]float64, len(d.Time))
	}

	rows := make([]DailyRow, 0, len(d.Time))
	for i, date := range d.Time {
		row := DailyRow{
			Date:          date,
			Min:           common.At(d.TempMin, i),
			Max:           common.At(d.TempMax, i),
			Precipitation: common.At(precip, i),
		}
		if avg, ok := humidity[date]; ok {
			row.HumidityAvg = common.FinitePtr(avg)
		}
		rows = append(rows, row)
	}
	return rows
}

func parseLocalTime(s string) (time.Time, bool) {
	for _, layout := range localTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func stringMap(v any) map[string]string {
	out := make(map[string]string)
	m, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for k, raw := range m {
		if s, ok := raw.(string); ok {
			out[k] = s
		}
	}
	return out
}

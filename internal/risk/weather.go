package risk

import (
	"sort"
	"time"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
)

// Point bands for the weather pillars. Rainfall readings are increments in mm
// and are summed; days are UTC calendar days.
const (
	dryDayRainMM = 1.0

	droughtRainLow    = 10.0
	droughtRainMedium = 30.0
	droughtSoilLow    = 20.0
	droughtSoilMedium = 35.0
	droughtDryLong    = 7
	droughtDryShort   = 4

	floodDailyExtreme  = 100.0
	floodDailyHeavy    = 50.0
	floodDailyModerate = 25.0
	floodTotalExtreme  = 200.0
	floodTotalHeavy    = 100.0
	floodSoilSaturated = 90.0
	floodSoilWet       = 80.0

	stormWindGale     = 24.5
	stormWindStrong   = 17.2
	stormWindFresh    = 10.8
	stormDropSharp    = 10.0
	stormDropModerate = 5.0
	stormRainHeavy    = 50.0

	pointsMedium = 2.0
	pointsHigh   = 4.0
)

type dailyRain struct {
	day time.Time
	mm  float64
}

// rainByDay sums rainfall per UTC day, ordered by day.
func rainByDay(readings []domain.Reading) []dailyRain {
	totals := make(map[time.Time]float64)
	for _, r := range readings {
		if r.SensorType != domain.SensorRainfall {
			continue
		}
		y, m, d := r.RecordedAt.UTC().Date()
		totals[time.Date(y, m, d, 0, 0, 0, 0, time.UTC)] += r.Value
	}
	days := make([]dailyRain, 0, len(totals))
	for day, mm := range totals {
		days = append(days, dailyRain{day: day, mm: mm})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].day.Before(days[j].day) })
	return days
}

// stats is a running aggregate over one sensor type.
type stats struct {
	n             int
	sum, min, max float64
}

func collect(readings []domain.Reading, st domain.SensorType) stats {
	var s stats
	for _, r := range readings {
		if r.SensorType != st {
			continue
		}
		if s.n == 0 || r.Value < s.min {
			s.min = r.Value
		}
		if s.n == 0 || r.Value > s.max {
			s.max = r.Value
		}
		s.sum += r.Value
		s.n++
	}
	return s
}

func (s stats) avg() float64 {
	if s.n == 0 {
		return 0
	}
	return s.sum / float64(s.n)
}

// DroughtResult scores sustained dryness.
type DroughtResult struct {
	Score           float64          `json:"score"`
	RiskLevel       domain.RiskLevel `json:"risk_level"`
	TotalRainMM     float64          `json:"total_rain_mm"`
	SoilMoistureAvg *float64         `json:"soil_moisture_avg,omitempty"`
	DryDays         int              `json:"dry_days"`
	DaysAnalyzed    int              `json:"days_analyzed"`
}

// CalculateDrought scores low rainfall, dry soil and trailing dry days.
// Components without data contribute no points.
func CalculateDrought(readings []domain.Reading) DroughtResult {
	days := rainByDay(readings)
	soil := collect(readings, domain.SensorSoilMoisture)
	res := DroughtResult{RiskLevel: domain.RiskLow, DaysAnalyzed: len(days)}
	points := 0.0

	if len(days) > 0 {
		for _, d := range days {
			res.TotalRainMM += d.mm
		}
		switch {
		case res.TotalRainMM < droughtRainLow:
			points += 2
		case res.TotalRainMM < droughtRainMedium:
			points++
		}

		for i := len(days) - 1; i >= 0 && days[i].mm < dryDayRainMM; i-- {
			res.DryDays++
		}
		switch {
		case res.DryDays >= droughtDryLong:
			points += 2
		case res.DryDays >= droughtDryShort:
			points++
		}
	}

	if soil.n > 0 {
		avg := round2(soil.avg())
		res.SoilMoistureAvg = &avg
		switch {
		case avg < droughtSoilLow:
			points += 2
		case avg < droughtSoilMedium:
			points++
		}
	}

	res.TotalRainMM = round2(res.TotalRainMM)
	res.Score = points
	res.RiskLevel = levelFromPoints(points, pointsMedium, pointsHigh)
	return res
}

func (r DroughtResult) Summary() PillarSummary {
	details := map[string]any{
		"total_rain_mm": r.TotalRainMM,
		"dry_days":      r.DryDays,
		"days_analyzed": r.DaysAnalyzed,
	}
	if r.SoilMoistureAvg != nil {
		details["soil_moisture_avg"] = *r.SoilMoistureAvg
	}
	return PillarSummary{Pillar: PillarDrought, Title: PillarDrought.Title(), RiskLevel: r.RiskLevel, Score: r.Score, Details: details}
}

// FloodResult scores excess water.
type FloodResult struct {
	Score           float64          `json:"score"`
	RiskLevel       domain.RiskLevel `json:"risk_level"`
	TotalRainMM     float64          `json:"total_rain_mm"`
	MaxDailyRainMM  float64          `json:"max_daily_rain_mm"`
	SoilMoistureAvg *float64         `json:"soil_moisture_avg,omitempty"`
	DaysAnalyzed    int              `json:"days_analyzed"`
}

// CalculateFlood scores peak daily rainfall, total rainfall and soil
// saturation.
func CalculateFlood(readings []domain.Reading) FloodResult {
	days := rainByDay(readings)
	soil := collect(readings, domain.SensorSoilMoisture)
	res := FloodResult{RiskLevel: domain.RiskLow, DaysAnalyzed: len(days)}
	points := 0.0

	for _, d := range days {
		res.TotalRainMM += d.mm
		if d.mm > res.MaxDailyRainMM {
			res.MaxDailyRainMM = d.mm
		}
	}
	switch {
	case res.MaxDailyRainMM >= floodDailyExtreme:
		points += 3
	case res.MaxDailyRainMM >= floodDailyHeavy:
		points += 2
	case res.MaxDailyRainMM >= floodDailyModerate:
		points++
	}
	switch {
	case res.TotalRainMM >= floodTotalExtreme:
		points += 2
	case res.TotalRainMM >= floodTotalHeavy:
		points++
	}

	if soil.n > 0 {
		avg := round2(soil.avg())
		res.SoilMoistureAvg = &avg
		switch {
		case avg >= floodSoilSaturated:
			points += 2
		case avg >= floodSoilWet:
			points++
		}
	}

	res.TotalRainMM = round2(res.TotalRainMM)
	res.MaxDailyRainMM = round2(res.MaxDailyRainMM)
	res.Score = points
	res.RiskLevel = levelFromPoints(points, pointsMedium, pointsHigh)
	return res
}

func (r FloodResult) Summary() PillarSummary {
	details := map[string]any{
		"total_rain_mm":     r.TotalRainMM,
		"max_daily_rain_mm": r.MaxDailyRainMM,
		"days_analyzed":     r.DaysAnalyzed,
	}
	if r.SoilMoistureAvg != nil {
		details["soil_moisture_avg"] = *r.SoilMoistureAvg
	}
	return PillarSummary{Pillar: PillarFlood, Title: PillarFlood.Title(), RiskLevel: r.RiskLevel, Score: r.Score, Details: details}
}

// StormResult scores wind, falling pressure and heavy rain.
type StormResult struct {
	Score           float64          `json:"score"`
	RiskLevel       domain.RiskLevel `json:"risk_level"`
	MaxWindMS       float64          `json:"max_wind_ms"`
	AvgWindMS       float64          `json:"avg_wind_ms"`
	PressureDropHPa float64          `json:"pressure_drop_hpa"`
	TotalRainMM     float64          `json:"total_rain_mm"`
}

// CalculateStorm scores peak wind speed, pressure range and total rainfall.
func CalculateStorm(readings []domain.Reading) StormResult {
	wind := collect(readings, domain.SensorWindSpeed)
	pressure := collect(readings, domain.SensorAirPressure)
	rain := collect(readings, domain.SensorRainfall)
	res := StormResult{RiskLevel: domain.RiskLow}
	points := 0.0

	if wind.n > 0 {
		res.MaxWindMS = wind.max
		res.AvgWindMS = wind.avg()
		switch {
		case wind.max >= stormWindGale:
			points += 3
		case wind.max >= stormWindStrong:
			points += 2
		case wind.max >= stormWindFresh:
			points++
		}
	}

	if pressure.n > 1 {
		res.PressureDropHPa = pressure.max - pressure.min
		switch {
		case res.PressureDropHPa >= stormDropSharp:
			points += 2
		case res.PressureDropHPa >= stormDropModerate:
			points++
		}
	}

	res.TotalRainMM = rain.sum
	if rain.sum >= stormRainHeavy {
		points++
	}

	res.MaxWindMS = round2(res.MaxWindMS)
	res.AvgWindMS = round2(res.AvgWindMS)
	res.PressureDropHPa = round2(res.PressureDropHPa)
	res.TotalRainMM = round2(res.TotalRainMM)
	res.Score = points
	res.RiskLevel = levelFromPoints(points, pointsMedium, pointsHigh)
	return res
}

func (r StormResult) Summary() PillarSummary {
	return PillarSummary{
		Pillar:    PillarStorm,
		Title:     PillarStorm.Title(),
		RiskLevel: r.RiskLevel,
		Score:     r.Score,
		Details: map[string]any{
			"max_wind_ms":       r.MaxWindMS,
			"avg_wind_ms":       r.AvgWindMS,
			"pressure_drop_hpa": r.PressureDropHPa,
			"total_rain_mm":     r.TotalRainMM,
		},
	}
}

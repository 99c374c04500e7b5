package types

// DailyStats is the summary read to administrators.
type DailyStats struct {
	Farmers        int `json:"farmers"`
	AlertsToday    int `json:"alerts_today"`
	DeliveredToday int `json:"delivered_today"`
}

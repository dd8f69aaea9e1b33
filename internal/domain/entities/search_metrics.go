package entities

// QueryMetric aggregates every recorded search for one query string.
type QueryMetric struct {
	Query            string  `json:"query"`
	Count            int     `json:"count"`
	AvgDuration      float64 `json:"avgDuration"`
	AvgResults       float64 `json:"avgResults"`
	ClickThroughRate float64 `json:"clickThroughRate"`
}

// SearchMetrics summarises the analytics table over a time range.
type SearchMetrics struct {
	TotalSearches     int           `json:"totalSearches"`
	AvgDuration       float64       `json:"avgDuration"`
	AvgResults        float64       `json:"avgResults"`
	TopQueries        []QueryMetric `json:"topQueries"`
	ZeroResultQueries []string      `json:"zeroResultQueries"`
	ClickThroughRate  float64       `json:"clickThroughRate"`
	RefinementRate    float64       `json:"refinementRate"`
	AbandonmentRate   float64       `json:"abandonmentRate"`
}

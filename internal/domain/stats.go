package domain

// IntegrationStats is the read-side rollup over attempt records. It is
// computed on demand and has no independent lifecycle.
type IntegrationStats struct {
	TotalAttempts      int64   `json:"total_attempts"`
	SuccessfulSends    int64   `json:"successful_sends"`
	FailedSends        int64   `json:"failed_sends"`
	PendingRetries     int64   `json:"pending_retries"`
	SuccessRate        float64 `json:"success_rate"`
	Last24hAttempts    int64   `json:"last_24h_attempts"`
	Last24hSuccessRate float64 `json:"last_24h_success_rate"`
}

// SuccessRate returns successful/total as a percentage in [0,100], defined as
// 0 when total is 0.
func SuccessRate(successful, total int64) float64 {
	if total <= 0 {
		return 0
	}
	rate := float64(successful) / float64(total) * 100
	if rate < 0 {
		return 0
	}
	if rate > 100 {
		return 100
	}
	return rate
}

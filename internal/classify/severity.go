// Package classify maps outlier features onto the closed severity scale.
package classify

import "github.com/kratosops/warroom/internal/models"

// Thresholds for the fixed severity tiers.
const (
	highFailedLogins   = 20
	highBytesSent      = 5000
	mediumFailedLogins = 5
	mediumBytesSent    = 3000
)

// Severity returns the tier for an outlier's features. Total and pure over
// non-negative counters: High needs both thresholds exceeded, Medium either,
// everything else is Low.
func Severity(bytesSent, failedLogins int) models.Severity {
	switch {
	case failedLogins > highFailedLogins && bytesSent > highBytesSent:
		return models.SeverityHigh
	case failedLogins > mediumFailedLogins || bytesSent > mediumBytesSent:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

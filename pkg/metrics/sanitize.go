package metrics

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// MaxLabelLength is the maximum length for a Prometheus label value,
// recommended by Prometheus best practices to prevent cardinality
// explosion from a misbehaving or adversarial ClusterID/SkuID.
const MaxLabelLength = 128

// labelSanitizeRegex matches characters not allowed in a Prometheus label
// value: alphanumeric, underscore, hyphen, dot are kept as-is.
var labelSanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-\.]`)

// SanitizeLabel sanitizes an opaque ClusterID/SkuID for use as a Prometheus
// label value: invalid characters become underscores, overlong values are
// truncated, and an empty value becomes "unknown".
func SanitizeLabel(value string) string {
	sanitized, _ := sanitizeLabel(value)
	return sanitized
}

// SanitizeLabelWithLog behaves like SanitizeLabel but logs a warning,
// including the original value, when sanitization actually changed
// something worth knowing about.
func SanitizeLabelWithLog(value, labelName string, logger *zap.Logger) string {
	sanitized, changed := sanitizeLabel(value)
	if changed && logger != nil {
		logger.Warn("sanitized metric label value",
			zap.String("label", labelName),
			zap.String("original", value),
			zap.String("sanitized", sanitized),
			zap.String("reason", sanitizationReason(value)),
		)
	}
	return sanitized
}

func sanitizeLabel(value string) (string, bool) {
	if value == "" {
		return "unknown", true
	}

	original := value
	if labelSanitizeRegex.MatchString(value) {
		value = labelSanitizeRegex.ReplaceAllString(value, "_")
	}
	if len(value) > MaxLabelLength {
		value = value[:MaxLabelLength]
	}
	if value == "" {
		return "unknown", true
	}
	return value, value != original
}

func sanitizationReason(original string) string {
	var reasons []string
	if len(original) > MaxLabelLength {
		reasons = append(reasons, "exceeded_max_length")
	}
	if labelSanitizeRegex.MatchString(original) {
		reasons = append(reasons, "invalid_characters")
	}
	if original == "" {
		reasons = append(reasons, "empty_value")
	}
	if len(reasons) == 0 {
		return "unknown"
	}
	return strings.Join(reasons, ",")
}

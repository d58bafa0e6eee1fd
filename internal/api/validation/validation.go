package validation

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// tenantRegex matches tenant ids: lowercase, digits, dash and underscore
	tenantRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]{0,62}$`)

	// sourceRegex matches data source and reporting source names
	sourceRegex = regexp.MustCompile(`^[a-z][a-z0-9_\-]{0,62}$`)

	// assetTypeRegex matches asset type names such as "ec2" or "compute_instance"
	assetTypeRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_]{0,126}$`)

	// indexRegex matches index names such as "aws_ec2" or "aws_ec2_opinions"
	indexRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]{0,254}$`)

	uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

func IsValidTenantID(id string) bool {
	return tenantRegex.MatchString(id)
}

func IsValidSource(source string) bool {
	return sourceRegex.MatchString(source)
}

func IsValidAssetType(assetType string) bool {
	return assetTypeRegex.MatchString(assetType)
}

func IsValidIndexName(name string) bool {
	return indexRegex.MatchString(name)
}

// IsValidUUID checks if the string is a valid UUID format
func IsValidUUID(id string) bool {
	return uuidRegex.MatchString(id)
}

// IsValidPrefix checks an object store prefix. Empty is valid. Absolute
// paths, parent references and control characters are not.
func IsValidPrefix(prefix string) bool {
	if prefix == "" {
		return true
	}
	if len(prefix) > 1024 || strings.HasPrefix(prefix, "/") || strings.Contains(prefix, `\`) {
		return false
	}
	for _, segment := range strings.Split(prefix, "/") {
		if segment == ".." || segment == "." {
			return false
		}
	}
	for _, r := range prefix {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// SanitizeString removes potentially dangerous characters for display
func SanitizeString(s string) string {
	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	// Remove control characters except newlines and tabs
	var result strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}

	return result.String()
}

// TruncateString truncates a string to maxLen characters
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

package testdb

import "os"

// Environment variables naming the test database, in lookup order.
const (
	EnvDatabaseURL         = "DATABASE_URL"
	EnvShippingTestDBURL   = "SHIPPING_TEST_DB_URL"
	EnvShippingDatabaseURL = "SHIPPING_DATABASE_URL"
)

// GetTestDatabaseURL returns the first non-empty database URL variable, or
// "" when none is set.
func GetTestDatabaseURL() string {
	for _, name := range []string{EnvDatabaseURL, EnvShippingTestDBURL, EnvShippingDatabaseURL} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// IsIntegrationTestEnvironment reports whether a test database is configured.
func IsIntegrationTestEnvironment() bool {
	return GetTestDatabaseURL() != ""
}

// ShouldSkipDatabaseTest reports whether database tests should be skipped.
func ShouldSkipDatabaseTest() bool {
	return !IsIntegrationTestEnvironment()
}

// isCIEnvironment returns true if running in any type of CI environment.
func isCIEnvironment() bool {
	ciVars := []string{
		"CI",             // Generic
		"GITHUB_ACTIONS", // GitHub Actions
		"GITLAB_CI",      // GitLab CI
		"JENKINS_URL",    // Jenkins
		"CIRCLECI",       // Circle CI
	}
	for _, name := range ciVars {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

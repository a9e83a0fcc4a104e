package correlation

import "strings"

// Category classifies what subsystem an error belongs to
type Category string

const (
	CategoryNetwork        Category = "network"
	CategoryDatabase       Category = "database"
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryValidation     Category = "validation"
	CategoryBusinessLogic  Category = "business_logic"
	CategoryExternalAPI    Category = "external_api"
	CategoryResource       Category = "resource"
	CategoryConfiguration  Category = "configuration"
	CategorySystem         Category = "system"
	CategoryUnknown        Category = "unknown"
)

// Severity ranks how urgent an error is
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// categoryRule binds a category to its matching keywords. Rules are checked
// in order; the first match wins.
type categoryRule struct {
	category Category
	keywords []string
}

var categoryRules = []categoryRule{
	{CategoryNetwork, []string{"connection", "timeout", "unreachable"}},
	{CategoryDatabase, []string{"sql", "query", "table"}},
	{CategoryAuthentication, []string{"auth", "unauthorized", "forbidden", "login"}},
	{CategoryValidation, []string{"invalid", "required", "format"}},
	{CategoryResource, []string{"memory", "disk", "quota", "limit"}},
	{CategoryExternalAPI, []string{"api", "external", "service", "endpoint"}},
	{CategoryConfiguration, []string{"config", "setting", "parameter"}},
	{CategoryBusinessLogic, []string{"business", "logic"}},
}

// severityRule binds a severity tier to its keywords, checked most severe
// first.
type severityRule struct {
	severity Severity
	keywords []string
}

var severityRules = []severityRule{
	{SeverityCritical, []string{"fatal", "critical", "system", "crash", "corruption"}},
	{SeverityHigh, []string{"security", "auth", "database", "data", "payment"}},
	{SeverityMedium, []string{"validation", "api", "network", "timeout"}},
}

// ClassifyCategory matches the exception type and message against fixed
// per-category keyword sets. Unrecognized errors default to unknown rather
// than failing.
func ClassifyCategory(exceptionType, message string) Category {
	haystack := strings.ToLower(exceptionType + " " + message)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.category
			}
		}
	}
	return CategoryUnknown
}

// ClassifySeverity assigns the highest keyword tier that matches the
// exception type or message, defaulting to low.
func ClassifySeverity(exceptionType, message string) Severity {
	haystack := strings.ToLower(exceptionType + " " + message)
	for _, rule := range severityRules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.severity
			}
		}
	}
	return SeverityLow
}

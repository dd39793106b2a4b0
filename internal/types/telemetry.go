package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricAPILatency         = "APILatency"
	MetricAPIRequestCount    = "APIRequestCount"
	MetricRemindersScheduled = "RemindersScheduled"
	MetricRemindersSkipped   = "RemindersSkippedPast"
	MetricRemindersPruned    = "RemindersPruned"
	MetricSMSDispatched      = "SMSDispatched"
	MetricSMSFailed          = "SMSFailed"
	MetricExternalAPIFailure = "ExternalAPIFailure"

	// Dimension Keys
	DimEndpoint   = "Endpoint"
	DimMethod     = "Method"
	DimStatus     = "Status"
	DimBusinessID = "BusinessID"
	DimProvider   = "Provider"

	// Metric Namespace
	MetricNamespace = "OpsDeck"
)

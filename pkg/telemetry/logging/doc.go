// Package logging builds the structured loggers used across tally.
//
// New wraps a log/slog JSON or text handler in a Handler that masks
// account and card numbers in string attributes, keeping the last four
// digits, and hides values under sensitive keys such as "token". Custom
// patterns come from the logging.redact_patterns configuration.
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "text", Redact: true})
//	logger.Info("transaction skipped", "description", "ACH 123456789012 PAYROLL")
//	// description="ACH ********9012 PAYROLL"
//
// Attributes stored with WithAttrs or WithCommand are added to every
// record logged with that context:
//
//	ctx = logging.WithCommand(ctx, "cache rebuild")
//	logger.InfoContext(ctx, "rule cache rebuilt")
package logging

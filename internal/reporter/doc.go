// Package reporter periodically logs counters from the running components.
//
// Each registered source is sampled on a fixed interval and its values
// are written as one structured log record, grouped by source name.
package reporter

// Package quota implements the daily rank check quota rules and the monitor
// that resets usage after the day rolls over.
package quota

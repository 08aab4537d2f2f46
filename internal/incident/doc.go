// Package incident provides the business boundary for incident management.
// It defines the Service (lifecycle, comments, timeline, notifications),
// Store interface (persistence), and domain models.
package incident

// Package conv narrows integers to fixed-width fields with bounds checks.
//
// Artifact encoders use it for sizes and counts that are stored in uint8,
// uint16 or uint32 fields. Conversions that are safe by construction use
// plain casts.
package conv

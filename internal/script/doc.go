// Package script turns a submitted script into the ordered text segments that
// become artifacts, and derives the short labels used in notifications.
//
// Splitting is pure and stateless. A "regular" script is always one segment;
// a "short" script is cut on a delimiter phrase that tolerates whitespace
// variations around and inside it.
package script

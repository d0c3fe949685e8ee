// Package preflight provides readiness checks for the filesystem paths and
// external services shortcast depends on.
//
// The CLI "shortcast doctor" command runs RunAll and renders the results.
// Checks never retry; a failing check reports why in Detail.
package preflight

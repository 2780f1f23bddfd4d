// Package archive stores completed meeting summaries and lets experts recall
// prior decisions through a search capability.
package archive

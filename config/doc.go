// Package config loads declarative YAML descriptions of a roundtable: the
// reasoning backends, the experts with their personas, and the meeting
// parameters. Assembly of the described objects lives in the root roundtable
// package.
package config

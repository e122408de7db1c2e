// Package packing arranges axis-aligned boxes into a single container without
// overlap, as needed to build sprite atlases. The package is pure: it performs
// no I/O, keeps no process-wide state and never logs, so concurrent callers may
// pack independent box sets in parallel.
package packing

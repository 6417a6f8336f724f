// Package governance provides execution-side resource controls for the
// pipeline engine, currently a cap on the number of jobs running at once.
package governance

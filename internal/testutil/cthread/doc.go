// Package cthread starts threads through the C library instead of the Go
// runtime. Tests use them when they need a thread the Go scheduler never
// runs: one that can be suspended without holding a P, that exits exactly
// when told to, or that has a chosen stack size.
package cthread

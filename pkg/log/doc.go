// Package log wraps zerolog to give every component in this core a
// structured, component-tagged logger initialized once at device
// start via Init.
package log

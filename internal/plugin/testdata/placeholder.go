// Package testdata holds a glob target for loader discovery tests; it is
// never compiled as part of the module.
package testdata

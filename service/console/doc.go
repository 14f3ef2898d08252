// Package console implements the operator command interface: a line
// oriented command language parsed with parsly and dispatched against a
// running kernel.
package console

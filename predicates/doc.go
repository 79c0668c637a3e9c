/*
Package predicates contains the bundled predicate plugins.

A predicate refines the matching of a route beyond its path and methods.
Its configuration is the raw JSON of the route definition, e.g.:

	{"name": "header", "version": "1.0.0", "config": {"name": "X-Beta", "value": "on"}}

The bundled predicates live in the subpackages, and they are registered
by the builtin package.
*/
package predicates

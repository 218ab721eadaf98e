// Package types holds the public, dependency-free types shared across the
// dockv packages: the typed error taxonomy and the reader configuration.
package types

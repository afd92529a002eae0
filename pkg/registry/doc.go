// Package registry resolves package identifiers against the package
// registry HTTP API and downloads release archives. Lookups can be
// served from a cache to spare the registry on repeated resolves; the
// cache never substitutes for a download.
package registry

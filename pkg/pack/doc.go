// Package pack defines the core domain types for nodekeeper: package
// copies, distribution kinds, activation locations, tracking metadata,
// the classified error taxonomy, and the interfaces the version engine
// uses to talk to external collaborators (registry, archive extraction,
// dependency installation).
package pack

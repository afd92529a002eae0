// Package deps runs a package's dependency-installation step after its
// files land on disk. Packages declare dependencies via a requirements
// file or an install script in their root; the runner executes whichever
// is present and treats a missing declaration as a no-op.
package deps

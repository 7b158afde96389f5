// Package registry discovers capability modules and holds them for the life
// of the process.
//
// Modules are compiled into the binary and listed in a Catalog keyed by entry
// name. Which of them are served, and under what name, is decided by the
// manifest files (`*.module.hcl`) found by walking the modules directory.
// For every manifest the registry looks up the manifest's entry in the
// catalog and calls that module's Register method, which adds a
// *module.Handle under the manifest's name.
//
// Discovery runs once at startup in every process. Any failure (unparsable
// manifest, unknown entry, duplicate name, missing function) aborts startup.
// After discovery the registry is validated and locked; from then on it is
// only read, so it needs no synchronization.
package registry

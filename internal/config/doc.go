// Package config holds the server configuration and the loaders that fill
// it.
//
// Values are layered: built-in defaults, then an optional HCL file, then
// environment variables (after loading a .env file if one exists), then
// command-line flags, which the cli package applies last. The supervising
// process resolves the final Config once and hands it to every worker as
// JSON, so workers never re-read files or flags.
package config

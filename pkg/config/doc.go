/*
Package config loads Hearth's runtime configuration from a YAML manifest
parsed with gopkg.in/yaml.v3.

Loading the file itself is an external-collaborator concern (a future CLI
or systemd unit decides where the manifest lives); this package owns the
types and the parsing so cmd/hearthd and tests can construct a
runtime.RuntimeBuilder from a Config without hand-rolled flag parsing.
*/
package config

/*
Package config loads a device's on-disk settings: the YAML file shape
the teacher's own cmd/warren apply.go reads with gopkg.in/yaml.v3, then
decoded into a typed Config with github.com/mitchellh/mapstructure (the
same Decode-a-map-into-a-struct idiom
_examples/hashicorp-consul-api-gateway uses for its Vault PKI request
bodies) — so a flat map of CLI-flag or environment overrides merges
onto the parsed YAML tree before a single decode pass, rather than
threading override precedence through by hand field by field.

Config holds the raw, unresolved settings (strings and bools only);
Resolve turns it into a Resolved value with the actual types the rest
of the core wants — a compiled prevent-sync pattern, parsed keys and
ids — so a malformed setting fails loudly at startup instead of at the
first folder fetch that happens to need it.
*/
package config

/*
Package config provides typed access to loosely structured configuration.

Policy chains and stream buffers are configured from YAML or JSON documents
that decode into map[string]any. Config wraps such a map and extracts typed
values, falling back to a default when a key is missing or has the wrong
shape:

	cfg, err := config.FromFile("chain.yaml")
	if err != nil {
	    return err
	}

	maxSize := cfg.Bytes("buffer.max_size", 1<<20) // "1MB", "512KiB", 4096
	attempts := cfg.Int("retry.max_attempts", 3)

# Keys

Keys may be dotted paths. "buffer.max_size" looks up "max_size" inside the
map stored under "buffer". A literal key containing a dot takes precedence
over the path lookup.

# Byte Sizes

Bytes accepts integers and human-readable strings parsed with go-humanize,
in both SI ("16KB" = 16000) and IEC ("16KiB" = 16384) units.

# Sections

Sub returns the nested map under a key as its own Config, and Sections
returns a list of nested maps, as used for the ordered policy list of a
chain document.

Config is safe for concurrent reads as long as the underlying map is not
modified.
*/
package config

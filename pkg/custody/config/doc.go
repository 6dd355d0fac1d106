/*
Package config provides type-safe configuration extraction for custody
stores.

# Overview

config wraps a map[string]any and provides typed accessor methods that
handle missing keys and type mismatches gracefully by returning default
values. It also translates well-known keys into store options, so a
store can be configured from a YAML or JSON file without hand-written
plumbing.

# Basic Usage

Create a Config from any map and extract values with defaults:

	cfg := config.New(map[string]any{
	    "policy":         "blocking",
	    "capacity":       64,
	    "borrow_timeout": "5s",
	})

	policy := cfg.String("policy", "strict")                 // "blocking"
	capacity := cfg.Int("capacity", 0)                       // 64
	timeout := cfg.Duration("borrow_timeout", time.Second)   // 5s

# Store Options

Translate the recognized keys into options for custody.New:

	cfg, err := config.FromFile("store.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	opts, err := config.Options[Task](cfg)
	if err != nil {
	    log.Fatal(err)
	}
	store := custody.New[Task](opts...)

Recognized keys: policy ("strict" or "blocking"), capacity (int),
borrow_timeout (duration), store_id (string).

# Type Coercion

Duration handles multiple input types:
  - string: parsed with time.ParseDuration ("30s", "1h30m")
  - int/float64: interpreted as seconds
  - time.Duration: used directly

All methods return the default value if the key is missing, the value
cannot be converted, or the conversion would lose precision.

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the broker.
//
// Configuration comes from one file, named either by the
// DISKSTREAM_CONFIG environment variable (via [Load]) or by a --config
// flag (via [LoadFile]). With neither, [Load] returns [Default], whose
// values reproduce the broker's historical fixed paths and port so an
// unconfigured broker interoperates with existing hypervisor
// instrumentation. There is no automatic file search.
//
// Keys absent from the file keep their defaults. Path fields then get
// ${VAR} and ${VAR:-default} expansion against the environment. No
// other environment variables override config values; command-line
// flags are applied by the binary after loading.
//
// Key exports:
//
//   - [Config] -- master struct with Producer, Subscriber, Limits,
//     Admin, Metrics, Daemon, and Log sections
//   - [Default] -- the built-in configuration
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- reports every invalid field at once
//
// This package depends on no other diskstream packages.
package config

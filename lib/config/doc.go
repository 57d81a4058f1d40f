// Copyright 2026 The Tonefs Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the tonefs configuration file.
//
// Configuration comes from a single YAML file named by the
// TONEFS_CONFIG environment variable or the --config flag. There is
// no automatic discovery; command-line flags override individual
// values after the file is loaded. The only expansion performed is
// ${HOME} and similar variables in paths.
package config

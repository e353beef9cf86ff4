// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

/*
Package logging provides a pre-configured [log/slog.Logger] factory with
consistent defaults for the expression engine and its callers.

# Defaults

  - Format: JSON ([FormatJSON]) via [log/slog.JSONHandler]
  - Level: INFO ([log/slog.LevelInfo])
  - Output: [os.Stderr]
  - Timestamps: [time.RFC3339]

# Configuration

Use functional options to customize the logger. Format and level names from
configuration files are parsed with [ParseFormat] and [ParseLevel]:

	format, _ := logging.ParseFormat(cfg.Logging.Format)
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	logger := logging.New(
		logging.WithFormat(format),
		logging.WithLevel(level),
		logging.WithComponent("expression"),
	)

Safety validation traces every visited node at DEBUG, so enabling debug
output is the way to see why an expression was accepted or rejected.

# Testing

Inject a buffer to capture log output in tests:

	var buf bytes.Buffer
	logger := logging.New(logging.WithOutput(&buf))
*/
package logging

// SPDX-License-Identifier: Apache-2.0

package cmd

import "errors"

var (
	errInvalidLogFormat = errors.New("log format must be one of: text, json")
	errInvalidLogLevel  = errors.New("log level must be one of: trace, debug, info, warn, error")
	errInvalidOutput    = errors.New("output must be one of: table, json")
	errInvalidBackoff   = errors.New("backoff must be one of: fixed, exponential")
)

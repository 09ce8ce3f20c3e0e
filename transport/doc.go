// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package transport runs frame commands against a two-wire bus.
//
// A transaction is strictly sequential: write the command, wait the
// execution time from the command table, read and validate the response.
// Bus handles are scoped with WithBus or Use so they are released on every
// exit path, and Policy implements the caller side retry of whole
// transactions.
package transport

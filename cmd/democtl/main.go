// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command democtl operates a running demo backend from the terminal.
//
// # Usage
//
//	democtl corpora
//	democtl search demo "token refresh" --top-k 5
//	democtl reindex demo --snapshot snapshot.json
//	democtl chat "where is login handled?" --corpus demo --stream
//	democtl eval run --corpus demo --seed 42 --stream
//	democtl eval compare demo-1735657200 demo-1735660800
//	democtl config show --scope demo
//
// The server address comes from --server, then DEMOCTL_SERVER, then
// http://localhost:12210. A .env file in the working directory is loaded
// first. Output is styled on a terminal and tab-separated when piped.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is normal.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

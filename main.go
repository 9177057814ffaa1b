// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church
//
// avctl - AV booth automation
//
// Listens for MIDI triggers from the Allen & Heath SQ mixer and drives the
// mixer, the Kramer video switcher and the VISCA cameras from presets.

package main

import (
	"os"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

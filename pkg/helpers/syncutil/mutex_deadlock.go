// Blendix Serial Core
// Copyright (c) 2026 The Blendix Serial Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Blendix Serial Core.
//
// Blendix Serial Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Blendix Serial Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Blendix Serial Core.  If not, see <http://www.gnu.org/licenses/>.

//go:build deadlock

// Package syncutil holds the locks of the serial link. Building with
// -tags=deadlock swaps them for go-deadlock to report lock cycles and
// locks held too long.
//
// Lock order, outermost first: Service.connMu, Transport.mu, then the leaf
// locks (Service.mu, Worker.mu, Receiver.mu, Sender.mu, Queue.mu,
// config Instance.mu). Leaf locks are never held while taking another
// lock. Only connMu and Transport.mu are held across serial I/O, and only
// for port open, drain and close; reads and writes run unlocked.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

const DeadlockEnabled = true

// portOpenBudget covers the slowest lock hold in the repo: Connect opening
// the port and Disconnect draining it under connMu and Transport.mu.
const portOpenBudget = 10 * time.Second

func init() {
	deadlock.Opts.DeadlockTimeout = portOpenBudget
}

type Mutex struct {
	deadlock.Mutex
}

type RWMutex struct {
	deadlock.RWMutex
}

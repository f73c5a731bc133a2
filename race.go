// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package flowgraph

// RaceEnabled is true when the race detector is active. Tests use it to
// skip the concurrent scenarios whose workQueue slot accesses the race
// detector cannot see as ordered.
const RaceEnabled = true

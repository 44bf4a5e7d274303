// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package glm

import "testing"

func TestParseContrast(t *testing.T) {
	cols := []string{"motor", "music", "visual", "rot_x", "intercept"}

	ct, err := ParseContrast("motor", cols)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{1, 0, 0, 0, 0}
	for i, w := range ct.Weights {
		if w != want[i] {
			t.Errorf("motor weight %d: %g, want %g", i, w, want[i])
		}
	}

	ct, err = ParseContrast("motor - visual", cols)
	if err != nil {
		t.Fatal(err)
	}
	want = []float64{1, 0, -1, 0, 0}
	for i, w := range ct.Weights {
		if w != want[i] {
			t.Errorf("motor - visual weight %d: %g, want %g", i, w, want[i])
		}
	}

	ct, err = ParseContrast("motor + music - visual", cols)
	if err != nil {
		t.Fatal(err)
	}
	want = []float64{1, 1, -1, 0, 0}
	for i, w := range ct.Weights {
		if w != want[i] {
			t.Errorf("three-term weight %d: %g, want %g", i, w, want[i])
		}
	}

	for _, expr := range []string{"", "speech", "motor -", "- motor", "motor visual"} {
		if _, err := ParseContrast(expr, cols); err == nil {
			t.Errorf("expression %q should fail to parse", expr)
		}
	}
}

func TestContrastToken(t *testing.T) {
	tests := []struct {
		expr, tok string
	}{
		{"motor", "Motor"},
		{"music", "Music"},
		{"motor - visual", "MotorVsVisual"},
		{"music - visual", "MusicVsVisual"},
		{"motor + music", "MotorMusic"},
	}
	for _, ts := range tests {
		if tok := ContrastToken(ts.expr); tok != ts.tok {
			t.Errorf("token for %q: %q, want %q", ts.expr, tok, ts.tok)
		}
		// same expression always maps to the same token
		if a, b := ContrastToken(ts.expr), ContrastToken(ts.expr); a != b {
			t.Errorf("token for %q not deterministic: %q vs %q", ts.expr, a, b)
		}
	}
}

// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package glm

import (
	"fmt"
	"strings"
	"unicode"
)

// Contrast is a parsed linear combination of design-matrix regressors,
// e.g. "motor" or "motor - visual".
type Contrast struct {
	// the source expression
	Expr string

	// weight per design column, aligned to the fitted column order
	Weights []float64
}

// ParseContrast resolves a contrast expression against the given design
// column names.  Supported forms are a single condition name, and names
// combined with + and - operators separated by spaces.
func ParseContrast(expr string, cols []string) (*Contrast, error) {
	parts := strings.Fields(expr)
	if len(parts) == 0 {
		return nil, fmt.Errorf("glm: empty contrast expression")
	}
	ct := &Contrast{Expr: expr, Weights: make([]float64, len(cols))}
	sign := 1.0
	expectName := true
	for _, p := range parts {
		switch {
		case p == "-" && !expectName:
			sign = -1
			expectName = true
		case p == "+" && !expectName:
			sign = 1
			expectName = true
		case expectName && p != "-" && p != "+":
			ci := -1
			for i, c := range cols {
				if c == p {
					ci = i
					break
				}
			}
			if ci < 0 {
				return nil, fmt.Errorf("glm: contrast %q: no design column %q", expr, p)
			}
			ct.Weights[ci] += sign
			expectName = false
		default:
			return nil, fmt.Errorf("glm: contrast %q: unexpected token %q", expr, p)
		}
	}
	if expectName {
		return nil, fmt.Errorf("glm: contrast %q: trailing operator", expr)
	}
	return ct, nil
}

// ContrastToken transliterates a contrast expression into a
// filesystem-safe entity value: each name is capitalized, the
// comparison operator "-" becomes "Vs", and "+" joins names directly,
// so "motor - visual" yields "MotorVsVisual" and "motor + music"
// yields "MotorMusic".  The mapping is deterministic.
func ContrastToken(expr string) string {
	var sb strings.Builder
	for _, p := range strings.Fields(expr) {
		switch p {
		case "-":
			sb.WriteString("Vs")
		case "+":
			// names are simply concatenated
		default:
			r := []rune(p)
			r[0] = unicode.ToUpper(r[0])
			sb.WriteString(string(r))
		}
	}
	return sb.String()
}

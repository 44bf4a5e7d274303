// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bids

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Entities is the set of key-value entities parsed from a BIDS filename,
// e.g., sub-01_ses-1_task-mixed_run-1_bold.nii.gz yields
// {sub: 01, ses: 1, task: mixed, run: 1} with Suffix "bold" and Ext ".nii.gz".
type Entities struct {
	// key-value entity pairs in filename order
	Vals map[string]string

	// entity keys in the order they appeared in the filename
	Keys []string

	// filename suffix following the last entity (e.g., bold, events, design)
	Suffix string

	// full extension including leading dot, with .gz kept together (.nii.gz)
	Ext string
}

// Get returns the value for the given entity key, or "" if absent.
func (en *Entities) Get(key string) string {
	if en.Vals == nil {
		return ""
	}
	return en.Vals[key]
}

// Has returns true if the given entity key is present.
func (en *Entities) Has(key string) bool {
	_, ok := en.Vals[key]
	return ok
}

// ParseName parses a BIDS file basename into its entities, suffix, and
// extension.  The name must consist of underscore-separated key-value
// segments followed by a suffix and extension.  A name with no suffix
// segment (i.e., all segments are key-value) is an error.
func ParseName(name string) (*Entities, error) {
	en := &Entities{Vals: map[string]string{}}
	en.Ext = Extension(name)
	base := strings.TrimSuffix(name, en.Ext)
	segs := strings.Split(base, "_")
	last := len(segs) - 1
	if strings.Contains(segs[last], "-") {
		return nil, fmt.Errorf("bids: name %q has no suffix segment", name)
	}
	en.Suffix = segs[last]
	for _, seg := range segs[:last] {
		key, val, ok := strings.Cut(seg, "-")
		if !ok || key == "" || val == "" {
			return nil, fmt.Errorf("bids: name %q has malformed entity segment %q", name, seg)
		}
		if _, dup := en.Vals[key]; dup {
			return nil, fmt.Errorf("bids: name %q repeats entity %q", name, key)
		}
		en.Vals[key] = val
		en.Keys = append(en.Keys, key)
	}
	return en, nil
}

// Extension returns the BIDS extension of the given file name, keeping
// compound .gz extensions together: x.nii.gz -> .nii.gz
func Extension(name string) string {
	ext := filepath.Ext(name)
	if ext == ".gz" {
		ext = filepath.Ext(strings.TrimSuffix(name, ext)) + ext
	}
	return ext
}

// RunID identifies one scanning run: the subject / session / task / run
// entities of a discovered file.  Session and Run may be empty.
type RunID struct {
	Subject string
	Session string
	Task    string
	Run     string
}

// RunIDFrom extracts the run-identifying entities from parsed entities.
func RunIDFrom(en *Entities) RunID {
	return RunID{
		Subject: en.Get("sub"),
		Session: en.Get("ses"),
		Task:    en.Get("task"),
		Run:     en.Get("run"),
	}
}

// String renders the run identity in entity order, for logging.
func (id RunID) String() string {
	var sb strings.Builder
	for _, kv := range [][2]string{{"sub", id.Subject}, {"ses", id.Session}, {"task", id.Task}, {"run", id.Run}} {
		if kv[1] == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('_')
		}
		sb.WriteString(kv[0])
		sb.WriteByte('-')
		sb.WriteString(kv[1])
	}
	return sb.String()
}

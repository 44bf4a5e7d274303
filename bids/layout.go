// Copyright (c) 2025, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package bids indexes a BIDS-organized dataset tree (raw plus derivative
roots) and answers entity-based file queries: subject, session, task, run,
space, description, suffix, extension.  It also resolves JSON sidecar
metadata following the BIDS inheritance principle, and constructs output
paths for derived files (design matrices, statistic maps).

The layout is built once from the on-disk tree and is read-only thereafter.
*/
package bids

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File is one indexed file in the layout.
type File struct {
	// absolute path on disk
	Path string

	// parsed filename entities, suffix, extension
	Entities *Entities

	// BIDS datatype directory the file lives in (func, anat), if any
	Datatype string

	// root directory this file was indexed under
	Root string

	// true if the file came from a derivative root
	Derivative bool
}

// RunID returns the run-identifying entities of this file.
func (f *File) RunID() RunID {
	return RunIDFrom(f.Entities)
}

// Layout is an index of the files in a raw dataset root plus any number
// of derivative roots, keyed by filename entities.  Build it with
// NewLayout, optionally extend with AddDerivatives, then query with Get.
type Layout struct {
	// raw dataset root directory
	Root string

	// derivative roots added via AddDerivatives
	DerivRoots []string

	// all indexed files, in deterministic (sorted path) order
	Files []*File
}

// NewLayout indexes the given raw dataset root.
func NewLayout(root string) (*Layout, error) {
	lay := &Layout{Root: root}
	if err := lay.index(root, false); err != nil {
		return nil, err
	}
	return lay, nil
}

// AddDerivatives indexes a derivative root (e.g., an fmriprep output tree)
// into the same layout.  Derivative files carry entity keys such as
// space and desc that raw files do not.
func (lay *Layout) AddDerivatives(root string) error {
	return lay.index(root, true)
}

func (lay *Layout) index(root string, deriv bool) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("bids: layout root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("bids: layout root %q is not a directory", root)
	}
	var files []*File
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// skip nested derivatives under a raw root; they are added explicitly
			if !deriv && d.Name() == "derivatives" {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") || !strings.HasPrefix(name, "sub-") {
			return nil
		}
		en, perr := ParseName(name)
		if perr != nil {
			return nil // non-conforming names are simply not indexed
		}
		if en.Ext == ".json" {
			// sidecars are resolved by Metadata directly, never queried
			return nil
		}
		f := &File{
			Path:       path,
			Entities:   en,
			Datatype:   datatypeOf(root, path),
			Root:       root,
			Derivative: deriv,
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return fmt.Errorf("bids: indexing %q: %w", root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	lay.Files = append(lay.Files, files...)
	if deriv {
		lay.DerivRoots = append(lay.DerivRoots, root)
	}
	return nil
}

// datatypeOf returns the name of the datatype directory (func, anat, ...)
// containing the file, which is the immediate parent unless the file sits
// directly under a subject or session directory.
func datatypeOf(root, path string) string {
	dir := filepath.Base(filepath.Dir(path))
	if strings.HasPrefix(dir, "sub-") || strings.HasPrefix(dir, "ses-") || filepath.Dir(path) == filepath.Clean(root) {
		return ""
	}
	return dir
}

// Filters selects files by entity values.  Empty string fields are
// unconstrained.  SpaceNone / DescNone require the corresponding entity
// to be absent, matching a query for files without any space or desc
// entity (e.g., raw as opposed to resampled derivatives).
type Filters struct {
	Subject string
	Session string
	Task    string
	Run     string
	Space   string
	Desc    string
	Suffix  string
	Ext     string

	// require the space entity to be absent
	SpaceNone bool

	// require the desc entity to be absent
	DescNone bool
}

// WithRun returns a copy of the filters with the run-identifying entities
// set from the given run.
func (fl Filters) WithRun(id RunID) Filters {
	fl.Subject = id.Subject
	fl.Session = id.Session
	fl.Task = id.Task
	fl.Run = id.Run
	return fl
}

func (fl *Filters) match(f *File) bool {
	en := f.Entities
	for _, c := range [][2]string{
		{"sub", fl.Subject}, {"ses", fl.Session}, {"task", fl.Task},
		{"run", fl.Run}, {"space", fl.Space}, {"desc", fl.Desc},
	} {
		if c[1] != "" && en.Get(c[0]) != c[1] {
			return false
		}
	}
	if fl.SpaceNone && en.Has("space") {
		return false
	}
	if fl.DescNone && en.Has("desc") {
		return false
	}
	if fl.Suffix != "" && en.Suffix != fl.Suffix {
		return false
	}
	if fl.Ext != "" && en.Ext != fl.Ext {
		return false
	}
	return true
}

// Get returns all indexed files matching the filters, in sorted-path
// order for each indexed root, raw root first.
func (lay *Layout) Get(fl Filters) []*File {
	var res []*File
	for _, f := range lay.Files {
		if fl.match(f) {
			res = append(res, f)
		}
	}
	return res
}

// GetOne returns the single file matching the filters, or an error
// naming the filters if none or more than one match.
func (lay *Layout) GetOne(fl Filters) (*File, error) {
	res := lay.Get(fl)
	switch len(res) {
	case 0:
		return nil, fmt.Errorf("bids: no file matching %+v", fl)
	case 1:
		return res[0], nil
	default:
		return nil, fmt.Errorf("bids: %d files matching %+v, want 1", len(res), fl)
	}
}

// Copyright 2026 The kero Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package kero implements the KERO binary container format for storing
// large collections of fixed-length DNA k-mers together with per-item
// payloads, indexed for fast random access by minimizer.
//
// A finalized file looks like:
//
//	┌────────────────────────┐
//	│ signature KERO         │
//	│ header (version, ...)  │
//	├────────────────────────┤
//	│ GV / Raw / Minimizer   │
//	│ sections, in the order │
//	│ the writer created them│
//	│                        │
//	├────────────────────────┤
//	│ hashtable section      │
//	├────────────────────────┤
//	│ index section(s)       │
//	├────────────────────────┤
//	│ footer GV              │
//	│ (first_index,          │
//	│  footer_size)          │
//	├────────────────────────┤
//	│ signature KERO         │
//	└────────────────────────┘
//
// A minimizer section's four columns look like:
//
//	minimizer | nb_blocks | 4 column offsets | n | m_idx | data | seq
//
// where n and m_idx are integer-compressed per-block counts and positions,
// data is a byte-stream-compressed concatenation of per-block payloads, and
// seq is the raw concatenation of packed sequences with each block's shared
// minimizer spliced out.
package kero

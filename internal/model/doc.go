// Package model provides the record and state types shared by the sync engine.
//
// This package contains type definitions and small pure helpers only. Every
// other internal package imports model; model imports nothing internal, which
// keeps it the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - All timestamps are UTC; local dates only appear as yyyy-mm-dd week keys
//   - WFM-side ids are the stable keys; Teams-side ids are assigned after the
//     first successful push and carried forward by the delta engine
//   - All JSON tags use camelCase, matching the snapshot payloads
package model

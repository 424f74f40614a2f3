// Package core defines the shared language of the leapmeta system.
//
// This package contains:
//   - Domain entities (Column, TableSchema, LineageRecord, MetadataMapping)
//   - Service interfaces (Store)
//   - Configuration types (AdapterConfig, TargetConfig)
//   - The error taxonomy shared by every component
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core

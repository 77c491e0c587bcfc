// Package events defines the typed event contract shared by audio capture,
// endpointing, and turn orchestration.
//
// Event kinds are grouped by producer-facing namespaces:
//
//   - capture.*   — audio device input path
//   - endpoint.*  — speech boundary detection
//   - playback.*  — reply audio output path
//   - turn.*      — turn state machine transitions
//
// Semantics used across the package:
//
//   - Frame: binary audio frame payload, immutable once captured.
//   - Started/Ended: lifecycle boundaries of one speech episode.
//   - StillSilent: heartbeat emitted while no speech episode is open.
package events

// Package audit writes one JSON line per transmitted command.
//
// Entries carry the submitting user, channel, action, outcome code and send
// latency. Files are rotated by size and age; old segments are kept as
// audit-<timestamp>.jsonl next to the active file.
package audit

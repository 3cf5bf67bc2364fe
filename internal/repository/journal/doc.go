// Package journal implements the flight journal.
//
// Every processed deployment command, every sensor fault transition and
// every boot is appended as one protojson line. The journal is write-only
// for the daemon: it is never replayed, and the actuator always boots
// disarmed. Observers enqueue without blocking; Run drains the queue to disk.
package journal

// Package device probes the raw byte capacity of attached storage devices.
//
// Capacity is advisory: it feeds a "will the image fit" check before a
// write. Probing therefore never fails. Each Strategy reads some platform
// source (a disk utility's output or a kernel table) and parses it into a
// byte count; strategies are tried in order and the first one that yields
// a value wins. When none does, Capacity returns 0, which callers must read
// as "unknown", never as "empty device".
//
// Default strategies, in order:
//
//	fdisk       /sbin/fdisk -l <device>, first line "... N bytes, ..."
//	diskutil    diskutil list -plist <device> (darwin only)
//
// PartitionsStrategy reads /proc/partitions (block count x 1024, linux
// only). It is opt-in via WithStrategies.
//
// Probing is a single attempt; there are no retries.
package device

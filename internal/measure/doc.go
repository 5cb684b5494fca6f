// Package measure reassembles periodic multi-packet sensor measurements into
// ensembles, one collection state machine per sensor type.
//
// Each StorageState owns a contiguous range of caller-provided slots carved
// once by Init. Devices contribute a fixed number of packets per interval;
// a packet's slot is the device's ordinal within the collecting bitmap times
// packets-per-device plus its distance from the device's interval origin
// sequence number.
//
// # Contexts
//
// A StorageState is allocated either in the safety or the non-safety
// context. A non-safety allocation with a nonzero bitmap never overrides a
// safety allocation. Safety packets carry an interval timestamp that is
// checked against the interval in progress and a two-entry history; non-safety
// packets are deduplicated by their first data byte instead.
//
// # Wraparound
//
// Sequence numbers are 8-bit, timestamps 24-bit and ticks 32-bit. All
// differences use wrapping subtraction.
//
// # Submission
//
// An ensemble is submitted when every expected slot is filled, when a packet
// opens the next interval, or when Process finds no accepted packet within
// the measurement timeout. Submission raises the sensor's data-ready event
// with an Ensemble that references the slot buffer; it stays valid until the
// next interval is activated.
package measure

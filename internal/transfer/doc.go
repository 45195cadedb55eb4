// Package transfer selects which viewer element is exchanged with the
// toolkit. The Active policy never blocks; the Prompt policy blocks on a
// user dialog until it is submitted or canceled.
package transfer

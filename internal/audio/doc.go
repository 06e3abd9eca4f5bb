// Package audio plays synthesized speech clips for a player.
//
// An Engine serializes a player's clips through a Backend. Backends turn an
// encoded payload into a playable Handle and report completion through a
// callback; the engine owns ordering, device routing and the stall
// watchdog. OtoBackend plays through the process-wide oto context,
// ExecBackend pipes clips to an external player such as paplay, and
// MockBackend scripts outcomes for tests.
package audio

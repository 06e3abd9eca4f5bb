// Package queue provides the FIFO clip queue used by the playback engine.
// Items leave the queue in exactly the order they were added; there is no
// priority lane and no reordering.
package queue

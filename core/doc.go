// Package core implements the uboss service kernel.
//
// Services are addressed by integer handles and communicate only through
// asynchronous messages. Every service owns a message queue; queues with
// pending work are linked into a global queue that a fixed pool of workers
// drains. A hierarchical timer wheel injects timeout responses into the same
// pipeline, and a per-worker monitor flags services that appear stuck.
package core

// Package dispatch decouples accepting portfolio-execution requests from
// running them. A Producer enqueues execution ids, a Consumer feeds them to a
// bounded worker pool (Processor), and the Executor behind the pool runs the
// coordination loop. Queue backends live in the redisq and rabbitmq
// subpackages; the in-memory queue serves tests and single-process setups.
package dispatch

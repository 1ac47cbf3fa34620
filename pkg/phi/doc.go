// Package phi implements a phi accrual failure detector for a single peer.
//
// A Detector learns the distribution of inter-heartbeat gaps over a bounded
// window and turns the time elapsed since the last heartbeat into a suspicion
// level phi = -log10(P_later), where P_later is the probability that the next
// heartbeat would still arrive later than the observed gap.
//
// window.go holds the interval FIFO and its mean / standard deviation.
// model.go converts a gap into P_later with a logistic approximation of the
// normal tail. crossing.go inverts phi to predict when a threshold will be
// crossed, which lets callers arm a timeout instead of polling.
//
// Timestamps are unsigned integers in a caller-chosen unit (the receiver uses
// nanoseconds since process start). A Detector is not safe for concurrent use;
// each monitored peer owns its own instance.
package phi

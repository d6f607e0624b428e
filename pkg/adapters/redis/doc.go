// Package redis provides Signal and Locker implementations backed by Redis.
//
// A signal keeps its latest value under a key and announces every update on a
// pub/sub channel, so detectors bridged into Redis by another process can be
// watched by an acquisition engine.
package redis

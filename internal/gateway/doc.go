// Package gateway implements room membership and broadcast for the chat
// service.
//
// The Gateway keeps two views of one relation: a Registry from room id to
// member connection ids, and a Tracker from connection id to its current
// room and user. Both are mutated together under a single mutex so that a
// join or leave is never observed half applied. Broadcast targets are copied
// while the lock is held and delivered after it is released, so one slow
// recipient cannot stall membership changes for anyone else.
//
// The package knows nothing about websockets. Transports hand it values that
// satisfy Conn and feed it inbound events; see internal/server.
package gateway

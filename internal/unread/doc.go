// Package unread keeps the session user's unread counts on the client.
//
// Counts change optimistically as pushed messages arrive and as the user
// reads conversations. After a read the Counter schedules a debounced
// refetch of the server's counts, which replace the local state wholesale,
// so any drift converges after one round trip.
//
// Several client instances of one user in the same process coordinate
// through an eventbus.Bus: a read on one instance is published on
// eventbus.TopicMessageRead and the others zero the same conversation.
package unread

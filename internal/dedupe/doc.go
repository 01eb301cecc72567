// Package dedupe keeps a conversation view free of duplicate messages.
//
// IDSet catches the same server message arriving twice. Pending pairs a
// server message with the optimistic echo the sender already shows, so the
// echo is replaced instead of duplicated.
package dedupe

// Package tokenstore holds the bearer token of a running client process.
//
// A Store is the single source of truth for the current token. Consumers
// (authfetch, socket) receive it as an injected Source and read it at call
// time; nothing in this package is global.
//
// Setting a new token never affects requests already in flight or sockets
// already open: a socket keeps the token it was opened with until it is
// closed and reopened.
package tokenstore

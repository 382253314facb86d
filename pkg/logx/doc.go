// Package logx is ontime's structured logging on top of zerolog.
//
// Console output is human-readable with a short caller, the optional file
// output is JSON lines, and warnings can be forwarded to a chat (Telegram)
// for unattended sync daemons. Every component takes a Logger by value and
// treats the zero value as "discard".
package logx

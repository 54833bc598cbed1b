/*
package gossip fans a changed value out to the clients long-polling for it.

Changes arrive from our own writes and, through dbnotify, from other
processes sharing the database.  The name is imperfect, but see the section
"Promotion" on https://en.wikipedia.org/wiki/Hadacol.
*/
package gossip

// Package mvcc implements the per-entry lock candidate table.
//
// Every entry owns at most one Table holding the ordered list of lock
// candidates, local and remote, that currently reference the entry. The
// table resolves ownership (the first ready candidate in version order owns
// the lock) and gates retirement: an entry with a non-empty candidate table
// must not be marked obsolete.
//
// Candidates are identified by an opaque owner token. Tokens are compared
// byte-wise, callers choose their own token scheme (the grid cache uses
// random UUIDs).
//
// Thread-safety: a Table is NOT safe for concurrent use. It is owned by one
// entry and mutated only under that entry's mutex.
package mvcc

// Package cache bounds how many archives the gateway holds open and evicts
// the ones that go unused.
//
// An access goes through three steps. Admission compares the number of
// tracked archives plus in-flight reservations against Max; archives that
// are already tracked bypass it. The Manager then resolves the address.
// Finally the population gate waits for the archive metadata to sync or for
// PopulateTimeout, whichever comes first, and records the access time.
//
// The Sweeper drops archives idle for longer than TTL every Period. The
// access table and the manager's tracked set are always changed together
// under the cache mutex.
package cache

// Package crawler holds the vocabulary of the hotel directory crawl: stages,
// requests, records, failure entries, the interfaces workers consume, the
// stage registry, URL canonicalization and the retry policy.
package crawler

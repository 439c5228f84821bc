// Package crawler holds the shared vocabulary of the harvester: the record
// types each stage reads and writes, the fetch and storage interfaces, the
// retry and politeness policies, and the fetch-with-retry loop built on them.
package crawler

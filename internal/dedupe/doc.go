// Package dedupe tracks recently claimed keys in a TTL cache so duplicate
// work (such as re-hashing the same legacy password twice) is skipped.
package dedupe

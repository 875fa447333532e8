// Package token generates opaque, time-ordered identifiers.
//
// IDs are ULIDs: 26 Crockford base32 characters, safe in headers, URLs and
// log lines. pairmesh uses them for HTTP request IDs, session IDs and
// tombstone field names.
package token

/*
Package policy decides which URLs the server may reach and asks VirusTotal
about the ones users visit or download.

Guard blocks requests aimed at loopback, private, link-local and other
non-public ranges. It is applied before navigation, before server-side
fetches and on every redirect hop; DialControl repeats the address check
at connect time.

Allowlist skips threat scans for well-known domains, matched on the
registrable domain so lookalike suffixes do not pass.

Scanner wraps the VirusTotal v3 API. Lookups are fail-open: callers treat
errors as a safe verdict.
*/
package policy

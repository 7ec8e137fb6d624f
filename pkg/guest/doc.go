/*
Package guest defines the host-guest boundary contract: the function
surface a sandboxed WebAssembly guest would bind to, exposed here as plain
Go functions over a *process.Process so it can be exercised directly by
tests, or by a future WASM host's import table.

Every function takes the calling process explicitly rather than reading
from a package-level global: a WASM host would bind one instance of this
surface per sandboxed instance, closing over that instance's
*process.Process.

Payloads crossing this boundary are opaque byte strings; guests pick their
own encoding and this package does not interpret them.
*/
package guest

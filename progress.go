package dumper

// ProgressFunc and ProgressUpdateFunc are the two progress sinks named in
// §4.8. They are plain callback types, not a renderer: the core only ever
// emits integer updates through them (§9, "progress sink injection"). A
// concrete renderer — e.g. the progressbar-backed one in cmd/payload-dumper
// — is an external collaborator that implements these signatures.
//
// ProgressFunc is declared in httprange.go (next to its sole producer, the
// HTTP range reader); ProgressUpdateFunc is declared in pool.go (next to
// its producer, the worker pool). Both are documented here for a single
// point of reference.

// Package snapshot persists the progress and results of a batch run as a JSON
// document that is only ever replaced atomically.
//
// Every write goes to a temporary file in the destination directory, is synced,
// and is then renamed over the public path, so readers and crashes observe
// either the previous complete snapshot or the new one.
package snapshot

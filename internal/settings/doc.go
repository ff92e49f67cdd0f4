// Package settings persists the player's user settings as a single JSON
// document.
//
// Values are addressed by dot-separated paths and read with gjson and
// written with sjson, so the document keeps whatever shape the front end
// or an older release gave it:
//
//	{
//	  "_version": "1.1.0",
//	  "audio": {"volume": 0.8, "equalizer": [{"frequency": 60, "gain": 3}]},
//	  "plugins": {"lyrics": {"enabled": true, "config": {"source": "lrclib"}}}
//	}
//
// Open migrates older documents to CurrentVersion with a Migrator before
// returning the Store. Every write is flushed atomically (temp file then
// rename) when the store is backed by a file.
package settings

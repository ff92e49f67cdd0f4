// Package security provides the permission model for neonplay plugins.
//
// # Permissions
//
// A plugin declares the permissions it needs in its manifest. The set of
// permissions is closed:
//
//   - filesystem:read: read files through the host
//   - filesystem:write: write files through the host
//   - network:fetch: fetch URLs through the host
//   - dsp:audio: control the equalizer and volume of the audio chain
//   - ui:overlay: draw overlays on top of the player
//   - library:manage: add and remove tracks in the media library
//
// Unknown permission strings are rejected by ParsePermission.
//
// # Grants
//
// A Grant is a token proving that a Checker holds a permission. Optional
// plugin API surfaces can only be constructed from a Grant, so the presence
// of a surface in a plugin context always matches the permission set:
//
//	checker := security.NewChecker("visualizer", []security.Permission{security.PermissionDSPAudio})
//	if grant, ok := checker.Grant(security.PermissionDSPAudio); ok {
//	    ctx.DSP = api.NewDSPModule(grant, engine)
//	}
//
// # Host boundary checks
//
// The Checker also validates individual operations at the host boundary:
// path allow and block lists for file access, host allow and block lists
// for network fetches, and per-plugin rate limits (see Limits).
//
// The permission model is advisory with respect to the Lua runtime: it
// decides which surfaces a plugin sees and which host calls succeed. It is
// not process isolation.
package security

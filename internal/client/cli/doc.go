// Package cli provides the interactive GophVault command-line client.
//
// It wires configuration, the local cache, the remote client and the
// application services behind a small REPL. On start it probes the server,
// starts a background connectivity watcher and, when an account is stored,
// asks for the password to unlock it.
//
// Key features:
//   - Register / Login / Unlock (offline) / Lock / Logout
//   - Keyring unlock (enable-biometric, biometric)
//   - Add, edit, show, list and delete logins, notes and cards
//   - Sync with the server and password generation
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli

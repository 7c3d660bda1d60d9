// Package app is the composition root of the zheye client.
//
// # Overview
//
// New turns a configuration file into a ready client session: it builds the
// logger, opens the token store, restores the persisted token, creates the
// API client and the state store and connects them, then wraps both in an
// actions.Orchestrator. The CLI subcommands and the terminal browser share it.
//
// # Wiring
//
//	config.Load()
//	   ├─> logger.OpenFile() + logger.Setup()   log.file, "-" is stderr
//	   ├─> session store                        file | redis | memory
//	   │      └─> Load()                        restored token
//	   ├─> prometheus.Registry                  served on metrics_addr
//	   ├─> state.New(token, tokens)
//	   ├─> api.NewClient(WithObserver(store))
//	   │      └─> store.SetCredentials(client)
//	   └─> actions.New(client, store)
//
// The store observes every call the client makes (Loading and Error) and the
// client receives the bearer token on every Login and Logout commit. The two
// are created in that order and linked with SetCredentials.
//
// # Bootstrap
//
// Bootstrap verifies the restored token by fetching the current user. A token
// the server rejects, or one whose JWT exp has passed, is discarded and
// logged; the session continues anonymously. Network errors that leave the
// verdict unknown also discard the token.
//
// # Shutdown
//
// Close stops the metrics endpoint, closes the Redis client and the log file.
// Resources are released in reverse order of acquisition.
package app

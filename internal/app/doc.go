// Package app wires the asset-store backend together and runs it.
//
// # Initialization Flow
//
// New performs, in order:
//
//	1. Resolve platform paths and create the data, logs and templates directories
//	2. Initialize logging and OpenTelemetry metrics
//	3. Connect to the hosted Postgres database and blob bucket
//	4. Build the download pipeline, session store, license activator,
//	   catalog service and updater
//	5. Relay every broker onto the WebSocket hub
//	6. Build the chi router and the HTTP server
//
// # Lifecycle
//
// Run starts the hub, the catalog change listener, the startup license
// re-check, the periodic updater and the HTTP server under one errgroup and
// blocks until ctx is cancelled or one of them fails. Close releases what
// New acquired.
//
//	application, err := app.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer application.Close()
//	return application.Run(ctx)
package app

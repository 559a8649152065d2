// Package device provides the Device Registry for Coldtag Core.
//
// The registry owns the identity of every core (gateway) and node (sensor
// tag). A device is identified by its hardware address: six hex octets
// separated by ':' or '-', matched case-insensitively. Addresses are
// validated and normalised before anything is written.
//
// # Key Types
//
//   - Device: a registered core or node
//   - Update: a partial modification (label, core assignment, deleted flag)
//   - Registry: cache-aside front for a Repository
//   - SQLiteRepository: the devices table
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo, lruCache)
//	registry.SetLogger(logger)
//
//	node, err := registry.Register(ctx, device.KindNode, "aa:bb:cc:dd:ee:ff", nil)
//	if errors.Is(err, device.ErrDeviceExists) {
//	    // already registered
//	}
//
// Deleted devices stay readable. The registry refuses to mutate them and
// callers should check Deleted before offering mutations.
package device

// Package permission maps chama membership roles to the UI actions a member
// may see, using a 64-bit permission mask per role.
//
// # Masks
//
// Bit positions are assigned by [Registry.Register] and are stable for the
// lifetime of the process. Roles are composed from registered action names by
// [RoleManager.RegisterRole]. [Catalog] wires both together with the default
// chama role table.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O. It only decides
// what a role may be offered; the remote platform remains the authority that
// accepts or rejects the action itself.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import chamaWeb, jwt, or session.
package permission
